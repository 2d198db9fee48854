package server

import (
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// Game 模拟引擎：唯一的世界状态写者，按固定频率单线程推进
//
// balloons、nextBalloon、tickSeq 只在 Tick 协程中读写；网络协程
// 一律经由 Accumulator 投递事件、经由 Registry 投递出站字节。
type Game struct {
	cfg      Config
	registry *Registry
	events   *Accumulator
	tel      *Telemetry

	balloons    map[uint32]*Balloon
	nextBalloon uint32 // 气球 id 与连接 id 各自独立单调递增
	tickSeq     uint64
	rng         *rand.Rand

	// 热更新项（/admin/config 可在运行期调整，故用 atomic）
	ceiling    int64
	spawnEvery int64

	stop chan struct{}
}

func NewGame(cfg Config) *Game {
	tel := NewTelemetry()
	g := &Game{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxConns, tel),
		events:   NewAccumulator(),
		tel:      tel,
		balloons: make(map[uint32]*Balloon),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:     make(chan struct{}),
	}
	atomic.StoreInt64(&g.ceiling, int64(cfg.BalloonCeiling))
	atomic.StoreInt64(&g.spawnEvery, int64(cfg.SpawnEveryTicks))
	return g
}

// Start 启动 Tick 循环
func (g *Game) Start() {
	go g.loop()
}

// Stop 结束 Tick 循环（只允许调用一次）
func (g *Game) Stop() {
	close(g.stop)
}

// loop 自调度定时：每轮结束后按 间隔-耗时 重新定时，下限为 0
// 处理过慢时会背靠背连跑追赶，而不是跳帧
func (g *Game) loop() {
	interval := time.Second / time.Duration(g.cfg.TickRate)
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-g.stop:
			return
		case now := <-timer.C:
			start := time.Now()
			g.tick(now)
			elapsed := time.Since(start)
			g.tel.AddTick(elapsed.Nanoseconds())
			next := interval - elapsed
			if next < 0 {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// tick 一轮完整的模拟周期；各步骤内的单连接失败只跳过该连接
func (g *Game) tick(now time.Time) {
	g.tickSeq++
	nowMs := float64(now.UnixNano()) / 1e6
	batch := g.events.Drain()

	// 离开事件本身无需广播（客户端靠快照收敛）；只在日志留痕
	for id := range batch.Leaves {
		Log.Debugf("player left: id=%d", id)
	}

	// 1. 结算戳破请求：按气球 id 去重，失效引用静默忽略
	for balloonID, popper := range batch.Pops {
		if _, ok := g.balloons[balloonID]; !ok {
			continue // 已被摘除或从未存在
		}
		c, ok := g.registry.Lookup(popper)
		if ok && !c.Named() {
			continue // 未命名连接不得触发游戏事件
		}
		// 戳破者已离线的情况：气球照摘，只是分数无处可记
		delete(g.balloons, balloonID)
		g.tel.IncPopped()
		if ok {
			c.Score += g.cfg.PopAward
			g.events.MarkScore(popper)
		}
		g.registry.Broadcast(Named, EncodePopEvent(nowMs, balloonID, uint32(popper)))
	}

	// 2. 名字协商：以帧首命名快照判重
	// 同帧抢同名可能双双通过——判重基于帧首快照而非彼此，属可接受竞态
	holders := make(map[string]ConnID)
	for _, c := range g.registry.All() {
		if c.Named() {
			holders[c.Name] = c.ID
		}
	}
	var newlyNamed []*Conn // 本帧从未命名变为已命名
	var renamed []*Conn    // 已命名者换名，只需通告不需快照
	for id, name := range batch.NameReqs {
		c, ok := g.registry.Lookup(id)
		if !ok {
			continue
		}
		holder, taken := holders[name]
		valid := name != "" && (!taken || holder == id)
		if valid && c.Name != name {
			if c.Named() {
				renamed = append(renamed, c)
			} else {
				newlyNamed = append(newlyNamed, c)
			}
			c.Name = name
		}
		g.registry.Send(id, EncodeNameResult(PackName(name), valid))
		if valid {
			Log.Infof("name accepted: id=%d name=%q", id, name)
		}
	}

	// 3. 新命名者广播：给新人发其余玩家的全量快照，给旧人发批量加入通告
	// 换名者也走加入通告，客户端按 id 覆盖名字
	if len(newlyNamed)+len(renamed) > 0 {
		announce := append(append([]*Conn(nil), newlyNamed...), renamed...)
		newSet := make(map[ConnID]struct{}, len(announce))
		joined := make([]PlayerEntry, 0, len(announce))
		for _, nc := range announce {
			newSet[nc.ID] = struct{}{}
			joined = append(joined, PlayerEntry{ID: uint32(nc.ID), Name: nc.Name})
		}
		for _, nc := range newlyNamed {
			entries := make([]PlayerEntry, 0)
			for _, c := range g.registry.All() {
				if c.ID == nc.ID || !c.Named() {
					continue
				}
				entries = append(entries, PlayerEntry{ID: uint32(c.ID), Name: c.Name, Score: c.Score})
			}
			g.registry.Send(nc.ID, EncodePlayersSnapshot(entries))
		}
		payload := EncodePlayersJoined(joined)
		g.registry.Broadcast(func(c *Conn) bool {
			_, isNew := newSet[c.ID]
			return c.Named() && !isNew
		}, payload)
	}

	// 4. 分数广播
	if dirty := g.events.DrainScores(); len(dirty) > 0 {
		entries := make([]PlayerEntry, 0, len(dirty))
		for _, id := range dirty {
			if c, ok := g.registry.Lookup(id); ok && c.Named() {
				entries = append(entries, PlayerEntry{ID: uint32(id), Score: c.Score})
			}
		}
		if len(entries) > 0 {
			g.registry.Broadcast(Named, EncodePlayersScores(entries))
		}
	}

	// 5. Join 握手：向本帧新接入的连接回发其 id
	for id := range batch.Joins {
		g.registry.Send(id, EncodeHello(uint32(id)))
	}

	// 6. Ping → Pong：原样回显客户端时间戳
	for id, ts := range batch.Pings {
		g.registry.Send(id, EncodePong(ts))
	}

	// 7. 气球生成：按人口指数衰减的自抑制概率
	spawned := g.maybeSpawn(nowMs)

	// 8. 新气球广播
	for _, b := range spawned {
		g.registry.Broadcast(Named, EncodeBalloonSpawn(b.Created, b.ID, b.X, b.Y, b.Hue))
	}

	// 9. 遥测刷新（Tick 耗时由 loop 记录）
	g.tel.SetLiveBalloons(len(g.balloons))
}

// maybeSpawn 约每秒两次评估是否生成新气球
// 概率 exp(-live/(ceiling/4))：场上越满越难生成，趋近于零但无硬性跳变
func (g *Game) maybeSpawn(nowMs float64) []*Balloon {
	every := atomic.LoadInt64(&g.spawnEvery)
	if every <= 0 || g.tickSeq%uint64(every) != 0 {
		return nil
	}
	ceiling := atomic.LoadInt64(&g.ceiling)
	if int64(len(g.balloons)) >= ceiling {
		return nil
	}
	if g.namedCount() == 0 {
		return nil
	}
	p := math.Exp(-float64(len(g.balloons)) / (float64(ceiling) / 4))
	if g.rng.Float64() >= p {
		return nil
	}
	id := g.nextBalloon
	g.nextBalloon++
	b := newBalloon(id, g.rng, g.cfg.WorldWidth, g.cfg.WorldHeight, g.cfg.BalloonSize, nowMs)
	g.balloons[id] = b
	g.tel.IncSpawned()
	return []*Balloon{b}
}

func (g *Game) namedCount() int {
	n := 0
	for _, c := range g.registry.All() {
		if c.Named() {
			n++
		}
	}
	return n
}
