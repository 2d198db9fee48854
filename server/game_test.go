package server

import (
	"testing"
	"time"
)

func testGame(mod func(*Config)) *Game {
	cfg := DefaultConfig() // SpawnEveryTicks 保持 0：默认关掉随机生成，测试可控
	if mod != nil {
		mod(&cfg)
	}
	return NewGame(cfg)
}

// drainFrames 取走某连接发送队列里当前积压的全部帧
func drainFrames(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.send:
			out = append(out, b)
		default:
			return out
		}
	}
}

func framesWithTag(frames [][]byte, tag MsgTag) [][]byte {
	var out [][]byte
	for _, f := range frames {
		if len(f) > 0 && MsgTag(f[0]) == tag {
			out = append(out, f)
		}
	}
	return out
}

// addNamed 接入一个连接并在一个 Tick 内完成命名，丢弃期间的帧
func addNamed(t *testing.T, g *Game, name string) *Conn {
	t.Helper()
	c, err := g.registry.Accept(nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	g.events.AddJoin(c.ID)
	g.events.AddNameRequest(c.ID, name)
	g.tick(time.Now())
	if !c.Named() {
		t.Fatalf("conn %d not named after tick", c.ID)
	}
	drainFrames(c)
	return c
}

func TestHelloHandshake(t *testing.T) {
	g := testGame(nil)
	c, err := g.registry.Accept(nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	g.events.AddJoin(c.ID)
	g.tick(time.Now())

	frames := drainFrames(c)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want exactly the hello", len(frames))
	}
	id, ok := DecodeHello(frames[0])
	if !ok || id != 0 {
		t.Fatalf("hello = (%d, %v), want (0, true)", id, ok)
	}
}

// §8 端到端名字场景的引擎侧版本：重名被拒、改投 bob 成功并通告 alice
func TestNameNegotiation(t *testing.T) {
	g := testGame(nil)
	alice := addNamed(t, g, "alice")

	bob, _ := g.registry.Accept(nil)
	g.events.AddJoin(bob.ID)
	g.tick(time.Now())
	drainFrames(bob) // hello

	// 抢占已被持有的名字 → 拒绝
	g.events.AddNameRequest(bob.ID, "alice")
	g.tick(time.Now())
	frames := drainFrames(bob)
	results := framesWithTag(frames, TagNameResult)
	if len(results) != 1 {
		t.Fatalf("got %d name results, want 1", len(results))
	}
	if name, valid, _ := DecodeNameResult(results[0]); valid || name != "alice" {
		t.Fatalf("duplicate name: result = (%q, %v), want rejected", name, valid)
	}
	if bob.Named() {
		t.Fatal("bob got named despite rejection")
	}

	// 换一个空闲名字 → 通过；alice 收到批量加入通告，bob 收到全量快照
	g.events.AddNameRequest(bob.ID, "bob")
	g.tick(time.Now())

	frames = drainFrames(bob)
	results = framesWithTag(frames, TagNameResult)
	if len(results) != 1 {
		t.Fatalf("got %d name results, want 1", len(results))
	}
	if name, valid, _ := DecodeNameResult(results[0]); !valid || name != "bob" {
		t.Fatalf("free name: result = (%q, %v), want accepted", name, valid)
	}
	snaps := framesWithTag(frames, TagPlayersSnapshot)
	if len(snaps) != 1 {
		t.Fatalf("bob got %d snapshots, want 1", len(snaps))
	}
	entries, _ := DecodePlayersSnapshot(snaps[0])
	if len(entries) != 1 || entries[0].ID != uint32(alice.ID) || entries[0].Name != "alice" {
		t.Fatalf("snapshot = %+v, want just alice", entries)
	}

	joined := framesWithTag(drainFrames(alice), TagPlayersJoined)
	if len(joined) != 1 {
		t.Fatalf("alice got %d joined frames, want 1", len(joined))
	}
	entries, _ = DecodePlayersJoined(joined[0])
	if len(entries) != 1 || entries[0].ID != uint32(bob.ID) || entries[0].Name != "bob" {
		t.Fatalf("joined = %+v, want just bob", entries)
	}
}

// 同帧抢同名：判重基于帧首快照，双双通过是明确接受的竞态
func TestSameTickNameRaceBothAccepted(t *testing.T) {
	g := testGame(nil)
	a, _ := g.registry.Accept(nil)
	b, _ := g.registry.Accept(nil)
	g.events.AddJoin(a.ID)
	g.events.AddJoin(b.ID)
	g.events.AddNameRequest(a.ID, "carol")
	g.events.AddNameRequest(b.ID, "carol")
	g.tick(time.Now())

	if a.Name != "carol" || b.Name != "carol" {
		t.Fatalf("names = %q, %q; pre-tick snapshot check should accept both", a.Name, b.Name)
	}
}

func TestRenameAnnounced(t *testing.T) {
	g := testGame(nil)
	alice := addNamed(t, g, "alice")
	bob := addNamed(t, g, "bob")
	drainFrames(alice) // bob 的加入通告

	g.events.AddNameRequest(alice.ID, "alice2")
	g.tick(time.Now())

	frames := drainFrames(alice)
	if n := len(framesWithTag(frames, TagPlayersSnapshot)); n != 0 {
		t.Fatalf("renamer got %d snapshots, want 0", n)
	}
	joined := framesWithTag(drainFrames(bob), TagPlayersJoined)
	if len(joined) != 1 {
		t.Fatalf("bob got %d joined frames, want 1", len(joined))
	}
	entries, _ := DecodePlayersJoined(joined[0])
	if len(entries) != 1 || entries[0].ID != uint32(alice.ID) || entries[0].Name != "alice2" {
		t.Fatalf("rename announcement = %+v", entries)
	}
}

func TestPopAwardAndIdempotence(t *testing.T) {
	g := testGame(nil)
	c := addNamed(t, g, "alice")

	g.balloons[5] = &Balloon{ID: 5, X: 10, Y: 20, Hue: 120}
	g.events.AddPop(5, c.ID)
	g.tick(time.Now())

	if c.Score != g.cfg.PopAward {
		t.Fatalf("score = %d, want %d", c.Score, g.cfg.PopAward)
	}
	if _, ok := g.balloons[5]; ok {
		t.Fatal("balloon survived a valid pop")
	}
	frames := drainFrames(c)
	pops := framesWithTag(frames, TagBalloonPop)
	if len(pops) != 1 {
		t.Fatalf("got %d pop events, want 1", len(pops))
	}
	if _, balloonID, popper, ok := DecodePopEvent(pops[0]); !ok || balloonID != 5 || popper != uint32(c.ID) {
		t.Fatalf("pop event = (%d, %d, %v)", balloonID, popper, ok)
	}
	scores := framesWithTag(frames, TagPlayersScores)
	if len(scores) != 1 {
		t.Fatalf("got %d score frames, want 1", len(scores))
	}
	entries, _ := DecodePlayersScores(scores[0])
	if len(entries) != 1 || entries[0].Score != g.cfg.PopAward {
		t.Fatalf("score broadcast = %+v", entries)
	}

	// 同一气球再戳：失效引用，静默忽略，不重复加分
	g.events.AddPop(5, c.ID)
	g.tick(time.Now())
	if c.Score != g.cfg.PopAward {
		t.Fatalf("stale pop changed score to %d", c.Score)
	}
	if frames := drainFrames(c); len(frames) != 0 {
		t.Fatalf("stale pop produced %d frames", len(frames))
	}
}

// 未命名连接的戳破请求整体无效：不摘气球、不加分
func TestPopFromUnnamedIgnored(t *testing.T) {
	g := testGame(nil)
	c, _ := g.registry.Accept(nil)
	g.events.AddJoin(c.ID)
	g.balloons[1] = &Balloon{ID: 1}
	g.events.AddPop(1, c.ID)
	g.tick(time.Now())

	if _, ok := g.balloons[1]; !ok {
		t.Fatal("unnamed pop removed the balloon")
	}
	if c.Score != 0 {
		t.Fatalf("unnamed pop awarded score %d", c.Score)
	}
}

// 戳破者在结算前离线：气球照摘，分数无人可加
func TestPopFromDepartedStillRemovesBalloon(t *testing.T) {
	g := testGame(nil)
	c := addNamed(t, g, "alice")
	watcher := addNamed(t, g, "bob")
	drainFrames(watcher)

	g.balloons[3] = &Balloon{ID: 3}
	g.events.AddPop(3, c.ID)
	g.registry.Remove(c.ID)
	g.events.AddLeave(c.ID)
	g.tick(time.Now())

	if _, ok := g.balloons[3]; ok {
		t.Fatal("balloon survived pop from departed player")
	}
	if n := len(framesWithTag(drainFrames(watcher), TagBalloonPop)); n != 1 {
		t.Fatalf("watcher got %d pop events, want 1", n)
	}
}

func TestPongEcho(t *testing.T) {
	g := testGame(nil)
	c := addNamed(t, g, "alice")

	g.events.AddPing(c.ID, 1234.5)
	g.tick(time.Now())
	pongs := framesWithTag(drainFrames(c), TagPong)
	if len(pongs) != 1 {
		t.Fatalf("got %d pongs, want 1", len(pongs))
	}
	if ts, ok := DecodePong(pongs[0]); !ok || ts != 1234.5 {
		t.Fatalf("pong ts = (%v, %v), want (1234.5, true)", ts, ok)
	}
}

// 存活气球数在任意抽样结果下都不得突破上限
func TestSpawnCeiling(t *testing.T) {
	const ceiling = 3
	g := testGame(func(cfg *Config) {
		cfg.SpawnEveryTicks = 1
		cfg.BalloonCeiling = ceiling
	})
	addNamed(t, g, "alice")

	for i := 0; i < 1000; i++ {
		g.tick(time.Now())
		if len(g.balloons) > ceiling {
			t.Fatalf("tick %d: %d balloons, ceiling %d", i, len(g.balloons), ceiling)
		}
	}
	// 空场首次评估概率为 exp(0)=1，必然至少生成一个
	if g.nextBalloon == 0 {
		t.Fatal("no balloon ever spawned")
	}
}

func TestNoSpawnWithoutNamedConnection(t *testing.T) {
	g := testGame(func(cfg *Config) {
		cfg.SpawnEveryTicks = 1
	})
	c, _ := g.registry.Accept(nil) // 在线但未命名
	g.events.AddJoin(c.ID)
	for i := 0; i < 100; i++ {
		g.tick(time.Now())
	}
	if len(g.balloons) != 0 {
		t.Fatalf("%d balloons spawned with no named connection", len(g.balloons))
	}
}

// 气球广播只发给已命名连接
func TestSpawnBroadcastSkipsUnnamed(t *testing.T) {
	g := testGame(func(cfg *Config) {
		cfg.SpawnEveryTicks = 1
	})
	named := addNamed(t, g, "alice")
	anon, _ := g.registry.Accept(nil)
	g.events.AddJoin(anon.ID)
	// 清场让生成概率回到 exp(0)=1，本轮必然生成
	for id := range g.balloons {
		delete(g.balloons, id)
	}
	drainFrames(named)
	g.tick(time.Now())

	if n := len(framesWithTag(drainFrames(named), TagBalloonSpawn)); n != 1 {
		t.Fatalf("named conn got %d spawn frames, want 1", n)
	}
	if n := len(framesWithTag(drainFrames(anon), TagBalloonSpawn)); n != 0 {
		t.Fatalf("unnamed conn got %d spawn frames, want 0", n)
	}
}
