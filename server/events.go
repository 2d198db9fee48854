package server

import "sync"

// Accumulator 每 Tick 的事件收件箱：多生产者（网络协程）、单消费者（Tick 协程）
//
// 每类事件按 key（连接 id 或气球 id）去重，帧内重复以最新为准；
// Drain 在 Tick 开头一次性取走并清空，事件绝不跨 Tick 存活。
type Accumulator struct {
	mu       sync.Mutex
	joins    map[ConnID]struct{}
	leaves   map[ConnID]struct{}
	pings    map[ConnID]float64 // 连接 id → 客户端上报的时间戳（毫秒）
	nameReqs map[ConnID]string  // 连接 id → 请求的名字
	pops     map[uint32]ConnID  // 气球 id → 请求戳破的连接

	// 需要广播分数的连接，由 Tick 第 1 步标记、第 4 步取走
	scores map[ConnID]struct{}
}

func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	a.reset()
	a.scores = make(map[ConnID]struct{})
	return a
}

func (a *Accumulator) reset() {
	a.joins = make(map[ConnID]struct{})
	a.leaves = make(map[ConnID]struct{})
	a.pings = make(map[ConnID]float64)
	a.nameReqs = make(map[ConnID]string)
	a.pops = make(map[uint32]ConnID)
}

func (a *Accumulator) AddJoin(id ConnID) {
	a.mu.Lock()
	a.joins[id] = struct{}{}
	a.mu.Unlock()
}

func (a *Accumulator) AddLeave(id ConnID) {
	a.mu.Lock()
	a.leaves[id] = struct{}{}
	a.mu.Unlock()
}

func (a *Accumulator) AddPing(id ConnID, ts float64) {
	a.mu.Lock()
	a.pings[id] = ts
	a.mu.Unlock()
}

func (a *Accumulator) AddNameRequest(id ConnID, name string) {
	a.mu.Lock()
	a.nameReqs[id] = name
	a.mu.Unlock()
}

func (a *Accumulator) AddPop(balloonID uint32, popper ConnID) {
	a.mu.Lock()
	a.pops[balloonID] = popper
	a.mu.Unlock()
}

// MarkScore 标记某连接在本 Tick 需要一次分数广播
func (a *Accumulator) MarkScore(id ConnID) {
	a.mu.Lock()
	a.scores[id] = struct{}{}
	a.mu.Unlock()
}

// Batch 一个 Tick 取走的全部入站事件
type Batch struct {
	Joins    map[ConnID]struct{}
	Leaves   map[ConnID]struct{}
	Pings    map[ConnID]float64
	NameReqs map[ConnID]string
	Pops     map[uint32]ConnID
}

// Drain 原子地取走所有入站收件箱并清空
// 分数标记不在其列：它由 Tick 第 1 步产生、第 4 步经 DrainScores 取走
func (a *Accumulator) Drain() Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := Batch{
		Joins:    a.joins,
		Leaves:   a.leaves,
		Pings:    a.pings,
		NameReqs: a.nameReqs,
		Pops:     a.pops,
	}
	a.reset()
	return b
}

// DrainScores 取走并清空分数广播标记
func (a *Accumulator) DrainScores() []ConnID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ConnID, 0, len(a.scores))
	for id := range a.scores {
		out = append(out, id)
	}
	a.scores = make(map[ConnID]struct{})
	return out
}
