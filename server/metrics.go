package server

import (
	"sync"
	"sync/atomic"
)

// tickAvgWindow 滑动平均的窗口大小（最近 N 个 Tick）
const tickAvgWindow = 120

// Telemetry 记录运行期关键指标：只增计数器 + 少量瞬时值
// 计数全部用 atomic，网络协程与 Tick 协程都可安全调用
type Telemetry struct {
	JoinedTotal   int64 // 累计接入
	LeftTotal     int64 // 累计离开
	RejectedTotal int64 // 因容量被拒
	CurrentConns  int64 // 当前在线
	Malformed     int64 // 非法帧（长度/标签校验失败或非二进制帧）
	MsgsIn        int64
	BytesIn       int64
	MsgsOut       int64
	BytesOut      int64
	DroppedSends  int64 // 发送队列满被丢弃的帧
	Spawned       int64 // 累计生成的气球
	Popped        int64 // 累计被戳破的气球
	LiveBalloons  int64 // 当前场上气球数（每 Tick 末刷新）
	TickCount     int64
	TotalTickNs   int64

	avgMu   sync.Mutex
	tickAvg rollingAverage
}

func NewTelemetry() *Telemetry {
	return &Telemetry{tickAvg: newRollingAverage(tickAvgWindow)}
}

func (t *Telemetry) IncJoined() {
	atomic.AddInt64(&t.JoinedTotal, 1)
	atomic.AddInt64(&t.CurrentConns, 1)
}

func (t *Telemetry) IncLeft() {
	atomic.AddInt64(&t.LeftTotal, 1)
	atomic.AddInt64(&t.CurrentConns, -1)
}

func (t *Telemetry) IncRejected()  { atomic.AddInt64(&t.RejectedTotal, 1) }
func (t *Telemetry) IncMalformed() { atomic.AddInt64(&t.Malformed, 1) }
func (t *Telemetry) IncDropped()   { atomic.AddInt64(&t.DroppedSends, 1) }
func (t *Telemetry) IncSpawned()   { atomic.AddInt64(&t.Spawned, 1) }
func (t *Telemetry) IncPopped()    { atomic.AddInt64(&t.Popped, 1) }

func (t *Telemetry) AddRecv(n int) {
	atomic.AddInt64(&t.MsgsIn, 1)
	atomic.AddInt64(&t.BytesIn, int64(n))
}

func (t *Telemetry) AddSent(n int) {
	atomic.AddInt64(&t.MsgsOut, 1)
	atomic.AddInt64(&t.BytesOut, int64(n))
}

func (t *Telemetry) SetLiveBalloons(n int) { atomic.StoreInt64(&t.LiveBalloons, int64(n)) }

// AddTick 记录一次 Tick 的耗时（仅 Tick 协程调用）
func (t *Telemetry) AddTick(ns int64) {
	atomic.AddInt64(&t.TickCount, 1)
	atomic.AddInt64(&t.TotalTickNs, ns)
	t.avgMu.Lock()
	t.tickAvg.Record(float64(ns) / 1e6)
	t.avgMu.Unlock()
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (t *Telemetry) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&t.TickCount)
	total := atomic.LoadInt64(&t.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	t.avgMu.Lock()
	windowMs := t.tickAvg.Value()
	t.avgMu.Unlock()
	return map[string]any{
		"joined_total":       atomic.LoadInt64(&t.JoinedTotal),
		"left_total":         atomic.LoadInt64(&t.LeftTotal),
		"rejected_total":     atomic.LoadInt64(&t.RejectedTotal),
		"current_conns":      atomic.LoadInt64(&t.CurrentConns),
		"malformed_frames":   atomic.LoadInt64(&t.Malformed),
		"msgs_in":            atomic.LoadInt64(&t.MsgsIn),
		"bytes_in":           atomic.LoadInt64(&t.BytesIn),
		"msgs_out":           atomic.LoadInt64(&t.MsgsOut),
		"bytes_out":          atomic.LoadInt64(&t.BytesOut),
		"dropped_sends":      atomic.LoadInt64(&t.DroppedSends),
		"balloons_spawned":   atomic.LoadInt64(&t.Spawned),
		"balloons_popped":    atomic.LoadInt64(&t.Popped),
		"balloons_live":      atomic.LoadInt64(&t.LiveBalloons),
		"tick_count":         tick,
		"avg_tick_ms":        avgMs,
		"avg_tick_ms_window": windowMs,
	}
}

// rollingAverage 固定窗口滑动平均；由持有者负责并发保护
type rollingAverage struct {
	samples []float64
	idx     int
	count   int
	sum     float64
}

func newRollingAverage(n int) rollingAverage {
	return rollingAverage{samples: make([]float64, n)}
}

func (r *rollingAverage) Record(v float64) {
	r.sum -= r.samples[r.idx]
	r.samples[r.idx] = v
	r.sum += v
	r.idx = (r.idx + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

func (r *rollingAverage) Value() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}
