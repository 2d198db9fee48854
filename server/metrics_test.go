package server

import "testing"

func TestRollingAverageWindow(t *testing.T) {
	r := newRollingAverage(4)
	if r.Value() != 0 {
		t.Fatalf("empty average = %v, want 0", r.Value())
	}
	r.Record(2)
	r.Record(4)
	if r.Value() != 3 {
		t.Fatalf("avg = %v, want 3", r.Value())
	}
	// 灌满窗口后，最旧的样本被挤出
	r.Record(4)
	r.Record(4)
	r.Record(10) // 挤出最初的 2
	if r.Value() != 5.5 {
		t.Fatalf("avg = %v, want 5.5 (window [4 4 4 10])", r.Value())
	}
}

func TestTelemetrySnapshot(t *testing.T) {
	tel := NewTelemetry()
	tel.IncJoined()
	tel.IncJoined()
	tel.IncLeft()
	tel.IncMalformed()
	tel.AddRecv(10)
	tel.AddSent(23)
	tel.AddTick(2_000_000) // 2ms

	snap := tel.Snapshot()
	if snap["joined_total"].(int64) != 2 || snap["left_total"].(int64) != 1 {
		t.Fatalf("join/left = %v/%v", snap["joined_total"], snap["left_total"])
	}
	if snap["current_conns"].(int64) != 1 {
		t.Fatalf("current_conns = %v, want 1", snap["current_conns"])
	}
	if snap["malformed_frames"].(int64) != 1 {
		t.Fatalf("malformed_frames = %v", snap["malformed_frames"])
	}
	if snap["bytes_in"].(int64) != 10 || snap["bytes_out"].(int64) != 23 {
		t.Fatalf("bytes = %v/%v", snap["bytes_in"], snap["bytes_out"])
	}
	if snap["avg_tick_ms"].(float64) != 2 || snap["avg_tick_ms_window"].(float64) != 2 {
		t.Fatalf("tick avgs = %v/%v", snap["avg_tick_ms"], snap["avg_tick_ms_window"])
	}
}
