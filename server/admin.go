package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// HandleAdminConfig 提供生成参数的读取与热更新
// GET  /admin/config  返回当前可调项
// POST /admin/config  以 JSON 载荷更新部分字段
func (g *Game) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	type cfg struct {
		BalloonCeiling  *int64 `json:"balloonCeiling,omitempty"`
		SpawnEveryTicks *int64 `json:"spawnEveryTicks,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		ceiling := atomic.LoadInt64(&g.ceiling)
		every := atomic.LoadInt64(&g.spawnEvery)
		cur := cfg{BalloonCeiling: &ceiling, SpawnEveryTicks: &every}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cur)
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.BalloonCeiling != nil && *body.BalloonCeiling > 0 {
			atomic.StoreInt64(&g.ceiling, *body.BalloonCeiling)
		}
		if body.SpawnEveryTicks != nil && *body.SpawnEveryTicks > 0 {
			atomic.StoreInt64(&g.spawnEvery, *body.SpawnEveryTicks)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		Log.Infof("config updated: ceiling=%d spawnEvery=%d",
			atomic.LoadInt64(&g.ceiling), atomic.LoadInt64(&g.spawnEvery))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (g *Game) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"tick":    atomic.LoadInt64(&g.tel.TickCount),
		"metrics": g.tel.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
