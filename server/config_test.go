package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 60 || cfg.MaxConns != 10 {
		t.Fatalf("defaults = tick %d, conns %d", cfg.TickRate, cfg.MaxConns)
	}
	// spawn_every_ticks 为 0 时归一化为 tick_rate/2
	if cfg.SpawnEveryTicks != 30 {
		t.Fatalf("spawn_every_ticks = %d, want 30", cfg.SpawnEveryTicks)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "tick_rate: 30\nmax_conns: 4\nballoon_ceiling: 8\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 30 || cfg.MaxConns != 4 || cfg.BalloonCeiling != 8 {
		t.Fatalf("loaded = %+v", cfg)
	}
	if cfg.SpawnEveryTicks != 15 {
		t.Fatalf("spawn_every_ticks = %d, want 15", cfg.SpawnEveryTicks)
	}
	// 未写的字段保留默认
	if cfg.WorldWidth != 800 {
		t.Fatalf("world_width = %v, want default 800", cfg.WorldWidth)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero tick rate", "tick_rate: -1\n"},
		{"no capacity", "max_conns: 0\n"},
		{"no ceiling", "balloon_ceiling: 0\n"},
		{"world too small", "world_width: 10\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}
