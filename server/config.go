package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 服务端配置：内置默认值，可被 yaml 文件覆盖
type Config struct {
	Addr     string `yaml:"addr"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	TickRate int `yaml:"tick_rate"` // 每秒 Tick 次数
	MaxConns int `yaml:"max_conns"` // 并发连接上限，超出即拒绝

	BalloonCeiling  int     `yaml:"balloon_ceiling"`   // 场上气球数上限
	SpawnEveryTicks int     `yaml:"spawn_every_ticks"` // 每隔多少 Tick 评估一次生成；0 表示取 tick_rate/2
	WorldWidth      float64 `yaml:"world_width"`
	WorldHeight     float64 `yaml:"world_height"`
	BalloonSize     float64 `yaml:"balloon_size"` // 气球占位边长，生成位置会预留
	PopAward        uint32  `yaml:"pop_award"`    // 每次戳破的加分
}

// DefaultConfig 默认参数（60 TPS，10 人，800x600 世界）
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		LogFile:         "app.log",
		LogLevel:        "debug",
		TickRate:        60,
		MaxConns:        10,
		BalloonCeiling:  24,
		SpawnEveryTicks: 0,
		WorldWidth:      800,
		WorldHeight:     600,
		BalloonSize:     48,
		PopAward:        5,
	}
}

// LoadConfig 读取 yaml 配置；path 为空则直接用默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.SpawnEveryTicks == 0 {
		c.SpawnEveryTicks = c.TickRate / 2
	}
}

// Validate 拒绝无意义的取值，避免运行期才暴露
func (c Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("config: tick_rate must be positive, got %d", c.TickRate)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("config: max_conns must be at least 1, got %d", c.MaxConns)
	}
	if c.BalloonCeiling < 1 {
		return fmt.Errorf("config: balloon_ceiling must be at least 1, got %d", c.BalloonCeiling)
	}
	if c.WorldWidth <= c.BalloonSize || c.WorldHeight <= c.BalloonSize {
		return fmt.Errorf("config: world %vx%v cannot fit balloon size %v", c.WorldWidth, c.WorldHeight, c.BalloonSize)
	}
	return nil
}
