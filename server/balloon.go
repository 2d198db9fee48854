package server

import "math/rand"

// Balloon 场上的气球：由引擎生成，唯一的消亡途径是被有效戳破
type Balloon struct {
	ID      uint32
	X, Y    float32
	Hue     uint16  // 纯装饰用色相，0–359
	Created float64 // 生成时刻（Unix 毫秒）
}

// newBalloon 在世界边界内随机落位（预留气球自身的占位），随机色相
func newBalloon(id uint32, rng *rand.Rand, worldW, worldH, size float64, created float64) *Balloon {
	return &Balloon{
		ID:      id,
		X:       float32(rng.Float64() * (worldW - size)),
		Y:       float32(rng.Float64() * (worldH - size)),
		Hue:     uint16(rng.Intn(360)),
		Created: created,
	}
}
