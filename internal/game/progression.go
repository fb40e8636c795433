package game

import (
	"math"

	"botmarket_miner/internal/config"
)

// Cost of buying one unit of a bot at the given level.
func Cost(def config.BotDef, level int, mult float64) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(float64(def.BaseCost) * math.Pow(mult, float64(level-1))))
}

// UpgradeCost to move a bot from level to level+1.
func UpgradeCost(def config.BotDef, level int, mult float64) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(float64(def.BaseCost) * math.Pow(mult, float64(level))))
}

// EarningsPerHour of a single unit of a bot at the given level.
func EarningsPerHour(def config.BotDef, level int, mult float64) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(float64(def.BaseEarningsPerHour) * math.Pow(mult, float64(level-1))))
}

// StorageUpgradeCost to leave the given storage level.
func StorageUpgradeCost(base int64, level int, mult float64) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(float64(base) * math.Pow(mult, float64(level-1))))
}

// HourlyRate sums per-hour earnings across all owned bots.
func HourlyRate(l *Ledger, g *config.Game) int64 {
	var total int64
	for id, b := range l.Bots {
		if b.Owned == 0 {
			continue
		}
		def, ok := g.BotDef(id)
		if !ok {
			continue
		}
		total += EarningsPerHour(def, b.Level, g.EarningGrowthMult) * int64(b.Owned)
	}
	return total
}
