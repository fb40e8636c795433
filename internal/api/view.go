package api

import (
	"time"

	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
)

type botView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Level           int    `json:"level"`
	Owned           int    `json:"owned"`
	MaxLevel        int    `json:"max_level"`
	BuyCost         int64  `json:"buy_cost"`
	UpgradeCost     int64  `json:"upgrade_cost,omitempty"`
	EarningsPerHour int64  `json:"earnings_per_hour"`
}

type storageView struct {
	Level       int   `json:"level"`
	CapHours    int64 `json:"cap_hours"`
	UpgradeCost int64 `json:"upgrade_cost,omitempty"`
	MaxLevel    bool  `json:"max_level"`
}

type autoCollectView struct {
	Enabled        bool  `json:"enabled"`
	Level          int   `json:"level"`
	Unlocked       int   `json:"unlocked"`
	IntervalSec    int64 `json:"interval_sec"`
	NextUnlockCost int64 `json:"next_unlock_cost,omitempty"`
}

type achievementView struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Progress  int64  `json:"progress"`
	Threshold int64  `json:"threshold"`
	Reward    int64  `json:"reward"`
	Completed bool   `json:"completed"`
}

type stateView struct {
	UserID      int64 `json:"user_id"`
	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`

	Energy    int64 `json:"energy"`
	MaxEnergy int64 `json:"max_energy"`

	HourlyRate  int64 `json:"hourly_rate"`
	Pending     int64 `json:"pending"`
	StorageFull bool  `json:"storage_full"`

	Bots         []botView         `json:"bots"`
	Storage      storageView       `json:"storage"`
	AutoCollect  autoCollectView   `json:"auto_collect"`
	Achievements []achievementView `json:"achievements"`

	DailyStreak     int    `json:"daily_streak"`
	DailyClaimedFor string `json:"daily_claimed_for,omitempty"`

	ServerTime time.Time `json:"server_time"`
}

func buildState(l game.Ledger, acc game.Accrual, g *config.Game, now time.Time) stateView {
	sv := stateView{
		UserID:          l.UserID,
		Balance:         l.Balance,
		TotalEarned:     l.TotalEarned,
		Energy:          l.Energy,
		MaxEnergy:       g.MaxEnergy,
		HourlyRate:      acc.HourlyRate,
		Pending:         acc.Pending,
		StorageFull:     acc.StorageFull,
		DailyStreak:     l.DailyStreak,
		DailyClaimedFor: l.LastDailyClaim,
		ServerTime:      now,
	}

	sv.Bots = make([]botView, 0, len(g.Bots))
	for _, def := range g.Bots {
		st := l.Bots[def.ID]
		level := st.Level
		if level < 1 {
			level = 1
		}
		bv := botView{
			ID:              def.ID,
			Name:            def.Name,
			Level:           st.Level,
			Owned:           st.Owned,
			MaxLevel:        def.MaxLevel,
			BuyCost:         game.Cost(def, level, g.CostGrowthMult),
			EarningsPerHour: game.EarningsPerHour(def, level, g.EarningGrowthMult),
		}
		if st.Owned > 0 && st.Level < def.MaxLevel {
			bv.UpgradeCost = game.UpgradeCost(def, st.Level, g.CostGrowthMult)
		}
		sv.Bots = append(sv.Bots, bv)
	}

	tier := g.StorageTier(l.StorageLevel)
	sv.Storage = storageView{
		Level:    l.StorageLevel,
		CapHours: tier.MaxAccrualHours,
		MaxLevel: l.StorageLevel >= len(g.StorageTiers),
	}
	if !sv.Storage.MaxLevel {
		sv.Storage.UpgradeCost = tier.UpgradeCost
	}

	ac := g.AutoCollectTier(l.AutoCollectLevel)
	sv.AutoCollect = autoCollectView{
		Enabled:     l.AutoCollectEnabled,
		Level:       l.AutoCollectLevel,
		Unlocked:    l.AutoCollectUnlocked,
		IntervalSec: ac.IntervalSec,
	}
	if l.AutoCollectUnlocked < len(g.AutoCollectTiers) {
		sv.AutoCollect.NextUnlockCost = g.AutoCollectTier(l.AutoCollectUnlocked + 1).UnlockCost
	}

	sv.Achievements = make([]achievementView, 0, len(g.Achievements))
	for _, def := range g.Achievements {
		st := l.Achievements[def.Key]
		sv.Achievements = append(sv.Achievements, achievementView{
			Key:       def.Key,
			Name:      def.Name,
			Progress:  st.Progress,
			Threshold: def.Threshold,
			Reward:    def.Reward,
			Completed: st.Completed,
		})
	}
	return sv
}
