// Package achievements evaluates achievement progress against a user ledger.
// Evaluation is pure bookkeeping: the caller owns the ledger lock and decides
// what to do with newly completed definitions (the engine credits rewards in
// the same transaction).
package achievements

import (
	"time"

	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
)

func metricValue(l *game.Ledger, g *config.Game, metric config.AchievementMetric) int64 {
	switch metric {
	case config.MetricTotalEarned:
		return l.TotalEarned
	case config.MetricBotsOwned:
		return l.TotalBotsOwned()
	case config.MetricMaxLevel:
		return int64(l.MaxBotLevel())
	case config.MetricHourlyRate:
		return game.HourlyRate(l, g)
	case config.MetricBotTypes:
		var n int64
		for _, b := range l.Bots {
			if b.Owned > 0 {
				n++
			}
		}
		return n
	}
	return 0
}

// Evaluate refreshes progress for every achievement and returns the
// definitions that crossed their threshold in this pass. Completed
// achievements are monotonic: once set they are never re-returned, which
// makes the reward credit idempotent across retries.
func Evaluate(l *game.Ledger, g *config.Game, now time.Time) []config.AchievementDef {
	if l.Achievements == nil {
		l.Achievements = make(map[string]game.AchievementState)
	}
	var completed []config.AchievementDef
	for _, def := range g.Achievements {
		st := l.Achievements[def.Key]
		if st.Completed {
			continue
		}
		v := metricValue(l, g, def.Metric)
		if v > st.Progress {
			st.Progress = v
		}
		if st.Progress >= def.Threshold {
			st.Completed = true
			t := now
			st.CompletedAt = &t
			completed = append(completed, def)
		}
		l.Achievements[def.Key] = st
	}
	return completed
}
