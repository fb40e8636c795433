package game

import (
	"time"

	"botmarket_miner/internal/config"
)

// Accrual is a read-only view of pending passive income.
type Accrual struct {
	Pending     int64 `json:"pending"`
	HourlyRate  int64 `json:"hourly_rate"`
	StorageFull bool  `json:"storage_full"`
	CapHours    int64 `json:"cap_hours"`
}

// Accrue computes passive income earned since the last claim, capped at the
// storage tier's accrual window. Negative elapsed time (clock skew) yields
// zero, never a debit. Pending is floored per whole second so repeated reads
// are monotonic between claims.
func Accrue(l *Ledger, g *config.Game, now time.Time) Accrual {
	tier := g.StorageTier(l.StorageLevel)
	acc := Accrual{
		HourlyRate: HourlyRate(l, g),
		CapHours:   tier.MaxAccrualHours,
	}
	if acc.HourlyRate <= 0 {
		return acc
	}
	elapsed := now.Sub(l.LastClaim)
	if elapsed <= 0 {
		return acc
	}
	capDur := time.Duration(tier.MaxAccrualHours) * time.Hour
	if elapsed >= capDur {
		elapsed = capDur
		acc.StorageFull = true
	}
	secs := int64(elapsed / time.Second)
	acc.Pending = acc.HourlyRate * secs / 3600
	return acc
}
