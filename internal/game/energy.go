package game

import "time"

// RegenerateEnergy applies whole-interval regeneration to the ledger in
// place, regenRate units per whole interval. Partial intervals carry over:
// lastEnergyUpdate advances by the number of whole intervals consumed, never
// jumps to now, so a tap at T+599s followed by a read at T+601s still yields
// exactly one tick for interval 600s. The one exception is the cap: once
// energy is pinned at max the anchor is reset to now, otherwise the stale
// anchor would grant an instant refill after the next spend.
func RegenerateEnergy(l *Ledger, maxEnergy, regenRate int64, regenInterval time.Duration, now time.Time) {
	if l.Energy >= maxEnergy {
		l.Energy = maxEnergy
		l.LastEnergyUpdate = now
		return
	}
	if regenInterval <= 0 || regenRate <= 0 {
		return
	}
	elapsed := now.Sub(l.LastEnergyUpdate)
	if elapsed <= 0 {
		return
	}
	ticks := int64(elapsed / regenInterval)
	if ticks == 0 {
		return
	}
	l.Energy += ticks * regenRate
	if l.Energy >= maxEnergy {
		l.Energy = maxEnergy
		l.LastEnergyUpdate = now
		return
	}
	l.LastEnergyUpdate = l.LastEnergyUpdate.Add(time.Duration(ticks) * regenInterval)
}
