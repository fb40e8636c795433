package game

import (
	"testing"
	"time"
)

func TestRegenerateEnergy(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 600 * time.Second

	t.Run("whole intervals only", func(t *testing.T) {
		l := &Ledger{Energy: 100, LastEnergyUpdate: base}
		RegenerateEnergy(l, 1000, 1, interval, base.Add(599*time.Second))
		if l.Energy != 100 {
			t.Fatalf("energy = %d, want 100", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(base) {
			t.Fatalf("anchor moved on partial interval")
		}
	})

	t.Run("partial interval carries over", func(t *testing.T) {
		l := &Ledger{Energy: 100, LastEnergyUpdate: base}
		RegenerateEnergy(l, 1000, 1, interval, base.Add(599*time.Second))
		RegenerateEnergy(l, 1000, 1, interval, base.Add(601*time.Second))
		if l.Energy != 101 {
			t.Fatalf("energy = %d, want 101", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(base.Add(600 * time.Second)) {
			t.Fatalf("anchor = %v, want base+600s", l.LastEnergyUpdate)
		}
	})

	t.Run("multiple intervals", func(t *testing.T) {
		l := &Ledger{Energy: 100, LastEnergyUpdate: base}
		RegenerateEnergy(l, 1000, 1, interval, base.Add(90*time.Minute))
		if l.Energy != 109 {
			t.Fatalf("energy = %d, want 109", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(base.Add(9 * 600 * time.Second)) {
			t.Fatalf("anchor = %v, want base+5400s", l.LastEnergyUpdate)
		}
	})

	t.Run("clamps at max", func(t *testing.T) {
		l := &Ledger{Energy: 999, LastEnergyUpdate: base}
		now := base.Add(24 * time.Hour)
		RegenerateEnergy(l, 1000, 1, interval, now)
		if l.Energy != 1000 {
			t.Fatalf("energy = %d, want 1000", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(now) {
			t.Fatalf("anchor should reset to now at cap")
		}
	})

	t.Run("no instant refill after spend at cap", func(t *testing.T) {
		l := &Ledger{Energy: 1000, LastEnergyUpdate: base}
		now := base.Add(2 * time.Hour)
		RegenerateEnergy(l, 1000, 1, interval, now)
		l.Energy -= 5
		RegenerateEnergy(l, 1000, 1, interval, now.Add(time.Second))
		if l.Energy != 995 {
			t.Fatalf("energy = %d, want 995", l.Energy)
		}
	})

	t.Run("rate scales each tick", func(t *testing.T) {
		l := &Ledger{Energy: 100, LastEnergyUpdate: base}
		RegenerateEnergy(l, 1000, 5, interval, base.Add(600*time.Second))
		if l.Energy != 105 {
			t.Fatalf("energy = %d, want 105 at rate 5", l.Energy)
		}
		RegenerateEnergy(l, 1000, 5, interval, base.Add(30*time.Minute))
		if l.Energy != 115 {
			t.Fatalf("energy = %d, want 115 after two more ticks", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(base.Add(30 * time.Minute)) {
			t.Fatalf("anchor = %v, want base+30m", l.LastEnergyUpdate)
		}
	})

	t.Run("rate clamps at max", func(t *testing.T) {
		l := &Ledger{Energy: 995, LastEnergyUpdate: base}
		now := base.Add(600 * time.Second)
		RegenerateEnergy(l, 1000, 50, interval, now)
		if l.Energy != 1000 {
			t.Fatalf("energy = %d, want 1000", l.Energy)
		}
		if !l.LastEnergyUpdate.Equal(now) {
			t.Fatalf("anchor should reset to now at cap")
		}
	})

	t.Run("clock skew is a no-op", func(t *testing.T) {
		l := &Ledger{Energy: 100, LastEnergyUpdate: base}
		RegenerateEnergy(l, 1000, 1, interval, base.Add(-time.Hour))
		if l.Energy != 100 || !l.LastEnergyUpdate.Equal(base) {
			t.Fatalf("backwards clock changed state: energy=%d", l.Energy)
		}
	})
}
