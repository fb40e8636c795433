package autocollect

import (
	"context"
	"sync"
	"testing"
	"time"

	"botmarket_miner/internal/achievements"
	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Worker, *game.Engine, *clock) {
	t.Helper()
	g := config.DefaultGame()
	ck := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	var engine *game.Engine
	store := game.NewMemStore(func(userID int64) game.Ledger { return engine.NewLedger(userID) })
	engine = game.NewEngine(store, &g, achievements.Evaluate)
	engine.SetClock(ck.Now)
	return NewWorker(engine, store, time.Second), engine, ck
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("collects only enabled users past their interval", func(t *testing.T) {
		worker, engine, ck := setup(t)
		for _, uid := range []int64{1, 2} {
			if _, err := engine.BuyBot(ctx, uid, "basic_miner"); err != nil {
				t.Fatalf("buy user=%d: %v", uid, err)
			}
		}
		if _, err := engine.SetAutoCollect(ctx, 1, true, 0); err != nil {
			t.Fatalf("enable: %v", err)
		}
		ck.Advance(2 * time.Hour)

		n, err := worker.Sweep(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 1 {
			t.Fatalf("collected for %d users, want 1", n)
		}

		enabled, _, err := engine.State(ctx, 1)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		disabled, acc, err := engine.State(ctx, 2)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if enabled.Balance <= disabled.Balance {
			t.Fatalf("enabled user %d not ahead of disabled %d", enabled.Balance, disabled.Balance)
		}
		if acc.Pending == 0 {
			t.Fatalf("disabled user should still have pending accrual")
		}
	})

	t.Run("second sweep inside the interval is idle", func(t *testing.T) {
		worker, engine, ck := setup(t)
		if _, err := engine.BuyBot(ctx, 1, "basic_miner"); err != nil {
			t.Fatalf("buy: %v", err)
		}
		if _, err := engine.SetAutoCollect(ctx, 1, true, 0); err != nil {
			t.Fatalf("enable: %v", err)
		}
		ck.Advance(time.Hour)
		if _, err := worker.Sweep(ctx); err != nil {
			t.Fatalf("first sweep: %v", err)
		}
		ck.Advance(time.Second)
		n, err := worker.Sweep(ctx)
		if err != nil {
			t.Fatalf("second sweep: %v", err)
		}
		if n != 0 {
			t.Fatalf("collected %d inside the tier interval, want 0", n)
		}
	})
}
