// Package autocollect runs the background claim sweep. Each pass asks the
// store for users with auto-collect enabled and issues an auto claim per
// user; the engine applies the per-tier interval gate, so sweeping more often
// than a tier's interval is harmless.
package autocollect

import (
	"context"
	"errors"
	"log"
	"time"

	"botmarket_miner/internal/game"
)

type Worker struct {
	engine *game.Engine
	store  game.LedgerStore
	sweep  time.Duration

	// Gauge, when set, receives the number of enabled users each sweep.
	Gauge func(enabled int)
}

func NewWorker(engine *game.Engine, store game.LedgerStore, sweep time.Duration) *Worker {
	if sweep <= 0 {
		sweep = 15 * time.Second
	}
	return &Worker{engine: engine, store: store, sweep: sweep}
}

// Sweep runs one collection pass and returns how many users got a payout.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	ids, err := w.store.ListAutoCollect(ctx)
	if err != nil {
		return 0, err
	}
	if w.Gauge != nil {
		w.Gauge(len(ids))
	}
	collected := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return collected, ctx.Err()
		}
		res, err := w.engine.Claim(ctx, id, true)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return collected, err
			}
			log.Printf("autocollect: user=%d claim error: %v", id, err)
			continue
		}
		if res.Claimed > 0 {
			collected++
		}
	}
	return collected, nil
}

// Run sweeps until the context ends.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()
	log.Printf("autocollect: worker started sweep=%s", w.sweep)
	for {
		select {
		case <-ctx.Done():
			log.Printf("autocollect: worker stopped")
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				log.Printf("autocollect: sweep error: %v", err)
			} else if n > 0 {
				log.Printf("autocollect: collected for %d users", n)
			}
		}
	}
}
