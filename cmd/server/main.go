package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"botmarket_miner/internal/achievements"
	"botmarket_miner/internal/api"
	"botmarket_miner/internal/autocollect"
	"botmarket_miner/internal/config"
	"botmarket_miner/internal/db"
	"botmarket_miner/internal/game"
	"botmarket_miner/internal/leaderboard"
	"botmarket_miner/internal/lottery"
	"botmarket_miner/internal/monitoring"
	"botmarket_miner/internal/telegram"
	"botmarket_miner/internal/tgbot"
	"botmarket_miner/internal/wheel"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The engine owns the new-ledger shape, so the store gets its factory
	// from a throwaway engine bound to the same config.
	seed := game.NewEngine(nil, &cfg.Game, nil)

	var store game.LedgerStore
	var pg *db.Store
	if cfg.DatabaseURL != "" {
		var err error
		pg, err = db.Connect(ctx, cfg.DatabaseURL, seed.NewLedger)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
		store = pg
		log.Printf("storage: postgres")
	} else {
		store = game.NewMemStore(seed.NewLedger)
		log.Printf("storage: in-memory (no DATABASE_URL)")
	}
	defer store.Close()

	engine := game.NewEngine(store, &cfg.Game, achievements.Evaluate)

	board, err := leaderboard.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("leaderboard: disabled: %v", err)
		board = leaderboard.New(nil)
	}
	defer board.Close()
	engine.AfterMutation = func(l game.Ledger) {
		board.Record(l.UserID, l.TotalEarned)
	}

	metrics := monitoring.New()
	engine.OnAchievement = func(string) { metrics.ObserveAchievement() }
	sessions := telegram.NewSessions(cfg.JWTSecret)
	wheelSvc := wheel.NewService(engine, &cfg.Game)

	var lotteryBackend lottery.Backend
	if pg != nil {
		lotteryBackend = pg
	} else {
		lotteryBackend = lottery.NewMemBackend()
	}
	lotterySvc := lottery.NewService(engine, lotteryBackend, &cfg.Game)

	var wg sync.WaitGroup

	if cfg.RunAutoCollect {
		worker := autocollect.NewWorker(engine, store, time.Duration(cfg.Game.AutoCollectSweepSec)*time.Second)
		worker.Gauge = metrics.SetAutoCollectUsers
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	if cfg.RunLottery {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lotterySvc.Run(ctx, time.Minute)
		}()
	}

	if cfg.RunBot && cfg.BotToken != "" {
		bot, err := tgbot.New(&cfg, engine)
		if err != nil {
			log.Printf("tgbot: disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bot.Run(ctx)
			}()
		}
	}

	if cfg.RunAPI {
		server := api.NewServer(&cfg, engine, sessions, wheelSvc, lotterySvc, board, metrics, journalReader(pg))
		httpSrv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("api: listening on :%s", cfg.Port)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("api: server error: %v", err)
				stop()
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	log.Printf("shutting down")
	wg.Wait()
}

// journalReader keeps the API's history endpoint nil-safe under the memory
// store: a typed nil *db.Store must not reach the interface value.
func journalReader(pg *db.Store) api.JournalReader {
	if pg == nil {
		return nil
	}
	return pg
}
