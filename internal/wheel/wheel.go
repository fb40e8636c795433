// Package wheel implements the prize wheel. It never touches ledger state
// directly: the spin cost and the prize flow through the engine's external
// debit and credit operations, so wheel outcomes share the journal and the
// achievement pipeline with every other coin source.
package wheel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
)

const (
	kindSpin  = "wheel_spin"
	kindPrize = "wheel_prize"
)

type Service struct {
	engine *game.Engine
	game   *config.Game

	mu   sync.Mutex
	rand *rand.Rand
}

func NewService(engine *game.Engine, g *config.Game) *Service {
	return &Service{
		engine: engine,
		game:   g,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSeed re-seeds the prize source, for tests.
func (s *Service) SetSeed(seed int64) {
	s.mu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.mu.Unlock()
}

// pick walks the cumulative distribution. Probabilities that do not sum to 1
// leave a tail that falls through to the last prize.
func (s *Service) pick() config.WheelPrize {
	s.mu.Lock()
	roll := s.rand.Float64()
	s.mu.Unlock()

	var cum float64
	for _, p := range s.game.WheelPrizes {
		cum += p.Probability
		if roll < cum {
			return p
		}
	}
	return s.game.WheelPrizes[len(s.game.WheelPrizes)-1]
}

// SpinResult reports one wheel spin.
type SpinResult struct {
	Prize   int64       `json:"prize"`
	Cost    int64       `json:"cost"`
	Balance int64       `json:"balance"`
	Ledger  game.Ledger `json:"-"`
}

// Spin charges the spin cost, then credits a weighted random prize. Both
// legs journal under the same spin id so a replay cannot double-charge or
// double-pay.
func (s *Service) Spin(ctx context.Context, userID int64) (SpinResult, error) {
	if len(s.game.WheelPrizes) == 0 {
		return SpinResult{}, game.ErrInvalidAmount
	}
	spinID := uuid.NewString()
	if _, err := s.engine.Debit(ctx, userID, "wheel_spin:"+spinID, kindSpin, s.game.WheelSpinCost); err != nil {
		return SpinResult{}, err
	}
	prize := s.pick()
	ledger, err := s.engine.Credit(ctx, userID, "wheel_prize:"+spinID, kindPrize, prize.Amount)
	if err != nil {
		return SpinResult{}, err
	}
	return SpinResult{
		Prize:   prize.Amount,
		Cost:    s.game.WheelSpinCost,
		Balance: ledger.Balance,
		Ledger:  ledger,
	}, nil
}

// Prizes exposes the configured prize table for the client wheel layout.
func (s *Service) Prizes() []config.WheelPrize {
	return s.game.WheelPrizes
}
