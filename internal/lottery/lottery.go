// Package lottery sells tickets into a shared pot and pays a winner on a
// fixed interval. Coin movement goes through the engine's external
// debit/credit path; round and ticket bookkeeping sits behind Backend so the
// Postgres store and the in-memory fallback are interchangeable.
package lottery

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"botmarket_miner/internal/config"
	"botmarket_miner/internal/db"
	"botmarket_miner/internal/game"
)

const (
	kindTicket = "lottery_ticket"
	kindWin    = "lottery_win"
)

// Backend stores rounds and tickets. *db.Store satisfies it.
type Backend interface {
	OpenRound(ctx context.Context) (db.Round, error)
	AddTicket(ctx context.Context, roundID, userID, price int64) error
	RoundTickets(ctx context.Context, roundID int64) ([]int64, error)
	UserTickets(ctx context.Context, roundID, userID int64) (int64, error)
	CloseRound(ctx context.Context, roundID int64, winnerID *int64, prize int64, now time.Time) error
	LastDrawnRound(ctx context.Context) (db.Round, error)
}

type Service struct {
	engine  *game.Engine
	backend Backend
	game    *config.Game

	now func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

func NewService(engine *game.Engine, backend Backend, g *config.Game) *Service {
	return &Service{
		engine:  engine,
		backend: backend,
		game:    g,
		now:     time.Now,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TicketResult reports a ticket purchase.
type TicketResult struct {
	RoundID int64 `json:"round_id"`
	Tickets int64 `json:"tickets"`
	Pot     int64 `json:"pot"`
	Balance int64 `json:"balance"`
}

// BuyTicket debits the ticket price and enters the user into the open round.
// A backend failure after the debit refunds through an external credit keyed
// to the same purchase.
func (s *Service) BuyTicket(ctx context.Context, userID int64) (TicketResult, error) {
	round, err := s.backend.OpenRound(ctx)
	if err != nil {
		return TicketResult{}, err
	}
	purchaseID := fmt.Sprintf("lottery_ticket:%d:%d:%d", round.RoundID, userID, s.now().UnixNano())
	if _, err := s.engine.Debit(ctx, userID, purchaseID, kindTicket, s.game.LotteryTicketPrice); err != nil {
		return TicketResult{}, err
	}
	if err := s.backend.AddTicket(ctx, round.RoundID, userID, s.game.LotteryTicketPrice); err != nil {
		if _, refundErr := s.engine.Credit(ctx, userID, "refund:"+purchaseID, kindTicket, s.game.LotteryTicketPrice); refundErr != nil {
			log.Printf("lottery: refund failed user=%d: %v", userID, refundErr)
		}
		return TicketResult{}, err
	}
	tickets, err := s.backend.UserTickets(ctx, round.RoundID, userID)
	if err != nil {
		return TicketResult{}, err
	}
	ledger, _, err := s.engine.State(ctx, userID)
	if err != nil {
		return TicketResult{}, err
	}
	return TicketResult{
		RoundID: round.RoundID,
		Tickets: tickets,
		Pot:     round.Pot + s.game.LotteryTicketPrice,
		Balance: ledger.Balance,
	}, nil
}

// Status describes the open round for a user plus the last draw.
type Status struct {
	RoundID     int64     `json:"round_id"`
	Pot         int64     `json:"pot"`
	PrizeShare  int64     `json:"prize_share"`
	YourTickets int64     `json:"your_tickets"`
	TicketPrice int64     `json:"ticket_price"`
	OpenedAt    time.Time `json:"opened_at"`
	NextDrawAt  time.Time `json:"next_draw_at"`
	LastRound   *db.Round `json:"last_round,omitempty"`
}

func (s *Service) Status(ctx context.Context, userID int64) (Status, error) {
	round, err := s.backend.OpenRound(ctx)
	if err != nil {
		return Status{}, err
	}
	tickets, err := s.backend.UserTickets(ctx, round.RoundID, userID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		RoundID:     round.RoundID,
		Pot:         round.Pot,
		PrizeShare:  round.Pot * s.game.LotteryPotPct / 100,
		YourTickets: tickets,
		TicketPrice: s.game.LotteryTicketPrice,
		OpenedAt:    round.OpenedAt,
		NextDrawAt:  round.OpenedAt.Add(time.Duration(s.game.LotteryDrawHours) * time.Hour),
	}
	if last, err := s.backend.LastDrawnRound(ctx); err == nil {
		st.LastRound = &last
	}
	return st, nil
}

// Draw closes the open round when its interval has elapsed and pays the
// winner their pot share. Rounds with no tickets close without a payout.
func (s *Service) Draw(ctx context.Context) error {
	round, err := s.backend.OpenRound(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	if now.Sub(round.OpenedAt) < time.Duration(s.game.LotteryDrawHours)*time.Hour {
		return nil
	}
	tickets, err := s.backend.RoundTickets(ctx, round.RoundID)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return s.backend.CloseRound(ctx, round.RoundID, nil, 0, now)
	}

	s.mu.Lock()
	winner := tickets[s.rand.Intn(len(tickets))]
	s.mu.Unlock()

	prize := round.Pot * s.game.LotteryPotPct / 100
	if err := s.backend.CloseRound(ctx, round.RoundID, &winner, prize, now); err != nil {
		return err
	}
	if prize > 0 {
		eventID := fmt.Sprintf("lottery_win:%d", round.RoundID)
		if _, err := s.engine.Credit(ctx, winner, eventID, kindWin, prize); err != nil {
			return err
		}
	}
	log.Printf("lottery: round=%d winner=%d prize=%d tickets=%d", round.RoundID, winner, prize, len(tickets))
	return nil
}

// Run draws on a fixed sweep until the context ends.
func (s *Service) Run(ctx context.Context, sweep time.Duration) {
	if sweep <= 0 {
		sweep = time.Minute
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()
	log.Printf("lottery: worker started sweep=%s draw_every=%dh", sweep, s.game.LotteryDrawHours)
	for {
		select {
		case <-ctx.Done():
			log.Printf("lottery: worker stopped")
			return
		case <-ticker.C:
			if err := s.Draw(ctx); err != nil {
				log.Printf("lottery: draw error: %v", err)
			}
		}
	}
}
