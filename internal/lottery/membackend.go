package lottery

import (
	"context"
	"sync"
	"time"

	"botmarket_miner/internal/db"
)

// MemBackend keeps rounds and tickets in memory for runs without Postgres.
type MemBackend struct {
	mu      sync.Mutex
	nextID  int64
	open    *db.Round
	drawn   []db.Round
	tickets map[int64][]int64
}

func NewMemBackend() *MemBackend {
	return &MemBackend{nextID: 1, tickets: make(map[int64][]int64)}
}

func (m *MemBackend) OpenRound(ctx context.Context) (db.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil {
		m.open = &db.Round{RoundID: m.nextID, Status: "open", OpenedAt: time.Now()}
		m.nextID++
	}
	return *m.open, nil
}

func (m *MemBackend) AddTicket(ctx context.Context, roundID, userID, price int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil || m.open.RoundID != roundID {
		return db.ErrNoOpenRound
	}
	m.open.Pot += price
	m.tickets[roundID] = append(m.tickets[roundID], userID)
	return nil
}

func (m *MemBackend) RoundTickets(ctx context.Context, roundID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.tickets[roundID]
	out := make([]int64, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemBackend) UserTickets(ctx context.Context, roundID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range m.tickets[roundID] {
		if id == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemBackend) CloseRound(ctx context.Context, roundID int64, winnerID *int64, prize int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil || m.open.RoundID != roundID {
		return db.ErrNoOpenRound
	}
	r := *m.open
	r.Status = "drawn"
	r.WinnerID = winnerID
	r.Prize = &prize
	t := now
	r.DrawnAt = &t
	m.drawn = append(m.drawn, r)
	m.open = nil
	return nil
}

func (m *MemBackend) LastDrawnRound(ctx context.Context) (db.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drawn) == 0 {
		return db.Round{}, db.ErrNoOpenRound
	}
	return m.drawn[len(m.drawn)-1], nil
}
