package game

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory LedgerStore. It backs tests and single-node runs
// without Postgres; per-user mutexes give the same serialization guarantee as
// the row-locked store.
type MemStore struct {
	mu        sync.Mutex
	slots     map[int64]*memSlot
	newLedger func(userID int64) Ledger

	journalMu sync.Mutex
	journal   []JournalEntry
	seen      map[string]struct{}
}

type memSlot struct {
	mu     sync.Mutex
	ledger Ledger
}

// NewMemStore builds a store that initializes fresh ledgers through newLedger.
func NewMemStore(newLedger func(userID int64) Ledger) *MemStore {
	return &MemStore{
		slots:     make(map[int64]*memSlot),
		newLedger: newLedger,
		seen:      make(map[string]struct{}),
	}
}

func (s *MemStore) slot(userID int64) *memSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[userID]
	if !ok {
		sl = &memSlot{ledger: s.newLedger(userID)}
		s.slots[userID] = sl
	}
	return sl
}

// Get is a pure read and does not create the ledger on a miss; first access
// goes through Mutate.
func (s *MemStore) Get(ctx context.Context, userID int64) (Ledger, error) {
	s.mu.Lock()
	sl, ok := s.slots[userID]
	s.mu.Unlock()
	if !ok {
		return Ledger{}, ErrLedgerNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.ledger.Clone(), nil
}

func (s *MemStore) Mutate(ctx context.Context, userID int64, fn MutateFunc) (Ledger, error) {
	if err := ctx.Err(); err != nil {
		return Ledger{}, err
	}
	sl := s.slot(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	work := sl.ledger.Clone()
	entries, err := fn(&work)
	if err != nil {
		return Ledger{}, err
	}
	if len(entries) > 0 {
		s.journalMu.Lock()
		for _, en := range entries {
			if _, dup := s.seen[en.EventID]; dup {
				s.journalMu.Unlock()
				return Ledger{}, ErrDuplicateEvent
			}
		}
		for _, en := range entries {
			s.seen[en.EventID] = struct{}{}
		}
		s.journal = append(s.journal, entries...)
		s.journalMu.Unlock()
	}
	sl.ledger = work
	return work.Clone(), nil
}

func (s *MemStore) ListAutoCollect(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	ids := make([]int64, 0)
	slots := make([]*memSlot, 0, len(s.slots))
	users := make([]int64, 0, len(s.slots))
	for id, sl := range s.slots {
		slots = append(slots, sl)
		users = append(users, id)
	}
	s.mu.Unlock()

	for i, sl := range slots {
		sl.mu.Lock()
		if sl.ledger.AutoCollectEnabled {
			ids = append(ids, users[i])
		}
		sl.mu.Unlock()
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

// Journal returns a copy of all recorded entries, oldest first.
func (s *MemStore) Journal() []JournalEntry {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	out := make([]JournalEntry, len(s.journal))
	copy(out, s.journal)
	return out
}

func (s *MemStore) Close() {}
