package game

import "context"

// MutateFunc runs with exclusive access to one user's ledger. It returns the
// journal entries describing the mutation; returning an error rolls the
// mutation back and nothing is persisted.
type MutateFunc func(l *Ledger) ([]JournalEntry, error)

// LedgerStore owns ledger persistence and per-user serialization. Mutations to
// the same user never interleave: implementations use row locks or a per-user
// mutex, so MutateFunc bodies can read-modify-write without further locking.
type LedgerStore interface {
	// Get returns a snapshot of the user's ledger, or ErrLedgerNotFound
	// for a user the store has never mutated. The snapshot does not alias
	// stored state.
	Get(ctx context.Context, userID int64) (Ledger, error)

	// Mutate loads the ledger (creating it on first access), runs fn under
	// exclusive access, persists the result and appends fn's journal
	// entries atomically. The returned ledger is the post-mutation snapshot.
	Mutate(ctx context.Context, userID int64, fn MutateFunc) (Ledger, error)

	// ListAutoCollect returns the ids of users with auto-collect enabled.
	ListAutoCollect(ctx context.Context) ([]int64, error)

	Close()
}
