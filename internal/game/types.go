package game

import (
	"errors"
	"time"
)

// Business outcomes, returned as typed values and mapped to API error codes.
var (
	ErrInsufficientEnergy  = errors.New("insufficient energy")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMaxLevelReached     = errors.New("max level reached")
	ErrBotNotOwned         = errors.New("bot not owned")
	ErrUnknownBot          = errors.New("unknown bot")
	ErrTierLocked          = errors.New("tier locked")
	ErrDailyClaimed        = errors.New("daily reward already claimed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrLedgerNotFound      = errors.New("ledger not found")
	ErrDuplicateEvent      = errors.New("duplicate event")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// BotState tracks one bot type inside a user's ledger.
type BotState struct {
	Level int `json:"level"`
	Owned int `json:"owned"`
}

// AchievementState is monotonic: once Completed flips to true it never resets,
// and the reward credit happens in the same transaction as the flip.
type AchievementState struct {
	Progress    int64      `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ledger is the single authoritative per-user row. It is only ever mutated
// through Engine operations, each of which holds exclusive access to the row.
type Ledger struct {
	UserID      int64
	Balance     int64
	TotalEarned int64

	Energy           int64
	LastEnergyUpdate time.Time

	Bots map[string]BotState

	StorageLevel int
	LastClaim    time.Time

	AutoCollectEnabled  bool
	AutoCollectLevel    int
	AutoCollectUnlocked int
	LastAutoCollect     *time.Time

	DailyStreak    int
	LastDailyClaim string // YYYY-MM-DD in UTC, empty when never claimed

	Achievements map[string]AchievementState

	CreatedAt time.Time
}

// Clone returns a deep copy; stores hand copies to callers so a snapshot can
// never alias the row under mutation.
func (l Ledger) Clone() Ledger {
	out := l
	out.Bots = make(map[string]BotState, len(l.Bots))
	for k, v := range l.Bots {
		out.Bots[k] = v
	}
	out.Achievements = make(map[string]AchievementState, len(l.Achievements))
	for k, v := range l.Achievements {
		out.Achievements[k] = v
	}
	if l.LastAutoCollect != nil {
		t := *l.LastAutoCollect
		out.LastAutoCollect = &t
	}
	return out
}

// TotalBotsOwned sums owned units across all bot types.
func (l Ledger) TotalBotsOwned() int64 {
	var n int64
	for _, b := range l.Bots {
		n += int64(b.Owned)
	}
	return n
}

// MaxBotLevel returns the highest level among owned bot types, 0 when none.
func (l Ledger) MaxBotLevel() int {
	max := 0
	for _, b := range l.Bots {
		if b.Owned > 0 && b.Level > max {
			max = b.Level
		}
	}
	return max
}

// JournalEntry is one append-only record of a balance-affecting mutation.
type JournalEntry struct {
	EventID string
	Kind    string
	UserID  int64
	Amount  int64
	Meta    map[string]any
	At      time.Time
}
