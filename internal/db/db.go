package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"botmarket_miner/internal/game"
)

const mutateRetries = 3

// Store is the Postgres-backed game.LedgerStore. Per-user serialization comes
// from SELECT ... FOR UPDATE on the ledger row; every mutation and its journal
// entries commit in one transaction.
type Store struct {
	Pool      *pgxpool.Pool
	newLedger func(userID int64) game.Ledger
}

func Connect(ctx context.Context, databaseURL string, newLedger func(userID int64) game.Ledger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool, newLedger: newLedger}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	sql := `
CREATE TABLE IF NOT EXISTS ledgers (
  user_id BIGINT PRIMARY KEY,
  balance BIGINT NOT NULL DEFAULT 0,
  total_earned BIGINT NOT NULL DEFAULT 0,
  energy BIGINT NOT NULL DEFAULT 0,
  last_energy_update TIMESTAMPTZ NOT NULL DEFAULT now(),
  bots JSONB NOT NULL DEFAULT '{}'::jsonb,
  storage_level INT NOT NULL DEFAULT 1,
  last_claim TIMESTAMPTZ NOT NULL DEFAULT now(),
  autocollect_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  autocollect_level INT NOT NULL DEFAULT 1,
  autocollect_unlocked INT NOT NULL DEFAULT 1,
  last_autocollect TIMESTAMPTZ,
  daily_streak INT NOT NULL DEFAULT 0,
  last_daily_claim TEXT NOT NULL DEFAULT '',
  achievements JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS journal (
  id BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  user_id BIGINT NOT NULL,
  kind TEXT NOT NULL,
  amount BIGINT NOT NULL,
  meta JSONB NOT NULL DEFAULT '{}'::jsonb,
  ts TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_user_ts ON journal (user_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_ledgers_autocollect ON ledgers (autocollect_enabled) WHERE autocollect_enabled;

CREATE TABLE IF NOT EXISTS lottery_rounds (
  round_id BIGSERIAL PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'open',
  pot BIGINT NOT NULL DEFAULT 0,
  winner_id BIGINT,
  prize BIGINT,
  opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  drawn_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS lottery_tickets (
  id BIGSERIAL PRIMARY KEY,
  round_id BIGINT NOT NULL REFERENCES lottery_rounds(round_id),
  user_id BIGINT NOT NULL,
  bought_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lottery_tickets_round ON lottery_tickets (round_id);
`
	_, err := s.Pool.Exec(ctx, sql)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const ledgerCols = `balance, total_earned, energy, last_energy_update, bots,
  storage_level, last_claim, autocollect_enabled, autocollect_level,
  autocollect_unlocked, last_autocollect, daily_streak, last_daily_claim,
  achievements, created_at`

func scanLedger(row pgx.Row, userID int64) (game.Ledger, error) {
	l := game.Ledger{UserID: userID}
	var bots, achievements []byte
	err := row.Scan(
		&l.Balance, &l.TotalEarned, &l.Energy, &l.LastEnergyUpdate, &bots,
		&l.StorageLevel, &l.LastClaim, &l.AutoCollectEnabled, &l.AutoCollectLevel,
		&l.AutoCollectUnlocked, &l.LastAutoCollect, &l.DailyStreak, &l.LastDailyClaim,
		&achievements, &l.CreatedAt,
	)
	if err != nil {
		return game.Ledger{}, err
	}
	if err := json.Unmarshal(bots, &l.Bots); err != nil {
		return game.Ledger{}, err
	}
	if err := json.Unmarshal(achievements, &l.Achievements); err != nil {
		return game.Ledger{}, err
	}
	if l.Bots == nil {
		l.Bots = make(map[string]game.BotState)
	}
	if l.Achievements == nil {
		l.Achievements = make(map[string]game.AchievementState)
	}
	return l, nil
}

// lockLedger loads the user's row under FOR UPDATE, inserting the initial
// ledger (and its starting bonus journal entry) on first access.
func (s *Store) lockLedger(ctx context.Context, tx pgx.Tx, userID int64) (game.Ledger, error) {
	row := tx.QueryRow(ctx, `SELECT `+ledgerCols+` FROM ledgers WHERE user_id=$1 FOR UPDATE`, userID)
	l, err := scanLedger(row, userID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return game.Ledger{}, err
	}

	fresh := s.newLedger(userID)
	bots, err := json.Marshal(fresh.Bots)
	if err != nil {
		return game.Ledger{}, err
	}
	ach, err := json.Marshal(fresh.Achievements)
	if err != nil {
		return game.Ledger{}, err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO ledgers (user_id, balance, total_earned, energy, last_energy_update, bots,
  storage_level, last_claim, autocollect_enabled, autocollect_level, autocollect_unlocked,
  last_autocollect, daily_streak, last_daily_claim, achievements, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (user_id) DO NOTHING`,
		userID, fresh.Balance, fresh.TotalEarned, fresh.Energy, fresh.LastEnergyUpdate, bots,
		fresh.StorageLevel, fresh.LastClaim, fresh.AutoCollectEnabled, fresh.AutoCollectLevel,
		fresh.AutoCollectUnlocked, fresh.LastAutoCollect, fresh.DailyStreak, fresh.LastDailyClaim,
		ach, fresh.CreatedAt)
	if err != nil {
		return game.Ledger{}, err
	}
	if fresh.Balance > 0 {
		_, err = tx.Exec(ctx, `
INSERT INTO journal (event_id, user_id, kind, amount, meta, ts)
VALUES ($1,$2,$3,$4,'{}'::jsonb,$5)
ON CONFLICT (event_id) DO NOTHING`,
			startingBonusEventID(userID), userID, game.KindStartingBonus, fresh.Balance, fresh.CreatedAt)
		if err != nil {
			return game.Ledger{}, err
		}
	}
	// Lost inserts race to a concurrent first access; re-read under the lock.
	row = tx.QueryRow(ctx, `SELECT `+ledgerCols+` FROM ledgers WHERE user_id=$1 FOR UPDATE`, userID)
	return scanLedger(row, userID)
}

func startingBonusEventID(userID int64) string {
	return fmt.Sprintf("starting_bonus:%d", userID)
}

func (s *Store) saveLedger(ctx context.Context, tx pgx.Tx, l *game.Ledger) error {
	bots, err := json.Marshal(l.Bots)
	if err != nil {
		return err
	}
	ach, err := json.Marshal(l.Achievements)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE ledgers SET
  balance=$2, total_earned=$3, energy=$4, last_energy_update=$5, bots=$6,
  storage_level=$7, last_claim=$8, autocollect_enabled=$9, autocollect_level=$10,
  autocollect_unlocked=$11, last_autocollect=$12, daily_streak=$13, last_daily_claim=$14,
  achievements=$15
WHERE user_id=$1`,
		l.UserID, l.Balance, l.TotalEarned, l.Energy, l.LastEnergyUpdate, bots,
		l.StorageLevel, l.LastClaim, l.AutoCollectEnabled, l.AutoCollectLevel,
		l.AutoCollectUnlocked, l.LastAutoCollect, l.DailyStreak, l.LastDailyClaim, ach)
	return err
}

func appendJournal(ctx context.Context, tx pgx.Tx, entries []game.JournalEntry) error {
	for _, en := range entries {
		meta := en.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO journal (event_id, user_id, kind, amount, meta, ts)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (event_id) DO NOTHING`,
			en.EventID, en.UserID, en.Kind, en.Amount, raw, en.At)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return game.ErrDuplicateEvent
		}
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Get is a pure read: a user the store has never mutated has no row and
// reads fail with ErrLedgerNotFound. First access goes through Mutate, which
// creates the ledger under its lock.
func (s *Store) Get(ctx context.Context, userID int64) (game.Ledger, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ledgerCols+` FROM ledgers WHERE user_id=$1`, userID)
	l, err := scanLedger(row, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Ledger{}, game.ErrLedgerNotFound
	}
	if err != nil {
		return game.Ledger{}, err
	}
	return l, nil
}

func (s *Store) Mutate(ctx context.Context, userID int64, fn game.MutateFunc) (game.Ledger, error) {
	var out game.Ledger
	var err error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		err = s.WithTx(ctx, func(tx pgx.Tx) error {
			l, err := s.lockLedger(ctx, tx, userID)
			if err != nil {
				return err
			}
			entries, err := fn(&l)
			if err != nil {
				return err
			}
			if err := appendJournal(ctx, tx, entries); err != nil {
				return err
			}
			if err := s.saveLedger(ctx, tx, &l); err != nil {
				return err
			}
			out = l
			return nil
		})
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return game.Ledger{}, err
		}
	}
	return game.Ledger{}, game.ErrConcurrencyConflict
}

func (s *Store) ListAutoCollect(ctx context.Context) ([]int64, error) {
	rows, err := s.Pool.Query(ctx, `SELECT user_id FROM ledgers WHERE autocollect_enabled ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// JournalPage is one page of a user's mutation history, newest first.
type JournalPage struct {
	Entries []game.JournalEntry `json:"entries"`
}

func (s *Store) UserJournal(ctx context.Context, userID int64, limit int) (JournalPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
SELECT event_id, kind, amount, meta, ts FROM journal
WHERE user_id=$1 ORDER BY ts DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return JournalPage{}, err
	}
	defer rows.Close()
	page := JournalPage{Entries: make([]game.JournalEntry, 0, limit)}
	for rows.Next() {
		en := game.JournalEntry{UserID: userID}
		var raw []byte
		if err := rows.Scan(&en.EventID, &en.Kind, &en.Amount, &raw, &en.At); err != nil {
			return JournalPage{}, err
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &en.Meta)
		}
		page.Entries = append(page.Entries, en)
	}
	return page, rows.Err()
}
