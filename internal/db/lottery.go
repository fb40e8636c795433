package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Round is the lottery round row.
type Round struct {
	RoundID  int64      `json:"round_id"`
	Status   string     `json:"status"`
	Pot      int64      `json:"pot"`
	WinnerID *int64     `json:"winner_id,omitempty"`
	Prize    *int64     `json:"prize,omitempty"`
	OpenedAt time.Time  `json:"opened_at"`
	DrawnAt  *time.Time `json:"drawn_at,omitempty"`
}

var ErrNoOpenRound = errors.New("no open round")

func scanRound(row pgx.Row) (Round, error) {
	var r Round
	err := row.Scan(&r.RoundID, &r.Status, &r.Pot, &r.WinnerID, &r.Prize, &r.OpenedAt, &r.DrawnAt)
	return r, err
}

const roundCols = `round_id, status, pot, winner_id, prize, opened_at, drawn_at`

// OpenRound returns the current open round, creating one when none exists.
func (s *Store) OpenRound(ctx context.Context) (Round, error) {
	var out Round
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		r, err := scanRound(tx.QueryRow(ctx,
			`SELECT `+roundCols+` FROM lottery_rounds WHERE status='open' ORDER BY round_id LIMIT 1 FOR UPDATE`))
		if err == nil {
			out = r
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		r, err = scanRound(tx.QueryRow(ctx,
			`INSERT INTO lottery_rounds (status) VALUES ('open') RETURNING `+roundCols))
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// AddTicket records one ticket in the open round and grows the pot. The coin
// debit happens through the ledger engine before this call.
func (s *Store) AddTicket(ctx context.Context, roundID, userID, price int64) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE lottery_rounds SET pot = pot + $2 WHERE round_id=$1 AND status='open'`, roundID, price)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoOpenRound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO lottery_tickets (round_id, user_id) VALUES ($1,$2)`, roundID, userID)
		return err
	})
}

// RoundTickets returns the ticket holders of a round, one entry per ticket.
func (s *Store) RoundTickets(ctx context.Context, roundID int64) ([]int64, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT user_id FROM lottery_tickets WHERE round_id=$1 ORDER BY id`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// UserTickets counts a user's tickets in a round.
func (s *Store) UserTickets(ctx context.Context, roundID, userID int64) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lottery_tickets WHERE round_id=$1 AND user_id=$2`, roundID, userID).Scan(&n)
	return n, err
}

// CloseRound marks a round drawn. A nil winner closes an empty round.
func (s *Store) CloseRound(ctx context.Context, roundID int64, winnerID *int64, prize int64, now time.Time) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE lottery_rounds SET status='drawn', winner_id=$2, prize=$3, drawn_at=$4
WHERE round_id=$1 AND status='open'`, roundID, winnerID, prize, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoOpenRound
		}
		return nil
	})
}

// LastDrawnRound returns the most recent completed round.
func (s *Store) LastDrawnRound(ctx context.Context) (Round, error) {
	r, err := scanRound(s.Pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM lottery_rounds WHERE status='drawn' ORDER BY round_id DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, ErrNoOpenRound
	}
	return r, err
}
