// Package leaderboard mirrors total earnings into a Redis sorted set. It is
// best effort: a nil or unreachable Redis never fails a game mutation, the
// board just goes stale.
package leaderboard

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	boardKey   = "miner:leaderboard:total_earned"
	opTimeout  = 2 * time.Second
	defaultTop = 10
)

type Board struct {
	rdb *redis.Client
}

// Entry is one leaderboard row.
type Entry struct {
	UserID int64 `json:"user_id"`
	Score  int64 `json:"score"`
	Rank   int64 `json:"rank"`
}

// New wraps an optional Redis client; nil disables the board.
func New(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

func Connect(ctx context.Context, redisURL string) (*Board, error) {
	if redisURL == "" {
		return New(nil), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return New(rdb), nil
}

func (b *Board) Enabled() bool { return b != nil && b.rdb != nil }

// Record updates a user's score. Safe to call from the engine's mutation
// hook; errors are logged, not returned.
func (b *Board) Record(userID, totalEarned int64) {
	if !b.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	member := strconv.FormatInt(userID, 10)
	if err := b.rdb.ZAdd(ctx, boardKey, redis.Z{Score: float64(totalEarned), Member: member}).Err(); err != nil {
		log.Printf("leaderboard: zadd user=%d: %v", userID, err)
	}
}

// Top returns the highest earners, rank 1 first.
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if !b.Enabled() {
		return nil, nil
	}
	if n <= 0 || n > 100 {
		n = defaultTop
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, boardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		id, err := strconv.ParseInt(z.Member.(string), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{UserID: id, Score: int64(z.Score), Rank: int64(i + 1)})
	}
	return out, nil
}

// Rank returns a user's 1-based position, 0 when unranked.
func (b *Board) Rank(ctx context.Context, userID int64) (int64, error) {
	if !b.Enabled() {
		return 0, nil
	}
	r, err := b.rdb.ZRevRank(ctx, boardKey, strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return r + 1, nil
}

func (b *Board) Close() {
	if b.Enabled() {
		_ = b.rdb.Close()
	}
}
