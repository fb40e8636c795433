package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"botmarket_miner/internal/config"
)

// Journal entry kinds.
const (
	KindStartingBonus     = "starting_bonus"
	KindTap               = "tap"
	KindClaim             = "claim"
	KindAutoCollect       = "auto_collect"
	KindBotPurchase       = "bot_purchase"
	KindBotUpgrade        = "bot_upgrade"
	KindStorageUpgrade    = "storage_upgrade"
	KindAutoCollectUnlock = "autocollect_unlock"
	KindDailyReward       = "daily_reward"
	KindAchievement       = "achievement"
)

// Evaluator updates achievement progress on a ledger and reports definitions
// newly completed in this pass.
type Evaluator func(l *Ledger, g *config.Game, now time.Time) []config.AchievementDef

// Engine coordinates every ledger mutation. All game rules live here; the
// store only provides per-user exclusive access and persistence.
type Engine struct {
	store    LedgerStore
	game     *config.Game
	evaluate Evaluator

	now     func() time.Time
	randInt func(n int64) int64
	randMu  sync.Mutex

	// AfterMutation runs after a successful mutation with the fresh
	// snapshot, outside the user's lock. Used for leaderboard fan-out.
	AfterMutation func(Ledger)

	// OnAchievement runs once per achievement completed, inside the
	// mutation. Used for metrics.
	OnAchievement func(key string)
}

func NewEngine(store LedgerStore, g *config.Game, evaluate Evaluator) *Engine {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &Engine{
		store:    store,
		game:     g,
		evaluate: evaluate,
		now:      time.Now,
	}
	e.randInt = func(n int64) int64 {
		e.randMu.Lock()
		defer e.randMu.Unlock()
		return src.Int63n(n)
	}
	return e
}

// SetClock overrides the engine clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetRand overrides the tap reward source, for tests.
func (e *Engine) SetRand(fn func(n int64) int64) { e.randInt = fn }

// NewLedger builds the initial state for a first-seen user. The starting
// bonus is part of the ledger from the first read; the Postgres store also
// journals it on insert.
func (e *Engine) NewLedger(userID int64) Ledger {
	now := e.now()
	// The starting bonus is a gift, not income: it never counts toward
	// total earnings or the achievements keyed on them.
	return Ledger{
		UserID:              userID,
		Balance:             e.game.StartingBonus,
		Energy:              e.game.MaxEnergy,
		LastEnergyUpdate:    now,
		Bots:                make(map[string]BotState),
		StorageLevel:        1,
		LastClaim:           now,
		AutoCollectLevel:    1,
		AutoCollectUnlocked: 1,
		Achievements:        make(map[string]AchievementState),
		CreatedAt:           now,
	}
}

func (e *Engine) regenInterval() time.Duration {
	return time.Duration(e.game.EnergyRegenIntervalSec) * time.Second
}

// runAchievements credits rewards for newly completed achievements and keeps
// re-evaluating until a pass completes nothing, since a reward can itself
// push total earnings across the next threshold.
func (e *Engine) runAchievements(l *Ledger, now time.Time) []JournalEntry {
	if e.evaluate == nil {
		return nil
	}
	var entries []JournalEntry
	for {
		completed := e.evaluate(l, e.game, now)
		if len(completed) == 0 {
			return entries
		}
		for _, def := range completed {
			l.Balance += def.Reward
			l.TotalEarned += def.Reward
			if e.OnAchievement != nil {
				e.OnAchievement(def.Key)
			}
			entries = append(entries, JournalEntry{
				EventID: fmt.Sprintf("achievement:%d:%s", l.UserID, def.Key),
				Kind:    KindAchievement,
				UserID:  l.UserID,
				Amount:  def.Reward,
				Meta:    map[string]any{"key": def.Key},
				At:      now,
			})
		}
	}
}

// settleAccrual claims pending passive income inside a mutation. Called
// before any change to the hourly rate or the storage cap so accumulated time
// is always paid at the rate it was earned under.
func (e *Engine) settleAccrual(l *Ledger, now time.Time, auto bool) (int64, []JournalEntry) {
	acc := Accrue(l, e.game, now)
	if acc.Pending == 0 {
		return 0, nil
	}
	l.Balance += acc.Pending
	l.TotalEarned += acc.Pending
	l.LastClaim = now
	kind := KindClaim
	if auto {
		kind = KindAutoCollect
	}
	return acc.Pending, []JournalEntry{{
		EventID: uuid.NewString(),
		Kind:    kind,
		UserID:  l.UserID,
		Amount:  acc.Pending,
		Meta:    map[string]any{"hourly_rate": acc.HourlyRate, "storage_full": acc.StorageFull},
		At:      now,
	}}
}

// TapResult reports one tap batch.
type TapResult struct {
	Ledger      Ledger
	Taps        int64
	Coins       int64
	EnergySpent int64
}

// Tap spends energy on up to taps manual taps and credits a random reward per
// tap. The batch is clamped to the per-request maximum and to the energy
// actually available; a batch with no affordable taps is rejected.
func (e *Engine) Tap(ctx context.Context, userID, taps int64) (TapResult, error) {
	if taps < 1 {
		return TapResult{}, ErrInvalidAmount
	}
	if taps > e.game.TapMaxPerRequest {
		taps = e.game.TapMaxPerRequest
	}
	var res TapResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		RegenerateEnergy(l, e.game.MaxEnergy, e.game.EnergyRegenRate, e.regenInterval(), now)

		affordable := l.Energy / e.game.EnergyPerTap
		if affordable < 1 {
			return nil, ErrInsufficientEnergy
		}
		if taps > affordable {
			taps = affordable
		}

		spread := e.game.CoinsPerTapMax - e.game.CoinsPerTapMin + 1
		var coins int64
		for i := int64(0); i < taps; i++ {
			coins += e.game.CoinsPerTapMin
			if spread > 1 {
				coins += e.randInt(spread)
			}
		}

		spent := taps * e.game.EnergyPerTap
		l.Energy -= spent
		l.Balance += coins
		l.TotalEarned += coins

		res.Taps = taps
		res.Coins = coins
		res.EnergySpent = spent

		entries := []JournalEntry{{
			EventID: uuid.NewString(),
			Kind:    KindTap,
			UserID:  userID,
			Amount:  coins,
			Meta:    map[string]any{"taps": taps},
			At:      now,
		}}
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if err != nil {
		return TapResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// ClaimResult reports a settled claim. A zero Claimed with a nil error means
// there was nothing to collect.
type ClaimResult struct {
	Ledger      Ledger
	Claimed     int64
	StorageFull bool
	Auto        bool
}

// Claim settles pending passive income. Auto claims are gated by the user's
// auto-collect tier interval and skip silently when called too early.
func (e *Engine) Claim(ctx context.Context, userID int64, auto bool) (ClaimResult, error) {
	var res ClaimResult
	res.Auto = auto
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		RegenerateEnergy(l, e.game.MaxEnergy, e.game.EnergyRegenRate, e.regenInterval(), now)

		if auto {
			if !l.AutoCollectEnabled {
				return nil, nil
			}
			tier := e.game.AutoCollectTier(l.AutoCollectLevel)
			if l.LastAutoCollect != nil && now.Sub(*l.LastAutoCollect) < time.Duration(tier.IntervalSec)*time.Second {
				return nil, nil
			}
		}

		res.StorageFull = Accrue(l, e.game, now).StorageFull
		claimed, entries := e.settleAccrual(l, now, auto)
		res.Claimed = claimed
		if auto && claimed > 0 {
			t := now
			l.LastAutoCollect = &t
		}
		if claimed == 0 {
			return nil, nil
		}
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	res.Ledger = ledger
	if res.Claimed > 0 {
		e.notify(ledger)
	}
	return res, nil
}

// PurchaseResult reports a balance-spending operation.
type PurchaseResult struct {
	Ledger  Ledger
	Spent   int64
	Settled int64 // passive income claimed as part of the operation
}

// BuyBot purchases one unit of a bot type at its current level price.
func (e *Engine) BuyBot(ctx context.Context, userID int64, botID string) (PurchaseResult, error) {
	def, ok := e.game.BotDef(botID)
	if !ok {
		return PurchaseResult{}, ErrUnknownBot
	}
	var res PurchaseResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		RegenerateEnergy(l, e.game.MaxEnergy, e.game.EnergyRegenRate, e.regenInterval(), now)

		settled, entries := e.settleAccrual(l, now, false)
		res.Settled = settled

		st := l.Bots[botID]
		level := st.Level
		if st.Owned == 0 || level < 1 {
			level = 1
		}
		price := Cost(def, level, e.game.CostGrowthMult)
		if l.Balance < price {
			return nil, ErrInsufficientBalance
		}
		l.Balance -= price
		st.Owned++
		st.Level = level
		l.Bots[botID] = st
		res.Spent = price

		entries = append(entries, JournalEntry{
			EventID: uuid.NewString(),
			Kind:    KindBotPurchase,
			UserID:  userID,
			Amount:  -price,
			Meta:    map[string]any{"bot": botID, "level": level},
			At:      now,
		})
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// UpgradeBot raises an owned bot type one level, repricing every owned unit.
func (e *Engine) UpgradeBot(ctx context.Context, userID int64, botID string) (PurchaseResult, error) {
	def, ok := e.game.BotDef(botID)
	if !ok {
		return PurchaseResult{}, ErrUnknownBot
	}
	var res PurchaseResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		RegenerateEnergy(l, e.game.MaxEnergy, e.game.EnergyRegenRate, e.regenInterval(), now)

		st := l.Bots[botID]
		if st.Owned == 0 {
			return nil, ErrBotNotOwned
		}
		if st.Level >= def.MaxLevel {
			return nil, ErrMaxLevelReached
		}

		settled, entries := e.settleAccrual(l, now, false)
		res.Settled = settled

		price := UpgradeCost(def, st.Level, e.game.CostGrowthMult)
		if l.Balance < price {
			return nil, ErrInsufficientBalance
		}
		l.Balance -= price
		st.Level++
		l.Bots[botID] = st
		res.Spent = price

		entries = append(entries, JournalEntry{
			EventID: uuid.NewString(),
			Kind:    KindBotUpgrade,
			UserID:  userID,
			Amount:  -price,
			Meta:    map[string]any{"bot": botID, "level": st.Level},
			At:      now,
		})
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// UpgradeStorage raises the accrual cap one tier.
func (e *Engine) UpgradeStorage(ctx context.Context, userID int64) (PurchaseResult, error) {
	var res PurchaseResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		if l.StorageLevel >= len(e.game.StorageTiers) {
			return nil, ErrMaxLevelReached
		}

		settled, entries := e.settleAccrual(l, now, false)
		res.Settled = settled

		price := e.game.StorageTier(l.StorageLevel).UpgradeCost
		if l.Balance < price {
			return nil, ErrInsufficientBalance
		}
		l.Balance -= price
		l.StorageLevel++
		res.Spent = price

		entries = append(entries, JournalEntry{
			EventID: uuid.NewString(),
			Kind:    KindStorageUpgrade,
			UserID:  userID,
			Amount:  -price,
			Meta:    map[string]any{"level": l.StorageLevel},
			At:      now,
		})
		return entries, nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// UnlockAutoCollect buys the next auto-collect tier and switches to it.
func (e *Engine) UnlockAutoCollect(ctx context.Context, userID int64) (PurchaseResult, error) {
	var res PurchaseResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		next := l.AutoCollectUnlocked + 1
		if next > len(e.game.AutoCollectTiers) {
			return nil, ErrMaxLevelReached
		}
		price := e.game.AutoCollectTier(next).UnlockCost
		if l.Balance < price {
			return nil, ErrInsufficientBalance
		}
		l.Balance -= price
		l.AutoCollectUnlocked = next
		l.AutoCollectLevel = next
		res.Spent = price

		return []JournalEntry{{
			EventID: uuid.NewString(),
			Kind:    KindAutoCollectUnlock,
			UserID:  userID,
			Amount:  -price,
			Meta:    map[string]any{"tier": next},
			At:      now,
		}}, nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// SetAutoCollect enables or disables automatic claiming. Choosing a tier
// above what the user has unlocked fails with ErrTierLocked.
func (e *Engine) SetAutoCollect(ctx context.Context, userID int64, enabled bool, level int) (Ledger, error) {
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		if level > 0 {
			if level > l.AutoCollectUnlocked {
				return nil, ErrTierLocked
			}
			l.AutoCollectLevel = level
		}
		if enabled && !l.AutoCollectEnabled {
			t := e.now()
			l.LastAutoCollect = &t
		}
		l.AutoCollectEnabled = enabled
		return nil, nil
	})
	if err != nil {
		return Ledger{}, err
	}
	return ledger, nil
}

// DailyResult reports a daily streak claim.
type DailyResult struct {
	Ledger     Ledger
	Streak     int
	Coins      int64
	BonusBotID string
}

// ClaimDaily grants the streak reward for today (UTC). Missing a day resets
// the streak to 1; the reward table repeats after its last day.
func (e *Engine) ClaimDaily(ctx context.Context, userID int64) (DailyResult, error) {
	var res DailyResult
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		today := now.UTC().Format("2006-01-02")
		if l.LastDailyClaim == today {
			return nil, ErrDailyClaimed
		}
		yesterday := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
		if l.LastDailyClaim == yesterday {
			l.DailyStreak++
		} else {
			l.DailyStreak = 1
		}
		l.LastDailyClaim = today

		cycle := len(e.game.DailyRewards)
		reward := e.game.DailyRewards[(l.DailyStreak-1)%cycle]
		l.Balance += reward.Coins
		l.TotalEarned += reward.Coins
		if reward.BonusBotID != "" {
			if _, ok := e.game.BotDef(reward.BonusBotID); ok {
				st := l.Bots[reward.BonusBotID]
				st.Owned++
				if st.Level < 1 {
					st.Level = 1
				}
				l.Bots[reward.BonusBotID] = st
			}
		}

		res.Streak = l.DailyStreak
		res.Coins = reward.Coins
		res.BonusBotID = reward.BonusBotID

		entries := []JournalEntry{{
			EventID: fmt.Sprintf("daily:%d:%s", userID, today),
			Kind:    KindDailyReward,
			UserID:  userID,
			Amount:  reward.Coins,
			Meta:    map[string]any{"streak": l.DailyStreak, "bonus_bot": reward.BonusBotID},
			At:      now,
		}}
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if err != nil {
		return DailyResult{}, err
	}
	res.Ledger = ledger
	e.notify(ledger)
	return res, nil
}

// Credit adds coins from an external source (wheel, lottery, referral).
// eventID deduplicates: replaying a credit with a seen eventID is a no-op
// success returning the current snapshot.
func (e *Engine) Credit(ctx context.Context, userID int64, eventID, kind string, amount int64) (Ledger, error) {
	if amount <= 0 {
		return Ledger{}, ErrInvalidAmount
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		l.Balance += amount
		l.TotalEarned += amount
		entries := []JournalEntry{{
			EventID: eventID,
			Kind:    kind,
			UserID:  userID,
			Amount:  amount,
			At:      now,
		}}
		return append(entries, e.runAchievements(l, now)...), nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return e.store.Get(ctx, userID)
	}
	if err != nil {
		return Ledger{}, err
	}
	e.notify(ledger)
	return ledger, nil
}

// Debit removes coins for an external spend (wheel spin, lottery ticket).
func (e *Engine) Debit(ctx context.Context, userID int64, eventID, kind string, amount int64) (Ledger, error) {
	if amount <= 0 {
		return Ledger{}, ErrInvalidAmount
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		if l.Balance < amount {
			return nil, ErrInsufficientBalance
		}
		l.Balance -= amount
		return []JournalEntry{{
			EventID: eventID,
			Kind:    kind,
			UserID:  userID,
			Amount:  -amount,
			At:      e.now(),
		}}, nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return e.store.Get(ctx, userID)
	}
	if err != nil {
		return Ledger{}, err
	}
	e.notify(ledger)
	return ledger, nil
}

// State returns the current snapshot with energy regenerated and pending
// accrual computed. The regeneration is persisted so repeated reads agree.
func (e *Engine) State(ctx context.Context, userID int64) (Ledger, Accrual, error) {
	var acc Accrual
	ledger, err := e.store.Mutate(ctx, userID, func(l *Ledger) ([]JournalEntry, error) {
		now := e.now()
		RegenerateEnergy(l, e.game.MaxEnergy, e.game.EnergyRegenRate, e.regenInterval(), now)
		acc = Accrue(l, e.game, now)
		return nil, nil
	})
	if err != nil {
		return Ledger{}, Accrual{}, err
	}
	return ledger, acc, nil
}

func (e *Engine) notify(l Ledger) {
	if e.AfterMutation != nil {
		e.AfterMutation(l)
	}
}
