package config

import (
	"encoding/json"
	"log"
	"math"
	"os"
	"strings"
)

// BotDef describes one purchasable miner bot tier.
type BotDef struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	BaseCost            int64  `json:"base_cost"`
	BaseEarningsPerHour int64  `json:"base_earnings_per_hour"`
	MaxLevel            int    `json:"max_level"`
}

// StorageTier caps how many hours of passive income can accumulate before a
// claim is required. UpgradeCost is the price to advance from Level to Level+1.
type StorageTier struct {
	Level           int
	MaxAccrualHours int64
	UpgradeCost     int64
}

// AutoCollectTier controls how often the auto-collect worker claims for a user.
type AutoCollectTier struct {
	Level       int
	IntervalSec int64
	UnlockCost  int64
}

type AchievementMetric string

const (
	MetricTotalEarned AchievementMetric = "total_earned"
	MetricBotsOwned   AchievementMetric = "bots_owned"
	MetricMaxLevel    AchievementMetric = "max_level"
	MetricHourlyRate  AchievementMetric = "hourly_rate"
	MetricBotTypes    AchievementMetric = "bot_types"
)

type AchievementDef struct {
	Key       string
	Name      string
	Metric    AchievementMetric
	Threshold int64
	Reward    int64
}

type DailyReward struct {
	Day        int
	Coins      int64
	BonusBotID string
}

type WheelPrize struct {
	Amount      int64   `json:"amount"`
	Probability float64 `json:"probability"`
}

// Game holds every tunable constant of the mining economy. Admin tooling
// writes these through env; the engine treats them as read-only.
type Game struct {
	MaxEnergy              int64
	EnergyPerTap           int64
	EnergyRegenRate        int64
	EnergyRegenIntervalSec int64

	CoinsPerTapMin   int64
	CoinsPerTapMax   int64
	TapMaxPerRequest int64

	CostGrowthMult    float64
	EarningGrowthMult float64

	StartingBonus int64

	Bots             []BotDef
	StorageTiers     []StorageTier
	AutoCollectTiers []AutoCollectTier
	Achievements     []AchievementDef
	DailyRewards     []DailyReward
	WheelPrizes      []WheelPrize

	WheelSpinCost       int64
	LotteryTicketPrice  int64
	LotteryDrawHours    int64
	LotteryPotPct       int64
	AutoCollectSweepSec int64
}

func DefaultBots() []BotDef {
	return []BotDef{
		{ID: "basic_miner", Name: "Basic Miner", BaseCost: 150, BaseEarningsPerHour: 5, MaxLevel: 10},
		{ID: "turbo_miner", Name: "Turbo Miner", BaseCost: 1200, BaseEarningsPerHour: 30, MaxLevel: 10},
		{ID: "mega_miner", Name: "Mega Miner", BaseCost: 6000, BaseEarningsPerHour: 125, MaxLevel: 10},
		{ID: "quantum_miner", Name: "Quantum Miner", BaseCost: 36000, BaseEarningsPerHour: 600, MaxLevel: 10},
		{ID: "ai_miner", Name: "AI Miner", BaseCost: 210000, BaseEarningsPerHour: 3000, MaxLevel: 10},
		{ID: "cosmic_miner", Name: "Cosmic Miner", BaseCost: 1200000, BaseEarningsPerHour: 15000, MaxLevel: 10},
	}
}

// defaultStorageTiers: level 1 holds 6 hours, each level adds 2 more.
// Upgrading away from level L costs floor(100 * 1.5^(L-1)).
func defaultStorageTiers(maxLevel int) []StorageTier {
	tiers := make([]StorageTier, 0, maxLevel)
	for lvl := 1; lvl <= maxLevel; lvl++ {
		tiers = append(tiers, StorageTier{
			Level:           lvl,
			MaxAccrualHours: 6 + int64(lvl-1)*2,
			UpgradeCost:     int64(math.Floor(100 * math.Pow(1.5, float64(lvl-1)))),
		})
	}
	return tiers
}

func defaultAutoCollectTiers() []AutoCollectTier {
	return []AutoCollectTier{
		{Level: 1, IntervalSec: 300, UnlockCost: 0},
		{Level: 2, IntervalSec: 180, UnlockCost: 10_000},
		{Level: 3, IntervalSec: 60, UnlockCost: 50_000},
		{Level: 4, IntervalSec: 30, UnlockCost: 100_000},
	}
}

func defaultAchievements() []AchievementDef {
	return []AchievementDef{
		{Key: "first_bot", Name: "First Bot", Metric: MetricBotsOwned, Threshold: 1, Reward: 100},
		{Key: "own_3_bots", Name: "Small Fleet", Metric: MetricBotsOwned, Threshold: 3, Reward: 500},
		{Key: "upgrade_first", Name: "First Upgrade", Metric: MetricMaxLevel, Threshold: 2, Reward: 250},
		{Key: "level_5_bot", Name: "Seasoned Operator", Metric: MetricMaxLevel, Threshold: 5, Reward: 1000},
		{Key: "earn_1k", Name: "First Thousand", Metric: MetricTotalEarned, Threshold: 1_000, Reward: 100},
		{Key: "earn_10k", Name: "Ten Thousand", Metric: MetricTotalEarned, Threshold: 10_000, Reward: 500},
		{Key: "earn_50k", Name: "Fifty Thousand", Metric: MetricTotalEarned, Threshold: 50_000, Reward: 2000},
		{Key: "magnate", Name: "Magnate", Metric: MetricTotalEarned, Threshold: 100_000, Reward: 5000},
		{Key: "earn_1m", Name: "Millionaire", Metric: MetricTotalEarned, Threshold: 1_000_000, Reward: 25_000},
		{Key: "earn_10k_per_hour", Name: "Serious Income", Metric: MetricHourlyRate, Threshold: 10_000, Reward: 5000},
		{Key: "max_income", Name: "Income Machine", Metric: MetricHourlyRate, Threshold: 100_000, Reward: 20_000},
		{Key: "all_bot_types", Name: "Collector", Metric: MetricBotTypes, Threshold: 6, Reward: 10_000},
	}
}

func defaultDailyRewards() []DailyReward {
	return []DailyReward{
		{Day: 1, Coins: 20},
		{Day: 2, Coins: 30},
		{Day: 3, Coins: 50},
		{Day: 4, Coins: 75},
		{Day: 5, Coins: 150},
		{Day: 6, Coins: 300},
		{Day: 7, Coins: 500, BonusBotID: "basic_miner"},
	}
}

func defaultWheelPrizes() []WheelPrize {
	return []WheelPrize{
		{Amount: 1, Probability: 0.09524}, {Amount: 2, Probability: 0.09048},
		{Amount: 3, Probability: 0.08571}, {Amount: 4, Probability: 0.08095},
		{Amount: 5, Probability: 0.07619}, {Amount: 6, Probability: 0.07143},
		{Amount: 7, Probability: 0.06667}, {Amount: 8, Probability: 0.06190},
		{Amount: 9, Probability: 0.05714}, {Amount: 10, Probability: 0.05238},
		{Amount: 11, Probability: 0.04762}, {Amount: 12, Probability: 0.04286},
		{Amount: 13, Probability: 0.03810}, {Amount: 14, Probability: 0.03333},
		{Amount: 15, Probability: 0.02857}, {Amount: 16, Probability: 0.02381},
		{Amount: 17, Probability: 0.01905}, {Amount: 18, Probability: 0.01429},
		{Amount: 19, Probability: 0.00952}, {Amount: 20, Probability: 0.00476},
	}
}

// DefaultGame returns the economy with env overrides applied, which for a
// clean environment means the stock constants.
func DefaultGame() Game {
	return loadGame()
}

func loadGame() Game {
	g := Game{
		MaxEnergy:              envInt64("MAX_ENERGY", 1000),
		EnergyPerTap:           envInt64("ENERGY_PER_TAP", 1),
		EnergyRegenRate:        envInt64("ENERGY_REGEN_RATE", 1),
		EnergyRegenIntervalSec: envInt64("ENERGY_REGEN_INTERVAL_SEC", 600),

		CoinsPerTapMin:   envInt64("COINS_PER_TAP_MIN", 1),
		CoinsPerTapMax:   envInt64("COINS_PER_TAP_MAX", 3),
		TapMaxPerRequest: envInt64("TAP_MAX_PER_REQUEST", 50),

		CostGrowthMult:    envFloat64("BOT_UPGRADE_COST_MULT", 1.5),
		EarningGrowthMult: envFloat64("BOT_LEVEL_EARNING_MULT", 1.2),

		StartingBonus: envInt64("STARTING_BONUS", 1000),

		Bots:             DefaultBots(),
		StorageTiers:     defaultStorageTiers(envInt("STORAGE_MAX_LEVEL", 10)),
		AutoCollectTiers: defaultAutoCollectTiers(),
		Achievements:     defaultAchievements(),
		DailyRewards:     defaultDailyRewards(),
		WheelPrizes:      defaultWheelPrizes(),

		WheelSpinCost:       envInt64("WHEEL_SPIN_COST", 10),
		LotteryTicketPrice:  envInt64("LOTTERY_TICKET_PRICE", 100),
		LotteryDrawHours:    envInt64("LOTTERY_DRAW_HOURS", 1),
		LotteryPotPct:       envInt64("LOTTERY_POT_PCT", 90),
		AutoCollectSweepSec: envInt64("AUTOCOLLECT_SWEEP_SEC", 15),
	}

	// Optional bot table override, e.g.
	//   MINER_BOTS_JSON=[{"id":"basic_miner","name":"Basic","base_cost":150,"base_earnings_per_hour":5,"max_level":10}]
	if raw := strings.TrimSpace(os.Getenv("MINER_BOTS_JSON")); raw != "" {
		var bots []BotDef
		if err := json.Unmarshal([]byte(raw), &bots); err != nil {
			log.Printf("invalid MINER_BOTS_JSON, keeping defaults: %v", err)
		} else if len(bots) > 0 {
			valid := bots[:0]
			for _, b := range bots {
				if strings.TrimSpace(b.ID) == "" || b.BaseCost <= 0 || b.BaseEarningsPerHour <= 0 {
					continue
				}
				if b.MaxLevel <= 0 {
					b.MaxLevel = 10
				}
				valid = append(valid, b)
			}
			if len(valid) > 0 {
				g.Bots = valid
			}
		}
	}

	if g.CoinsPerTapMax < g.CoinsPerTapMin {
		g.CoinsPerTapMax = g.CoinsPerTapMin
	}

	return g
}

// BotDef looks a bot tier up by id.
func (g Game) BotDef(id string) (BotDef, bool) {
	for _, b := range g.Bots {
		if b.ID == id {
			return b, true
		}
	}
	return BotDef{}, false
}

// StorageTier returns the tier for a storage level, clamping out-of-range
// levels to the nearest configured tier.
func (g Game) StorageTier(level int) StorageTier {
	if len(g.StorageTiers) == 0 {
		return StorageTier{Level: 1, MaxAccrualHours: 6, UpgradeCost: 100}
	}
	if level < 1 {
		level = 1
	}
	if level > len(g.StorageTiers) {
		level = len(g.StorageTiers)
	}
	return g.StorageTiers[level-1]
}

// AutoCollectTier returns the tier for an auto-collect level, clamped.
func (g Game) AutoCollectTier(level int) AutoCollectTier {
	if len(g.AutoCollectTiers) == 0 {
		return AutoCollectTier{Level: 1, IntervalSec: 300}
	}
	if level < 1 {
		level = 1
	}
	if level > len(g.AutoCollectTiers) {
		level = len(g.AutoCollectTiers)
	}
	return g.AutoCollectTiers[level-1]
}
