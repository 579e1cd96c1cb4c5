package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server       ServerConfig       `toml:"server"`
	Network      NetworkConfig      `toml:"network"`
	Ack          AckConfig          `toml:"ack"`
	Phases       PhaseConfig        `toml:"phases"`
	Player       PlayerConfig       `toml:"player"`
	Shop         ShopConfig         `toml:"shop"`
	Pool         PoolConfig         `toml:"pool"`
	Combat       CombatConfig       `toml:"combat"`
	Intervention InterventionConfig `toml:"intervention"`
	Matchmaker   MatchmakerConfig   `toml:"matchmaker"`
	Logging      LoggingConfig      `toml:"logging"`
}

type ServerConfig struct {
	Name        string `toml:"name"`
	MetricsAddr string `toml:"metrics_addr"` // empty disables the /metrics endpoint
	Seed        int64  `toml:"seed"`         // 0 = derive from the clock at boot
	CatalogPath string `toml:"catalog_path"` // empty = embedded default catalog
	ScriptsDir  string `toml:"scripts_dir"`  // empty = embedded balance script only
}

type NetworkConfig struct {
	BindAddress        string        `toml:"bind_address"`
	TickRate           time.Duration `toml:"tick_rate"`
	MaxClients         int           `toml:"max_clients"`
	InQueueSize        int           `toml:"in_queue_size"`
	OutQueueSize       int           `toml:"out_queue_size"`
	MaxMessagesPerTick int           `toml:"max_messages_per_tick"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	MessagesPerSecond  float64       `toml:"messages_per_second"`
	MessageBurst       int           `toml:"message_burst"`
}

type AckConfig struct {
	Timeout       time.Duration `toml:"timeout"`
	MaxRetries    int           `toml:"max_retries"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

type PhaseConfig struct {
	LobbyCountdown time.Duration `toml:"lobby_countdown"`
	Preparation    time.Duration `toml:"preparation"`
	CombatCap      time.Duration `toml:"combat_cap"` // wall-clock safety net; combats normally end on resolution
	Reward         time.Duration `toml:"reward"`
	MutationChoice time.Duration `toml:"mutation_choice"`
}

type PlayerConfig struct {
	StartingNexus  int          `toml:"starting_nexus"`
	StartingGold   int          `toml:"starting_gold"`
	MaxGold        int          `toml:"max_gold"`
	BenchSize      int          `toml:"bench_size"`
	BoardCols      int          `toml:"board_cols"`
	BoardRows      int          `toml:"board_rows"`
	LevelCap       int          `toml:"level_cap"`
	XPThresholds   []int        `toml:"xp_thresholds"` // [i] = xp to advance from level i+1
	XPBuyCost      int          `toml:"xp_buy_cost"`
	XPBuyAmount    int          `toml:"xp_buy_amount"`
	AutoXPPerRound int          `toml:"auto_xp_per_round"`
	BaseIncome     int          `toml:"base_income"`
	InterestPer    int          `toml:"interest_per"` // 1 bonus gold per this many held
	InterestCap    int          `toml:"interest_cap"`
	StreakTiers    []StreakTier `toml:"streak_tiers"`
}

type StreakTier struct {
	Min   int `toml:"min"`
	Bonus int `toml:"bonus"`
}

type ShopConfig struct {
	Size          int            `toml:"size"`
	RefreshCost   int            `toml:"refresh_cost"`
	PityRare      int            `toml:"pity_no_rare"`
	PityEpic      int            `toml:"pity_no_epic"`
	PityLegendary int            `toml:"pity_no_legendary"`
	Costs         map[string]int `toml:"costs"` // rarity name -> gold
	Buckets       []RarityBucket `toml:"buckets"`
}

// RarityBucket is one row of the level-keyed probability table. Buckets are
// matched in order; the first one with MaxLevel >= the player's level wins.
type RarityBucket struct {
	MaxLevel int            `toml:"max_level"`
	Weights  map[string]int `toml:"weights"`
}

type PoolConfig struct {
	Copies map[string]int `toml:"copies"` // per-rarity copies of each definition
}

type CombatConfig struct {
	TicksPerSecond        int                    `toml:"ticks_per_second"`
	MaxTicks              int                    `toml:"max_ticks"`
	SnapshotInterval      int                    `toml:"snapshot_interval"` // ticks per outbound batch
	ManaPerAttack         int                    `toml:"mana_per_attack"`
	ManaPerHit            int                    `toml:"mana_per_hit"`
	MoveSpeed             int                    `toml:"move_speed"` // accumulator gain per tick; a unit steps at 100
	ResultBaseDamage      int                    `toml:"result_base_damage"`
	StarHPMultipliers     []int                  `toml:"star_hp_multipliers"` // x100 fixed point, indexed by star-1
	StarAttackMultipliers []int                  `toml:"star_attack_multipliers"`
	ResonanceThresholds   []int                  `toml:"resonance_thresholds"`
	ClassStats            map[string]ClassCombat `toml:"class_stats"`
	ResonanceBonuses      map[string][]StatBonus `toml:"resonance_bonuses"` // kind -> one entry per tier
}

type ClassCombat struct {
	AttackCooldownTicks int `toml:"attack_cooldown_ticks"`
	AttackRange         int `toml:"attack_range"`
}

type StatBonus struct {
	HP             int `toml:"hp"`
	Attack         int `toml:"attack"`
	Defense        int `toml:"defense"`
	MagicResist    int `toml:"magic_resist"`
	AttackSpeedPct int `toml:"attack_speed_pct"`
}

type InterventionConfig struct {
	MaxEnergy            int                   `toml:"max_energy"`
	PassiveIntervalTicks int                   `toml:"passive_interval_ticks"`
	KillEnergy           int                   `toml:"kill_energy"`
	DamagePerEnergy      int                   `toml:"damage_per_energy"` // +1 energy per this much damage received
	Cards                map[string]CardConfig `toml:"cards"`             // keyed by intervention kind name
}

type CardConfig struct {
	Cost          int           `toml:"cost"`
	Cooldown      time.Duration `toml:"cooldown"`
	DurationTicks int           `toml:"duration_ticks"`
	ShieldHP      int           `toml:"shield_hp"`
}

type MatchmakerConfig struct {
	GhostID  int32 `toml:"ghost_id"`
	AtRiskHP int   `toml:"at_risk_hp"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// envOverrides are the knobs operators may set without touching the config
// file. Pointer fields distinguish unset from zero.
type envOverrides struct {
	BindAddress string `env:"ECHOARENA_LISTEN"`
	MetricsAddr string `env:"ECHOARENA_METRICS"`
	LogLevel    string `env:"ECHOARENA_LOG_LEVEL"`
	LogFormat   string `env:"ECHOARENA_LOG_FORMAT"`
	Seed        *int64 `env:"ECHOARENA_SEED"`
	MaxClients  *int   `env:"ECHOARENA_MAX_CLIENTS"`
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyEnv(ov)
	return cfg, nil
}

func (c *Config) applyEnv(ov envOverrides) {
	if ov.BindAddress != "" {
		c.Network.BindAddress = ov.BindAddress
	}
	if ov.MetricsAddr != "" {
		c.Server.MetricsAddr = ov.MetricsAddr
	}
	if ov.LogLevel != "" {
		c.Logging.Level = ov.LogLevel
	}
	if ov.LogFormat != "" {
		c.Logging.Format = ov.LogFormat
	}
	if ov.Seed != nil {
		c.Server.Seed = *ov.Seed
	}
	if ov.MaxClients != nil {
		c.Network.MaxClients = *ov.MaxClients
	}
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "EchoArena",
		},
		Network: NetworkConfig{
			BindAddress:        "0.0.0.0:7777",
			TickRate:           16 * time.Millisecond,
			MaxClients:         8,
			InQueueSize:        128,
			OutQueueSize:       256,
			MaxMessagesPerTick: 32,
			WriteTimeout:       10 * time.Second,
			ReadTimeout:        90 * time.Second,
			MessagesPerSecond:  30,
			MessageBurst:       60,
		},
		Ack: AckConfig{
			Timeout:       time.Second,
			MaxRetries:    3,
			SweepInterval: 250 * time.Millisecond,
		},
		Phases: PhaseConfig{
			LobbyCountdown: 3 * time.Second,
			Preparation:    30 * time.Second,
			CombatCap:      45 * time.Second,
			Reward:         6 * time.Second,
			MutationChoice: 10 * time.Second,
		},
		Player: PlayerConfig{
			StartingNexus:  100,
			StartingGold:   5,
			MaxGold:        100,
			BenchSize:      9,
			BoardCols:      4,
			BoardRows:      4,
			LevelCap:       10,
			XPThresholds:   []int{2, 2, 6, 10, 20, 36, 56, 80, 100},
			XPBuyCost:      4,
			XPBuyAmount:    4,
			AutoXPPerRound: 2,
			BaseIncome:     5,
			InterestPer:    10,
			InterestCap:    5,
			StreakTiers: []StreakTier{
				{Min: 2, Bonus: 1},
				{Min: 4, Bonus: 2},
				{Min: 6, Bonus: 3},
			},
		},
		Shop: ShopConfig{
			Size:          5,
			RefreshCost:   2,
			PityRare:      5,
			PityEpic:      8,
			PityLegendary: 12,
			Costs: map[string]int{
				"common":    1,
				"uncommon":  2,
				"rare":      3,
				"epic":      4,
				"legendary": 5,
			},
			Buckets: []RarityBucket{
				{MaxLevel: 1, Weights: map[string]int{"common": 100}},
				{MaxLevel: 3, Weights: map[string]int{"common": 75, "uncommon": 25}},
				{MaxLevel: 6, Weights: map[string]int{"common": 55, "uncommon": 30, "rare": 15}},
				{MaxLevel: 9, Weights: map[string]int{"common": 35, "uncommon": 30, "rare": 25, "epic": 9, "legendary": 1}},
				{MaxLevel: 10, Weights: map[string]int{"common": 20, "uncommon": 25, "rare": 30, "epic": 18, "legendary": 7}},
			},
		},
		Pool: PoolConfig{
			Copies: map[string]int{
				"common":    29,
				"uncommon":  22,
				"rare":      18,
				"epic":      12,
				"legendary": 10,
			},
		},
		Combat: CombatConfig{
			TicksPerSecond:        60,
			MaxTicks:              1800,
			SnapshotInterval:      3,
			ManaPerAttack:         10,
			ManaPerHit:            10,
			MoveSpeed:             25,
			ResultBaseDamage:      2,
			StarHPMultipliers:     []int{100, 190, 360},
			StarAttackMultipliers: []int{100, 175, 305},
			ResonanceThresholds:   []int{2, 4, 6},
			ClassStats: map[string]ClassCombat{
				"vanguard":  {AttackCooldownTicks: 30, AttackRange: 1},
				"striker":   {AttackCooldownTicks: 24, AttackRange: 1},
				"warden":    {AttackCooldownTicks: 36, AttackRange: 2},
				"arcanist":  {AttackCooldownTicks: 42, AttackRange: 3},
				"trickster": {AttackCooldownTicks: 27, AttackRange: 1},
			},
			ResonanceBonuses: map[string][]StatBonus{
				"ember": {{Attack: 5}, {Attack: 12}, {Attack: 25}},
				"tide":  {{HP: 40}, {HP: 110}, {HP: 250}},
				"gale":  {{AttackSpeedPct: 10}, {AttackSpeedPct: 25}, {AttackSpeedPct: 45}},
				"terra": {{Defense: 4}, {Defense: 10}, {Defense: 20}},
				"umbra": {{Attack: 3, MagicResist: 3}, {Attack: 8, MagicResist: 8}, {Attack: 18, MagicResist: 15}},
				"lumen": {{MagicResist: 5, HP: 20}, {MagicResist: 12, HP: 60}, {MagicResist: 22, HP: 140}},
			},
		},
		Intervention: InterventionConfig{
			MaxEnergy:            10,
			PassiveIntervalTicks: 180,
			KillEnergy:           2,
			DamagePerEnergy:      150,
			Cards: map[string]CardConfig{
				"reposition":       {Cost: 2, Cooldown: 6 * time.Second},
				"focus":            {Cost: 3, Cooldown: 10 * time.Second, DurationTicks: 300},
				"barrier":          {Cost: 4, Cooldown: 8 * time.Second, ShieldHP: 150},
				"accelerate":       {Cost: 5, Cooldown: 14 * time.Second, DurationTicks: 240},
				"tactical_retreat": {Cost: 3, Cooldown: 10 * time.Second, DurationTicks: 180},
			},
		},
		Matchmaker: MatchmakerConfig{
			GhostID:  -99,
			AtRiskHP: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
