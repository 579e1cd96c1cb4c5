package combat

import (
	"fmt"
	"time"

	"github.com/echoarena/server/internal/config"
	"github.com/echoarena/server/internal/data"
)

// Settings carries the combat numbers with class and resonance names
// resolved to their enum keys.
type Settings struct {
	Width  int // combined board: 2 x BoardCols
	Height int

	TicksPerSecond   int
	MaxTicks         int
	SnapshotInterval int

	ManaPerAttack    int
	ManaPerHit       int
	MoveSpeed        int // accumulator gain per tick; a unit steps at 100
	ResultBaseDamage int

	StarHP     []int // x100 fixed point, indexed by star-1
	StarAttack []int

	ResonanceThresholds []int
	Class               map[data.Class]ClassStats
	ResonanceBonus      map[data.Resonance][]StatBonus

	Intervention InterventionSettings
}

type ClassStats struct {
	CooldownTicks int
	Range         int
}

type StatBonus struct {
	HP             int
	Attack         int
	Defense        int
	MagicResist    int
	AttackSpeedPct int
}

// InterventionSettings is the energy economy plus the per-kind card table.
type InterventionSettings struct {
	MaxEnergy            int
	PassiveIntervalTicks int
	KillEnergy           int
	DamagePerEnergy      int
	Cards                map[InterventionKind]Card
}

type Card struct {
	Cost          int
	Cooldown      time.Duration
	DurationTicks int
	ShieldHP      int
}

// SettingsFromConfig resolves the name-keyed config maps. boardCols and
// boardRows come from the player layout; the combat board doubles the
// columns.
func SettingsFromConfig(cc config.CombatConfig, ic config.InterventionConfig, boardCols, boardRows int) (Settings, error) {
	set := Settings{
		Width:               2 * boardCols,
		Height:              boardRows,
		TicksPerSecond:      cc.TicksPerSecond,
		MaxTicks:            cc.MaxTicks,
		SnapshotInterval:    cc.SnapshotInterval,
		ManaPerAttack:       cc.ManaPerAttack,
		ManaPerHit:          cc.ManaPerHit,
		MoveSpeed:           cc.MoveSpeed,
		ResultBaseDamage:    cc.ResultBaseDamage,
		StarHP:              cc.StarHPMultipliers,
		StarAttack:          cc.StarAttackMultipliers,
		ResonanceThresholds: cc.ResonanceThresholds,
		Class:               make(map[data.Class]ClassStats),
		ResonanceBonus:      make(map[data.Resonance][]StatBonus),
	}
	for name, cs := range cc.ClassStats {
		c, err := data.ParseClass(name)
		if err != nil {
			return Settings{}, fmt.Errorf("combat class_stats: %w", err)
		}
		set.Class[c] = ClassStats{CooldownTicks: cs.AttackCooldownTicks, Range: cs.AttackRange}
	}
	for name, rows := range cc.ResonanceBonuses {
		r, err := data.ParseResonance(name)
		if err != nil {
			return Settings{}, fmt.Errorf("combat resonance_bonuses: %w", err)
		}
		bonuses := make([]StatBonus, len(rows))
		for i, b := range rows {
			bonuses[i] = StatBonus{
				HP:             b.HP,
				Attack:         b.Attack,
				Defense:        b.Defense,
				MagicResist:    b.MagicResist,
				AttackSpeedPct: b.AttackSpeedPct,
			}
		}
		set.ResonanceBonus[r] = bonuses
	}

	set.Intervention = InterventionSettings{
		MaxEnergy:            ic.MaxEnergy,
		PassiveIntervalTicks: ic.PassiveIntervalTicks,
		KillEnergy:           ic.KillEnergy,
		DamagePerEnergy:      ic.DamagePerEnergy,
		Cards:                make(map[InterventionKind]Card),
	}
	for name, card := range ic.Cards {
		k, err := ParseInterventionKind(name)
		if err != nil {
			return Settings{}, fmt.Errorf("intervention cards: %w", err)
		}
		set.Intervention.Cards[k] = Card{
			Cost:          card.Cost,
			Cooldown:      card.Cooldown,
			DurationTicks: card.DurationTicks,
			ShieldHP:      card.ShieldHP,
		}
	}
	return set, nil
}
