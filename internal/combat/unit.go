package combat

import (
	"fmt"
	"sort"

	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/world"
)

// Strategy picks how a unit chooses its victim.
type Strategy int

const (
	TargetNearest Strategy = iota
	TargetFarthest
)

// Unit is one fighter, created fresh for a combat and discarded with it.
type Unit struct {
	InstanceID   int32
	DefinitionID int32
	Team         int
	Col, Row     int

	HP, MaxHP     int
	Mana, ManaMax int
	Shield        int

	Attack      int
	Defense     int
	MagicResist int
	CritChance  int // percent
	CritDamage  int // percent of base, 150 = +50%

	CooldownBase int // ticks between attacks, attack speed already applied
	Cooldown     int
	Range        int
	MoveAcc      int

	Alive     bool
	Strategy  Strategy
	Abilities []int32
	Effects   []Effect

	Retreating           bool
	RetreatTicks         int
	ReturnCol, ReturnRow int

	FocusTarget int32 // 0 = none
	FocusTicks  int
}

// MutationBonus is the aggregated combat effect of a player's mutation
// tokens, resolved by the session before loading.
type MutationBonus struct {
	HPPct     int
	AttackPct int
}

// LoadUnits builds a team's combat units from a player's board. Team 0
// keeps board coordinates; team 1 is mirrored across the column axis.
// Star multipliers, resonance tier bonuses, and mutation bonuses are baked
// into the stat snapshot here, once.
func LoadUnits(set Settings, catalog *data.Catalog, p *world.PlayerRuntime, team int, bonus MutationBonus) ([]*Unit, error) {
	boardCols := set.Width / 2

	var units []*Unit
	for i, slot := range p.Board {
		if slot.Empty() {
			continue
		}
		def := catalog.ByInstance(slot.InstanceID)
		if def == nil {
			return nil, fmt.Errorf("board instance %d has no catalog entry", slot.InstanceID)
		}
		class, ok := set.Class[def.Class]
		if !ok {
			return nil, fmt.Errorf("no combat stats for class %s", def.Class)
		}

		col := i % boardCols
		row := i / boardCols
		if team == 1 {
			col = set.Width - 1 - col
		}

		star := slot.Star
		if star < 1 {
			star = 1
		}
		if star > len(set.StarHP) {
			star = len(set.StarHP)
		}

		hp := def.Stats.HP * set.StarHP[star-1] / 100
		attack := def.Stats.Attack * set.StarAttack[star-1] / 100
		defense := def.Stats.Defense
		magicResist := def.Stats.MagicResist
		speedPct := def.Stats.AttackSpeedPct
		if speedPct <= 0 {
			speedPct = 100
		}

		for _, res := range p.Resonances {
			if def.Resonance != res.Kind && def.Resonance != data.ResonancePrism {
				continue
			}
			rows := set.ResonanceBonus[res.Kind]
			if res.Tier < 1 || res.Tier > len(rows) {
				continue
			}
			b := rows[res.Tier-1]
			hp += b.HP
			attack += b.Attack
			defense += b.Defense
			magicResist += b.MagicResist
			speedPct += b.AttackSpeedPct
		}

		hp += hp * bonus.HPPct / 100
		attack += attack * bonus.AttackPct / 100

		cooldown := class.CooldownTicks * 100 / speedPct
		if cooldown < 1 {
			cooldown = 1
		}
		rng := def.Stats.Range
		if rng <= 0 {
			rng = class.Range
		}

		strategy := TargetNearest
		if def.Class == data.ClassArcanist {
			strategy = TargetFarthest
		}

		units = append(units, &Unit{
			InstanceID:   slot.InstanceID,
			DefinitionID: def.ID,
			Team:         team,
			Col:          col,
			Row:          row,
			HP:           hp,
			MaxHP:        hp,
			Mana:         def.Stats.ManaStart,
			ManaMax:      def.Stats.ManaMax,
			Attack:       attack,
			Defense:      defense,
			MagicResist:  magicResist,
			CritChance:   def.Stats.CritChance,
			CritDamage:   def.Stats.CritDamage,
			CooldownBase: cooldown,
			Range:        rng,
			Alive:        true,
			Strategy:     strategy,
			Abilities:    append([]int32(nil), def.Abilities...),
		})
	}
	sort.Slice(units, func(a, b int) bool { return units[a].InstanceID < units[b].InstanceID })
	return units, nil
}

// HasEffect reports whether an effect of the kind is active.
func (u *Unit) HasEffect(kind EffectKind) bool {
	for _, e := range u.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// AddEffect applies a status effect and fires its on-apply hook.
func (u *Unit) AddEffect(e Effect, events *eventSink) {
	u.Effects = append(u.Effects, e)
	if h := effectTable[e.Kind].onApply; h != nil {
		h(&e, u)
	}
	events.add(Event{Kind: EventEffect, Source: e.Source, Target: u.InstanceID, Effect: e.Kind.String()})
}

func (u *Unit) chebyshev(o *Unit) int {
	dc := u.Col - o.Col
	if dc < 0 {
		dc = -dc
	}
	dr := u.Row - o.Row
	if dr < 0 {
		dr = -dr
	}
	return max(dc, dr)
}
