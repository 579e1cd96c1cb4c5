package combat

import "fmt"

// EffectKind is the closed set of status effects. New effects extend the
// table below; the simulator only ever talks to the fixed hook set.
type EffectKind int

const (
	EffectStun EffectKind = iota
	EffectFreeze
	EffectHaste
	EffectBurn
	EffectVulnerability
	EffectReflect
	EffectInvulnerable
	EffectStealth
	EffectAttackUp

	effectKindCount
)

var effectNames = [effectKindCount]string{
	"stun", "freeze", "haste", "burn", "vulnerability",
	"reflect", "invulnerable", "stealth", "attack_up",
}

func (k EffectKind) String() string {
	if k < 0 || k >= effectKindCount {
		return fmt.Sprintf("effect(%d)", int(k))
	}
	return effectNames[k]
}

// Effect is one active status on a unit. Amount's meaning is per kind:
// burn damage per interval, vulnerability/reflect percent, attack-up flat.
type Effect struct {
	Kind   EffectKind
	Ticks  int
	Amount int
	Source int32
}

// burnInterval spaces damage-over-time pulses.
const burnInterval = 15

// Stats is the mutable stat view effects compose over. modifyStats hooks
// are pure: they take the current bundle and return a new one, and the
// simulator rebuilds the composition from the base snapshot every query.
type Stats struct {
	Attack      int
	Defense     int
	MagicResist int
	CritChance  int
	CritDamage  int
}

// effectHooks is the complete surface an effect can implement. Absent
// hooks are skipped.
type effectHooks struct {
	prevents      bool // blocks the unit's whole action for the duration
	untargetable  bool // skipped by enemy target selection
	modifyStats   func(e Effect, s Stats) Stats
	beforeDeal    func(e Effect, ctx *damageContext)
	beforeReceive func(e Effect, ctx *damageContext)
	onApply       func(e *Effect, u *Unit)
	onTick        func(e *Effect, u *Unit, s *Simulator)
	onRemove      func(e *Effect, u *Unit)
}

var effectTable = map[EffectKind]effectHooks{
	EffectStun:   {prevents: true},
	EffectFreeze: {prevents: true},
	EffectHaste:  {}, // consumed by the cooldown step directly
	EffectBurn: {
		onTick: func(e *Effect, u *Unit, s *Simulator) {
			if e.Ticks%burnInterval != 0 {
				return
			}
			s.directDamage(u, e.Amount, e.Source)
		},
	},
	EffectVulnerability: {
		beforeReceive: func(e Effect, ctx *damageContext) {
			ctx.damage += ctx.damage * e.Amount / 100
		},
	},
	EffectReflect: {
		beforeReceive: func(e Effect, ctx *damageContext) {
			ctx.reflected += ctx.damage * e.Amount / 100
		},
	},
	EffectInvulnerable: {
		beforeReceive: func(e Effect, ctx *damageContext) {
			ctx.damage = 0
		},
	},
	EffectStealth: {untargetable: true},
	EffectAttackUp: {
		modifyStats: func(e Effect, s Stats) Stats {
			s.Attack += e.Amount
			return s
		},
	},
}

// baseStats snapshots the unit's unmodified bundle.
func (u *Unit) baseStats() Stats {
	return Stats{
		Attack:      u.Attack,
		Defense:     u.Defense,
		MagicResist: u.MagicResist,
		CritChance:  u.CritChance,
		CritDamage:  u.CritDamage,
	}
}

// effectiveStats composes every active effect's modifyStats over the base
// snapshot, in application order.
func (u *Unit) effectiveStats() Stats {
	s := u.baseStats()
	for _, e := range u.Effects {
		if h := effectTable[e.Kind].modifyStats; h != nil {
			s = h(e, s)
		}
	}
	return s
}

// actionable reports whether the unit may act this tick.
func (u *Unit) actionable() bool {
	for _, e := range u.Effects {
		if effectTable[e.Kind].prevents {
			return false
		}
	}
	return true
}

// targetable reports whether enemies may select the unit.
func (u *Unit) targetable() bool {
	for _, e := range u.Effects {
		if effectTable[e.Kind].untargetable {
			return false
		}
	}
	return true
}

// tickEffects advances durations, firing onTick and dropping expired
// effects through onRemove. Focus overrides age here too.
func (s *Simulator) tickEffects(u *Unit) {
	kept := u.Effects[:0]
	for i := range u.Effects {
		e := &u.Effects[i]
		if h := effectTable[e.Kind].onTick; h != nil {
			h(e, u, s)
		}
		e.Ticks--
		if e.Ticks > 0 {
			kept = append(kept, *e)
			continue
		}
		if h := effectTable[e.Kind].onRemove; h != nil {
			h(e, u)
		}
	}
	u.Effects = kept

	if u.FocusTicks > 0 {
		u.FocusTicks--
		if u.FocusTicks == 0 {
			u.FocusTarget = 0
		}
	}
}
