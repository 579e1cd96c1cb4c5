package combat

// damageContext rides through the pipeline stages. Hooks mutate damage and
// reflected; everything else is read-only for them.
type damageContext struct {
	attacker  *Unit
	target    *Unit
	damage    int
	crit      bool
	reflected int
}

// dealDamage runs the full ordered pipeline and returns the damage that
// reached hp (after shields). All attack and ability damage comes through
// here so reflect, vulnerability, and invulnerability compose uniformly.
func (s *Simulator) dealDamage(attacker, target *Unit, base int, crit bool) int {
	ctx := damageContext{attacker: attacker, target: target, damage: base, crit: crit}

	// 1. Defense, floored at 1 so a tank can never be fully ignored.
	ctx.damage -= target.effectiveStats().Defense
	if ctx.damage < 1 {
		ctx.damage = 1
	}

	// 2. Crit multiplier.
	if crit {
		ctx.damage = ctx.damage * attacker.effectiveStats().CritDamage / 100
	}

	// 3. Attacker deal hooks, then target receive hooks.
	for _, e := range attacker.Effects {
		if h := effectTable[e.Kind].beforeDeal; h != nil {
			h(e, &ctx)
		}
	}
	for _, e := range target.Effects {
		if h := effectTable[e.Kind].beforeReceive; h != nil {
			h(e, &ctx)
		}
	}

	// 4. Shield absorption.
	absorbed := min(target.Shield, ctx.damage)
	target.Shield -= absorbed
	ctx.damage -= absorbed

	// 5. Apply to hp.
	s.applyHP(target, ctx.damage, attacker.InstanceID)

	// Reflected damage skips the pipeline: it is a fixed echo, not an
	// attack, so it cannot reflect again.
	if ctx.reflected > 0 && attacker.Alive {
		s.applyHP(attacker, ctx.reflected, target.InstanceID)
	}
	return ctx.damage
}

// directDamage bypasses defense and shields (damage-over-time pulses).
func (s *Simulator) directDamage(target *Unit, amount int, source int32) {
	s.applyHP(target, amount, source)
}

// applyHP lowers hp, records received damage for the energy meter, and
// emits the death event exactly once.
func (s *Simulator) applyHP(target *Unit, amount int, source int32) {
	if amount <= 0 || !target.Alive {
		return
	}
	target.HP -= amount
	s.damageTaken[target.Team] += amount
	if target.HP <= 0 {
		target.HP = 0
		target.Alive = false
		s.kills[1-target.Team]++
		s.sink.add(Event{Kind: EventDeath, Source: source, Target: target.InstanceID})
	}
}
