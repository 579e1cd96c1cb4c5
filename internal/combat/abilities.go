package combat

// abilityHandler receives the caster and mutates the fight through the
// simulator. All damage must go through the pipeline; every handler emits
// at least one ability event.
type abilityHandler func(s *Simulator, caster *Unit)

// The ability table. Ids are the catalog's ability references; a cast with
// an unknown id is an invariant break and is dropped with a log at load.
var abilityTable = map[int32]abilityHandler{
	2001: castCinderBurst,
	2002: castHealingLight,
	2003: castStunningBlow,
	2004: castChainLightning,
	2005: castBulwark,
	2006: castNova,
	2007: castVeil,
	2008: castWarCry,
	2009: castEssenceDrain,
	2010: castShadowRend,
}

func (s *Simulator) castAbility(caster *Unit, abilityID int32) {
	h, ok := abilityTable[abilityID]
	if !ok {
		return
	}
	h(s, caster)
}

// Cinder Burst: spike damage plus a burn that pulses for the duration.
func castCinderBurst(s *Simulator, caster *Unit) {
	target := s.selectTarget(caster)
	if target == nil {
		return
	}
	dealt := s.dealDamage(caster, target, caster.effectiveStats().Attack*120/100, false)
	target.AddEffect(Effect{
		Kind:   EffectBurn,
		Ticks:  90,
		Amount: caster.effectiveStats().Attack / 4,
		Source: caster.InstanceID,
	}, &s.sink)
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2001})
}

// Healing Light: restores the most wounded living ally.
func castHealingLight(s *Simulator, caster *Unit) {
	var worst *Unit
	for _, u := range s.units {
		if u.Team != caster.Team || !u.Alive {
			continue
		}
		if worst == nil || u.MaxHP-u.HP > worst.MaxHP-worst.HP {
			worst = u
		}
	}
	if worst == nil {
		return
	}
	amount := caster.effectiveStats().Attack * 2
	worst.HP = min(worst.HP+amount, worst.MaxHP)
	s.sink.add(Event{Kind: EventHeal, Source: caster.InstanceID, Target: worst.InstanceID, Amount: amount})
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: worst.InstanceID, Amount: amount, Ability: 2002})
}

// Stunning Blow: damage plus a one second stun.
func castStunningBlow(s *Simulator, caster *Unit) {
	target := s.selectTarget(caster)
	if target == nil {
		return
	}
	dealt := s.dealDamage(caster, target, caster.effectiveStats().Attack*110/100, false)
	if target.Alive {
		target.AddEffect(Effect{Kind: EffectStun, Ticks: 60, Source: caster.InstanceID}, &s.sink)
	}
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2003})
}

// Chain Lightning: hits up to three enemies with decaying damage.
func castChainLightning(s *Simulator, caster *Unit) {
	scales := []int{100, 80, 60}
	hit := 0
	for _, target := range s.enemiesByDistance(caster) {
		if hit >= len(scales) {
			break
		}
		dealt := s.dealDamage(caster, target, caster.effectiveStats().Attack*scales[hit]/100, false)
		s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2004})
		hit++
	}
}

// Bulwark: self shield worth a fifth of max hp.
func castBulwark(s *Simulator, caster *Unit) {
	amount := caster.MaxHP * 20 / 100
	caster.Shield += amount
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: caster.InstanceID, Amount: amount, Ability: 2005})
}

// Nova: damage to every enemy within two cells.
func castNova(s *Simulator, caster *Unit) {
	base := caster.effectiveStats().Attack * 90 / 100
	for _, target := range s.enemiesByDistance(caster) {
		if caster.chebyshev(target) > 2 {
			break
		}
		dealt := s.dealDamage(caster, target, base, false)
		s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2006})
	}
}

// Veil: brief stealth plus a lingering attack buff.
func castVeil(s *Simulator, caster *Unit) {
	caster.AddEffect(Effect{Kind: EffectStealth, Ticks: 45, Source: caster.InstanceID}, &s.sink)
	caster.AddEffect(Effect{
		Kind:   EffectAttackUp,
		Ticks:  180,
		Amount: caster.Attack * 30 / 100,
		Source: caster.InstanceID,
	}, &s.sink)
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: caster.InstanceID, Ability: 2007})
}

// War Cry: attack buff for the whole team.
func castWarCry(s *Simulator, caster *Unit) {
	amount := caster.Attack * 15 / 100
	for _, u := range s.units {
		if u.Team != caster.Team || !u.Alive {
			continue
		}
		u.AddEffect(Effect{Kind: EffectAttackUp, Ticks: 180, Amount: amount, Source: caster.InstanceID}, &s.sink)
	}
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: caster.InstanceID, Amount: amount, Ability: 2008})
}

// Essence Drain: damage the target, heal the caster for half of it.
func castEssenceDrain(s *Simulator, caster *Unit) {
	target := s.selectTarget(caster)
	if target == nil {
		return
	}
	dealt := s.dealDamage(caster, target, caster.effectiveStats().Attack, false)
	heal := dealt / 2
	caster.HP = min(caster.HP+heal, caster.MaxHP)
	s.sink.add(Event{Kind: EventHeal, Source: caster.InstanceID, Target: caster.InstanceID, Amount: heal})
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2009})
}

// Shadow Rend: damage plus a vulnerability window.
func castShadowRend(s *Simulator, caster *Unit) {
	target := s.selectTarget(caster)
	if target == nil {
		return
	}
	dealt := s.dealDamage(caster, target, caster.effectiveStats().Attack*110/100, false)
	if target.Alive {
		target.AddEffect(Effect{Kind: EffectVulnerability, Ticks: 120, Amount: 20, Source: caster.InstanceID}, &s.sink)
	}
	s.sink.add(Event{Kind: EventAbility, Source: caster.InstanceID, Target: target.InstanceID, Amount: dealt, Ability: 2010})
}
