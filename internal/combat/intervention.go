package combat

import (
	"fmt"
	"time"

	"github.com/echoarena/server/internal/world"
)

// InterventionKind is the closed set of mid-combat player actions.
type InterventionKind int

const (
	Reposition InterventionKind = iota
	Focus
	Barrier
	Accelerate
	TacticalRetreat

	interventionKindCount
)

var interventionNames = [interventionKindCount]string{
	"reposition", "focus", "barrier", "accelerate", "tactical_retreat",
}

func (k InterventionKind) String() string {
	if k < 0 || k >= interventionKindCount {
		return fmt.Sprintf("intervention(%d)", int(k))
	}
	return interventionNames[k]
}

// ParseInterventionKind resolves a card name from config or the wire.
func ParseInterventionKind(name string) (InterventionKind, error) {
	for i, n := range interventionNames {
		if n == name {
			return InterventionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown intervention %q", name)
}

// Intervention is a validated, paid-for action waiting for the next batch.
type Intervention struct {
	Kind     InterventionKind
	Team     int
	TargetID int32
}

// InterventionEngine owns a single combat's energy economy and cooldowns.
// Energy accrues from simulated time; cooldowns run on wall-clock time and
// may outlive the combat.
type InterventionEngine struct {
	set InterventionSettings
	sim *Simulator

	energy      [2]int
	damageCarry [2]int
	cooldowns   [2]map[InterventionKind]time.Duration
	pending     []Intervention

	passiveAcc int
	lastTick   int
	lastKills  [2]int
	lastDamage [2]int
}

func NewInterventionEngine(set InterventionSettings, sim *Simulator) *InterventionEngine {
	e := &InterventionEngine{set: set, sim: sim}
	for t := range e.cooldowns {
		e.cooldowns[t] = make(map[InterventionKind]time.Duration)
	}
	return e
}

// Energy reports a team's current balance.
func (e *InterventionEngine) Energy(team int) int { return e.energy[team] }

// CooldownTick advances every card cooldown by the wall-clock delta.
func (e *InterventionEngine) CooldownTick(delta time.Duration) {
	for t := range e.cooldowns {
		for k, left := range e.cooldowns[t] {
			left -= delta
			if left <= 0 {
				delete(e.cooldowns[t], k)
				continue
			}
			e.cooldowns[t][k] = left
		}
	}
}

// Accrue grants energy for what the simulator did since the last call:
// passive time, kills by the team, and damage the team received (with
// remainder carry). Everything clamps to the configured maximum.
func (e *InterventionEngine) Accrue() {
	ticks := e.sim.tick - e.lastTick
	e.lastTick = e.sim.tick

	if e.set.PassiveIntervalTicks > 0 {
		e.passiveAcc += ticks
		gain := e.passiveAcc / e.set.PassiveIntervalTicks
		e.passiveAcc %= e.set.PassiveIntervalTicks
		for t := range e.energy {
			e.energy[t] += gain
		}
	}

	for t := range e.energy {
		kills := e.sim.kills[t] - e.lastKills[t]
		e.lastKills[t] = e.sim.kills[t]
		e.energy[t] += kills * e.set.KillEnergy

		if e.set.DamagePerEnergy > 0 {
			e.damageCarry[t] += e.sim.damageTaken[t] - e.lastDamage[t]
			e.lastDamage[t] = e.sim.damageTaken[t]
			e.energy[t] += e.damageCarry[t] / e.set.DamagePerEnergy
			e.damageCarry[t] %= e.set.DamagePerEnergy
		}

		if e.energy[t] > e.set.MaxEnergy {
			e.energy[t] = e.set.MaxEnergy
		}
	}
}

// Submit validates, charges, and queues an intervention for the team. A
// rejection leaves energy and cooldowns untouched.
func (e *InterventionEngine) Submit(team int, kind InterventionKind, targetID int32) error {
	card, ok := e.set.Cards[kind]
	if !ok {
		return world.Reject(world.ReasonUnitNotFound)
	}
	if e.energy[team] < card.Cost {
		return world.Reject("Energia insufficiente (%d/%d)", e.energy[team], card.Cost)
	}
	if left, held := e.cooldowns[team][kind]; held {
		secs := int((left + time.Second - 1) / time.Second)
		return world.Reject("Cooldown: %ds", secs)
	}
	if err := e.validateTarget(team, kind, targetID); err != nil {
		return err
	}

	e.energy[team] -= card.Cost
	e.cooldowns[team][kind] = card.Cooldown
	e.pending = append(e.pending, Intervention{Kind: kind, Team: team, TargetID: targetID})
	return nil
}

// validateTarget checks the target is alive and on the right side. Only
// Accelerate is targetless; Focus wants an enemy, the rest an ally.
func (e *InterventionEngine) validateTarget(team int, kind InterventionKind, targetID int32) error {
	if kind == Accelerate {
		return nil
	}
	u := e.sim.unitByID(targetID)
	if u == nil || !u.Alive {
		return world.Reject(world.ReasonUnitNotFound)
	}
	wantTeam := team
	if kind == Focus {
		wantTeam = 1 - team
	}
	if u.Team != wantTeam {
		return world.Reject(world.ReasonUnitNotFound)
	}
	return nil
}

// Drain hands the queued interventions to the next StepBatch call.
func (e *InterventionEngine) Drain() []Intervention {
	out := e.pending
	e.pending = nil
	return out
}

// applyIntervention executes one queued card against the live unit list.
// The charge already happened at submit time; a target that died in the
// meantime simply wastes the card.
func (s *Simulator) applyIntervention(iv Intervention) {
	card := s.set.Intervention.Cards[iv.Kind]

	emit := func(target int32) {
		s.sink.add(Event{Kind: EventIntervention, Target: target, Card: iv.Kind.String()})
	}

	switch iv.Kind {
	case Reposition:
		u := s.unitByID(iv.TargetID)
		if u == nil || !u.Alive || u.Team != iv.Team {
			return
		}
		if col, row, ok := s.freeAdjacent(u); ok {
			u.Col, u.Row = col, row
		}
		emit(u.InstanceID)

	case Focus:
		target := s.unitByID(iv.TargetID)
		if target == nil || !target.Alive || target.Team == iv.Team {
			return
		}
		for _, u := range s.units {
			if u.Team != iv.Team || !u.Alive || u.Retreating {
				continue
			}
			u.FocusTarget = target.InstanceID
			u.FocusTicks = card.DurationTicks
		}
		emit(target.InstanceID)

	case Barrier:
		u := s.unitByID(iv.TargetID)
		if u == nil || !u.Alive || u.Team != iv.Team {
			return
		}
		u.Shield += card.ShieldHP
		emit(u.InstanceID)

	case Accelerate:
		for _, u := range s.units {
			if u.Team != iv.Team || !u.Alive {
				continue
			}
			u.AddEffect(Effect{Kind: EffectHaste, Ticks: card.DurationTicks}, &s.sink)
		}
		emit(-1)

	case TacticalRetreat:
		u := s.unitByID(iv.TargetID)
		if u == nil || !u.Alive || u.Team != iv.Team || u.Retreating {
			return
		}
		u.Retreating = true
		u.RetreatTicks = card.DurationTicks
		u.ReturnCol, u.ReturnRow = u.Col, u.Row
		if u.Team == 0 {
			u.Col = 0
		} else {
			u.Col = s.set.Width - 1
		}
		emit(u.InstanceID)
	}
}

// freeAdjacent scans the eight neighbours in a fixed order and returns the
// first in-bounds empty cell.
func (s *Simulator) freeAdjacent(u *Unit) (int, int, bool) {
	offsets := [8][2]int{
		{-1, 0}, {1, 0}, {0, -1}, {0, 1},
		{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
	}
	for _, o := range offsets {
		col, row := u.Col+o[0], u.Row+o[1]
		if col < 0 || col >= s.set.Width || row < 0 || row >= s.set.Height {
			continue
		}
		if s.occupied(col, row) {
			continue
		}
		return col, row, true
	}
	return 0, 0, false
}
