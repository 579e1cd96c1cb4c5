package combat

import (
	"math/rand"
	"sort"
)

// Simulator runs one combat pair deterministically: integer math only,
// units acted on in ascending instance id, all randomness from the seeded
// per-pair generator. Two simulators built from the same inputs produce
// byte-identical snapshot streams.
type Simulator struct {
	set   Settings
	rng   *rand.Rand
	units []*Unit
	byID  map[int32]*Unit

	tick   int
	round  int
	done   bool
	winner int

	sink        eventSink
	damageTaken [2]int
	kills       [2]int
}

// NewSimulator merges the two teams into one id-ordered list. round feeds
// the result damage formula.
func NewSimulator(set Settings, rng *rand.Rand, teamA, teamB []*Unit, round int) *Simulator {
	s := &Simulator{
		set:   set,
		rng:   rng,
		round: round,
		byID:  make(map[int32]*Unit, len(teamA)+len(teamB)),
	}
	s.units = append(s.units, teamA...)
	s.units = append(s.units, teamB...)
	sort.Slice(s.units, func(a, b int) bool { return s.units[a].InstanceID < s.units[b].InstanceID })
	for _, u := range s.units {
		s.byID[u.InstanceID] = u
	}
	return s
}

func (s *Simulator) unitByID(id int32) *Unit { return s.byID[id] }

// Tick reports simulated time so far.
func (s *Simulator) Tick() int { return s.tick }

// Done reports whether the combat has resolved.
func (s *Simulator) Done() bool { return s.done }

// UnitState is a unit's renderable slice of a snapshot.
type UnitState struct {
	InstanceID int32 `json:"id"`
	HP         int   `json:"hp"`
	MaxHP      int   `json:"max_hp"`
	Mana       int   `json:"mana"`
	ManaMax    int   `json:"max_mana"`
	Shield     int   `json:"shield"`
	Col        int   `json:"col"`
	Row        int   `json:"row"`
	Alive      bool  `json:"alive"`
}

// Snapshot is a value: clients render from it alone, the server never
// reads one back.
type Snapshot struct {
	Tick   int         `json:"tick"`
	Units  []UnitState `json:"units"`
	Events []Event     `json:"events"`
	Done   bool        `json:"done"`
}

// Result is emitted once, when the combat resolves.
type Result struct {
	WinnerTeam int
	LoserTeam  int
	Damage     int
	Survivors  []int32
}

// StepBatch applies the queued interventions, advances one snapshot
// interval of ticks, and returns the resulting snapshot.
func (s *Simulator) StepBatch(pending []Intervention) Snapshot {
	if !s.done {
		for _, iv := range pending {
			s.applyIntervention(iv)
		}
		for i := 0; i < s.set.SnapshotInterval && !s.done; i++ {
			s.stepTick()
		}
	}
	return s.snapshot()
}

func (s *Simulator) snapshot() Snapshot {
	snap := Snapshot{
		Tick:   s.tick,
		Units:  make([]UnitState, 0, len(s.units)),
		Events: s.sink.drain(),
		Done:   s.done,
	}
	for _, u := range s.units {
		snap.Units = append(snap.Units, UnitState{
			InstanceID: u.InstanceID,
			HP:         u.HP,
			MaxHP:      u.MaxHP,
			Mana:       u.Mana,
			ManaMax:    u.ManaMax,
			Shield:     u.Shield,
			Col:        u.Col,
			Row:        u.Row,
			Alive:      u.Alive,
		})
	}
	return snap
}

// ForceEnd resolves an unfinished combat by the hard-cap rule. Used when
// the wall-clock safety timer fires before the simulated cap.
func (s *Simulator) ForceEnd() {
	if s.done {
		return
	}
	s.tick = s.set.MaxTicks
	s.checkEnd()
}

// Result computes the outcome. Valid only once Done.
func (s *Simulator) Result() Result {
	r := Result{WinnerTeam: s.winner, LoserTeam: 1 - s.winner}
	for _, u := range s.units {
		if u.Alive && u.Team == s.winner {
			r.Survivors = append(r.Survivors, u.InstanceID)
		}
	}
	r.Damage = s.set.ResultBaseDamage + s.round + len(r.Survivors)
	return r
}

// stepTick is one simulated tick. Order matters for determinism: retreat
// bookkeeping, then each living unit acts in id order, then effect
// durations advance, then end conditions.
func (s *Simulator) stepTick() {
	s.tick++
	s.sink.tick = s.tick

	for _, u := range s.units {
		if !u.Alive || !u.Retreating {
			continue
		}
		u.RetreatTicks--
		if u.RetreatTicks <= 0 {
			u.Retreating = false
			u.Col, u.Row = u.ReturnCol, u.ReturnRow
		}
	}

	for _, u := range s.units {
		if !u.Alive || u.Retreating || !u.actionable() {
			continue
		}

		if u.Cooldown > 0 {
			u.Cooldown--
			if u.Cooldown > 0 && u.HasEffect(EffectHaste) {
				u.Cooldown--
			}
		}

		target := s.selectTarget(u)
		if target == nil {
			continue
		}

		if u.chebyshev(target) <= u.Range {
			if u.Cooldown == 0 {
				s.attack(u, target)
			}
		} else {
			s.move(u, target)
		}
	}

	for _, u := range s.units {
		if u.Alive {
			s.tickEffects(u)
		}
	}

	s.checkEnd()
}

// attack swings once: crit roll, pipeline damage, mana gain on both sides,
// and a cast when the attacker hits full mana.
func (s *Simulator) attack(u, target *Unit) {
	stats := u.effectiveStats()
	crit := stats.CritChance > 0 && s.rng.Intn(100) < stats.CritChance

	dealt := s.dealDamage(u, target, stats.Attack, crit)
	kind := EventAttack
	if crit {
		kind = EventCrit
	}
	s.sink.add(Event{Kind: kind, Source: u.InstanceID, Target: target.InstanceID, Amount: dealt})

	u.Cooldown = u.CooldownBase

	if u.ManaMax > 0 {
		u.Mana = min(u.Mana+s.set.ManaPerAttack, u.ManaMax)
	}
	if target.Alive && target.ManaMax > 0 {
		target.Mana = min(target.Mana+s.set.ManaPerHit, target.ManaMax)
	}

	if u.ManaMax > 0 && u.Mana >= u.ManaMax && len(u.Abilities) > 0 {
		s.castAbility(u, u.Abilities[0])
		u.Mana = 0
	}
}

// move accumulates speed and steps toward the target, one cell per 100
// accumulated. Speeds above 100 cover several cells in one tick.
func (s *Simulator) move(u, target *Unit) {
	u.MoveAcc += s.set.MoveSpeed
	for u.MoveAcc >= 100 {
		u.MoveAcc -= 100
		s.stepToward(u, target)
	}
}

// stepToward advances one cell, column first. A blocked column step falls
// through to the row.
func (s *Simulator) stepToward(u, target *Unit) {
	if u.Col != target.Col {
		step := 1
		if target.Col < u.Col {
			step = -1
		}
		if !s.occupied(u.Col+step, u.Row) {
			u.Col += step
			return
		}
	}
	if u.Row != target.Row {
		step := 1
		if target.Row < u.Row {
			step = -1
		}
		if !s.occupied(u.Col, u.Row+step) {
			u.Row += step
		}
	}
}

func (s *Simulator) occupied(col, row int) bool {
	for _, u := range s.units {
		if u.Alive && u.Col == col && u.Row == row {
			return true
		}
	}
	return false
}

// selectTarget honours an active focus override, then falls back to the
// unit's strategy. Ties resolve to the lowest instance id because units
// are scanned in id order with strict improvement.
func (s *Simulator) selectTarget(u *Unit) *Unit {
	if u.FocusTarget != 0 {
		if t := s.byID[u.FocusTarget]; t != nil && t.Alive && !t.Retreating && t.Team != u.Team && t.targetable() {
			return t
		}
	}

	var best *Unit
	bestDist := 0
	for _, cand := range s.units {
		if cand.Team == u.Team || !cand.Alive || !cand.targetable() {
			continue
		}
		d := u.chebyshev(cand)
		if best == nil ||
			(u.Strategy == TargetNearest && d < bestDist) ||
			(u.Strategy == TargetFarthest && d > bestDist) {
			best = cand
			bestDist = d
		}
	}
	return best
}

// enemiesByDistance lists living targetable enemies nearest first, ids
// ascending within a distance.
func (s *Simulator) enemiesByDistance(u *Unit) []*Unit {
	var out []*Unit
	for _, cand := range s.units {
		if cand.Team == u.Team || !cand.Alive || !cand.targetable() {
			continue
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return u.chebyshev(out[a]) < u.chebyshev(out[b])
	})
	return out
}

// checkEnd resolves the combat when a side has no fighting units left or
// the hard cap lands. At the cap the side with more survivors wins; an
// even split goes to the team holding the lowest living instance id.
func (s *Simulator) checkEnd() {
	var fighting, living [2]int
	lowestTeam := -1
	for _, u := range s.units {
		if !u.Alive {
			continue
		}
		living[u.Team]++
		if lowestTeam < 0 {
			lowestTeam = u.Team
		}
		if !u.Retreating {
			fighting[u.Team]++
		}
	}

	switch {
	case fighting[0] == 0 && fighting[1] == 0:
		s.done = true
		if lowestTeam >= 0 {
			s.winner = lowestTeam
		}
	case fighting[0] == 0:
		s.done = true
		s.winner = 1
	case fighting[1] == 0:
		s.done = true
		s.winner = 0
	case s.tick >= s.set.MaxTicks:
		s.done = true
		switch {
		case living[0] > living[1]:
			s.winner = 0
		case living[1] > living[0]:
			s.winner = 1
		default:
			s.winner = lowestTeam
		}
	}
}
