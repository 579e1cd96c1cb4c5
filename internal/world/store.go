package world

import (
	"fmt"
	"sort"
	"sync"
)

// Rules carries the economy and layout numbers the store enforces. Values
// come from the configuration layer at boot.
type Rules struct {
	StartingNexus int
	MaxNexus      int
	StartingGold  int
	MaxGold       int
	BenchSize     int
	BoardCols     int
	BoardRows     int
	ShopSize      int
	LevelCap      int
	XPThresholds  []int // [i] = xp to advance from level i+1
	XPBuyCost     int
	XPBuyAmount   int
	AutoXP        int
	BaseIncome    int
	InterestPer   int
	InterestCap   int
	StreakTiers   []StreakTier // ascending by Min
}

type StreakTier struct {
	Min   int
	Bonus int
}

// Threshold returns the xp needed to leave the given level, or -1 at cap.
func (r Rules) Threshold(level int) int {
	if level >= r.LevelCap || level-1 >= len(r.XPThresholds) {
		return -1
	}
	return r.XPThresholds[level-1]
}

func (r Rules) streakBonus(streak int) int {
	bonus := 0
	for _, t := range r.StreakTiers {
		if streak >= t.Min {
			bonus = t.Bonus
		}
	}
	return bonus
}

// Transform mutates a cloned snapshot. Returning an error abandons the
// clone, so a multi-step transform is all-or-nothing by construction.
type Transform func(p *PlayerRuntime) error

// Store is the concurrent-safe player table. Every mutation is an atomic
// compare-and-set: read the committed snapshot, transform a clone, commit
// only if the committed pointer is unchanged, retry otherwise. Steady-state
// traffic is single-writer (the orchestrator), so retries are rare; the
// loop protects auxiliary paths like disconnect hooks.
type Store struct {
	// OnChanged fires after every committed transform with the new
	// snapshot. OnEliminated fires once when a commit drops nexus to zero.
	// Both must be set before the session starts and are called without
	// internal locks held.
	OnChanged    func(*PlayerRuntime)
	OnEliminated func(int32)

	rules Rules
	reso  *ResonanceCalc

	mu      sync.RWMutex
	players map[int32]*PlayerRuntime
}

func NewStore(rules Rules, reso *ResonanceCalc) *Store {
	return &Store{
		rules:   rules,
		reso:    reso,
		players: make(map[int32]*PlayerRuntime),
	}
}

// Rules exposes the store's configured numbers to composing packages.
func (s *Store) Rules() Rules { return s.rules }

// AddSeat initializes a seat with full defaults and fires the change event.
func (s *Store) AddSeat(id int32, name string) (*PlayerRuntime, error) {
	p := &PlayerRuntime{
		ID:     id,
		Name:   name,
		Nexus:  s.rules.StartingNexus,
		Gold:   s.rules.StartingGold,
		Level:  1,
		Status: StatusPreparing,
		Bench:  emptySlots(s.rules.BenchSize),
		Board:  emptySlots(s.rules.BoardCols * s.rules.BoardRows),
		Shop:   emptyShop(s.rules.ShopSize),
	}
	s.mu.Lock()
	if _, exists := s.players[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("player %d already seated", id)
	}
	s.players[id] = p
	s.mu.Unlock()

	if s.OnChanged != nil {
		s.OnChanged(p)
	}
	return p, nil
}

func emptyShop(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = EmptySlot
	}
	return out
}

// Remove drops a seat entirely (disconnects). Reports whether it existed.
func (s *Store) Remove(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	return true
}

// Get returns the committed snapshot for a player, if seated.
func (s *Store) Get(id int32) (*PlayerRuntime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// All returns every committed snapshot in ascending id order.
func (s *Store) All() []*PlayerRuntime {
	s.mu.RLock()
	out := make([]*PlayerRuntime, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Alive returns non-eliminated players in ascending id order.
func (s *Store) Alive() []*PlayerRuntime {
	all := s.All()
	out := all[:0]
	for _, p := range all {
		if p.Status != StatusEliminated {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Apply runs fn against a clone of the player's snapshot and commits it
// atomically. Resonances are derived state and are recomputed on every
// commit. On success the new snapshot is returned and OnChanged fires;
// OnEliminated follows if this commit zeroed the nexus.
func (s *Store) Apply(id int32, fn Transform) (*PlayerRuntime, error) {
	for {
		s.mu.RLock()
		cur, ok := s.players[id]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("player %d not seated", id)
		}

		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		if s.reso != nil {
			next.Resonances = s.reso.Active(next.Board)
		}

		s.mu.Lock()
		if s.players[id] != cur {
			s.mu.Unlock()
			continue // lost the race, retry on the fresh snapshot
		}
		s.players[id] = next
		s.mu.Unlock()

		if s.OnChanged != nil {
			s.OnChanged(next)
		}
		if s.OnEliminated != nil && next.Nexus <= 0 && cur.Nexus > 0 {
			s.OnEliminated(id)
		}
		return next, nil
	}
}

// DeductGold fails with "Oro insufficiente" when the player cannot pay.
func (s *Store) DeductGold(id int32, n int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		if p.Gold < n {
			return Reject(ReasonNoGold)
		}
		p.Gold -= n
		return nil
	})
}

// AddGold credits gold up to the configured cap.
func (s *Store) AddGold(id int32, n int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		p.Gold = min(p.Gold+n, s.rules.MaxGold)
		return nil
	})
}

// ModifyNexus applies a health delta clamped to [0, MaxNexus]. Reaching
// zero marks the seat eliminated; the elimination event fires post-commit.
func (s *Store) ModifyNexus(id int32, delta int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		p.Nexus += delta
		if p.Nexus < 0 {
			p.Nexus = 0
		}
		if p.Nexus > s.rules.MaxNexus {
			p.Nexus = s.rules.MaxNexus
		}
		if p.Nexus == 0 {
			p.Status = StatusEliminated
		}
		return nil
	})
}

// GrantXP adds xp and resolves level-ups. At the cap xp pins to zero.
func (s *Store) GrantXP(id int32, n int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		s.grantXP(p, n)
		return nil
	})
}

func (s *Store) grantXP(p *PlayerRuntime, n int) {
	p.XP += n
	for p.Level < s.rules.LevelCap {
		th := s.rules.Threshold(p.Level)
		if th < 0 || p.XP < th {
			break
		}
		p.XP -= th
		p.Level++
	}
	if p.Level >= s.rules.LevelCap {
		p.XP = 0
	}
}

// BuyXP deducts the configured cost and grants the configured xp as one
// all-or-nothing transform.
func (s *Store) BuyXP(id int32) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		if p.Level >= s.rules.LevelCap {
			return Reject(ReasonLevelCap)
		}
		if p.Gold < s.rules.XPBuyCost {
			return Reject(ReasonNoGold)
		}
		p.Gold -= s.rules.XPBuyCost
		s.grantXP(p, s.rules.XPBuyAmount)
		return nil
	})
}

// AddToBench places a fresh one-star instance into the first empty bench
// slot and runs the fusion cascade. The returned events are already
// compressed to the externally visible promotions.
func (s *Store) AddToBench(id int32, instanceID int32) (*PlayerRuntime, []FusionEvent, error) {
	var events []FusionEvent
	snap, err := s.Apply(id, func(p *PlayerRuntime) error {
		events = nil // transform may rerun on a CAS retry
		i := p.FirstFreeBench()
		if i < 0 {
			return Reject(ReasonBenchFull)
		}
		p.Bench[i] = Slot{InstanceID: instanceID, Star: 1}
		events = CompressFusionEvents(RunFusion(p.Board, p.Bench))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, events, nil
}

// MoveToBoard moves a bench instance onto an empty board cell, enforcing
// the level-capped unit count.
func (s *Store) MoveToBoard(id int32, instanceID int32, index int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		if index < 0 || index >= len(p.Board) {
			return Reject(ReasonBadPosition)
		}
		bi := p.FindBench(instanceID)
		if bi < 0 {
			return Reject(ReasonUnitNotFound)
		}
		if !p.Board[index].Empty() {
			return Reject(ReasonPositionTaken)
		}
		if p.BoardCount() >= p.Level {
			return Reject(ReasonUnitLimit)
		}
		p.Board[index] = p.Bench[bi]
		p.Bench[bi] = Slot{InstanceID: EmptySlot}
		return nil
	})
}

// MoveToBench pulls a board instance back to the first free bench slot.
func (s *Store) MoveToBench(id int32, instanceID int32) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		bi := p.FindBoard(instanceID)
		if bi < 0 {
			return Reject(ReasonUnitNotFound)
		}
		free := p.FirstFreeBench()
		if free < 0 {
			return Reject(ReasonBenchFull)
		}
		p.Bench[free] = p.Board[bi]
		p.Board[bi] = Slot{InstanceID: EmptySlot}
		return nil
	})
}

// UpdateStreak records a round result: a win resets the loss streak and
// vice versa.
func (s *Store) UpdateStreak(id int32, won bool) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		if won {
			p.WinStreak++
			p.LossStreak = 0
		} else {
			p.LossStreak++
			p.WinStreak = 0
		}
		return nil
	})
}

// GrantRoundIncome credits base income, interest on held gold, and the
// streak bonus, capped at MaxGold.
func (s *Store) GrantRoundIncome(id int32) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		income := s.rules.BaseIncome
		if s.rules.InterestPer > 0 {
			income += min(p.Gold/s.rules.InterestPer, s.rules.InterestCap)
		}
		income += s.rules.streakBonus(max(p.WinStreak, p.LossStreak))
		p.Gold = min(p.Gold+income, s.rules.MaxGold)
		return nil
	})
}

// GrantAutoXP credits the per-round xp drip.
func (s *Store) GrantAutoXP(id int32) (*PlayerRuntime, error) {
	return s.GrantXP(id, s.rules.AutoXP)
}

// SetStatus flips the seat status outside of elimination flow.
func (s *Store) SetStatus(id int32, status SeatStatus) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		p.Status = status
		return nil
	})
}

// GrantMutation appends a mutation token and applies its instant grants.
func (s *Store) GrantMutation(id int32, token, gold, xp int) (*PlayerRuntime, error) {
	return s.Apply(id, func(p *PlayerRuntime) error {
		p.Mutations = append(p.Mutations, token)
		if gold > 0 {
			p.Gold = min(p.Gold+gold, s.rules.MaxGold)
		}
		if xp > 0 {
			s.grantXP(p, xp)
		}
		return nil
	})
}
