package world

import (
	"encoding/json"
	"fmt"
)

// EmptySlot marks a vacant bench/board/shop position.
const EmptySlot int32 = -1

// SeatStatus tracks where a player is in the round flow.
type SeatStatus int

const (
	StatusPreparing SeatStatus = iota
	StatusInCombat
	StatusEliminated
)

func (s SeatStatus) String() string {
	switch s {
	case StatusPreparing:
		return "Preparing"
	case StatusInCombat:
		return "InCombat"
	case StatusEliminated:
		return "Eliminated"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

func (s SeatStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Slot is one bench or board position. A slot is either empty or holds one
// unit instance at a star level.
type Slot struct {
	InstanceID int32 `json:"instance_id"`
	Star       int   `json:"star"`
}

func (s Slot) Empty() bool { return s.InstanceID == EmptySlot }

func emptySlots(n int) []Slot {
	out := make([]Slot, n)
	for i := range out {
		out[i] = Slot{InstanceID: EmptySlot}
	}
	return out
}

// PlayerRuntime is the full per-seat state. Instances handed out by the
// Store are snapshots: committed ones are never mutated again, so holding a
// pointer across ticks is safe. All mutation goes through Store.Apply.
type PlayerRuntime struct {
	ID         int32             `json:"id"`
	Name       string            `json:"name"`
	Nexus      int               `json:"nexus_health"`
	Gold       int               `json:"gold"`
	Level      int               `json:"level"`
	XP         int               `json:"xp"`
	WinStreak  int               `json:"win_streak"`
	LossStreak int               `json:"loss_streak"`
	Status     SeatStatus        `json:"status"`
	Bench      []Slot            `json:"bench"`
	Board      []Slot            `json:"board"`
	Shop       []int32           `json:"shop"` // definition ids; EmptySlot when vacant
	Resonances []ResonanceActive `json:"resonances"`
	Mutations  []int             `json:"mutations"`

	PityNoRare      int `json:"pity_no_rare"`
	PityNoEpic      int `json:"pity_no_epic"`
	PityNoLegendary int `json:"pity_no_legendary"`
}

// Clone deep-copies the runtime so a transform can mutate freely.
func (p *PlayerRuntime) Clone() *PlayerRuntime {
	c := *p
	c.Bench = append([]Slot(nil), p.Bench...)
	c.Board = append([]Slot(nil), p.Board...)
	c.Shop = append([]int32(nil), p.Shop...)
	c.Resonances = append([]ResonanceActive(nil), p.Resonances...)
	c.Mutations = append([]int(nil), p.Mutations...)
	return &c
}

// FindBench returns the bench index holding the instance, or -1.
func (p *PlayerRuntime) FindBench(instanceID int32) int {
	for i, s := range p.Bench {
		if s.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// FindBoard returns the board index holding the instance, or -1.
func (p *PlayerRuntime) FindBoard(instanceID int32) int {
	for i, s := range p.Board {
		if s.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// FirstFreeBench returns the lowest empty bench index, or -1 when full.
func (p *PlayerRuntime) FirstFreeBench() int {
	for i, s := range p.Bench {
		if s.Empty() {
			return i
		}
	}
	return -1
}

// BoardCount counts occupied board slots.
func (p *PlayerRuntime) BoardCount() int {
	n := 0
	for _, s := range p.Board {
		if !s.Empty() {
			n++
		}
	}
	return n
}

// RemoveInstance clears the slot holding the instance wherever it sits.
// Returns the cleared slot state and whether it was on the board.
func (p *PlayerRuntime) RemoveInstance(instanceID int32) (slot Slot, onBoard, found bool) {
	if i := p.FindBoard(instanceID); i >= 0 {
		slot = p.Board[i]
		p.Board[i] = Slot{InstanceID: EmptySlot}
		return slot, true, true
	}
	if i := p.FindBench(instanceID); i >= 0 {
		slot = p.Bench[i]
		p.Bench[i] = Slot{InstanceID: EmptySlot}
		return slot, false, true
	}
	return Slot{}, false, false
}

// Snapshot renders the runtime as the state document sent to its owner.
func (p *PlayerRuntime) Snapshot() (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal player %d: %w", p.ID, err)
	}
	return data, nil
}
