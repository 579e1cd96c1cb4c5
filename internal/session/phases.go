package session

import (
	"fmt"
	"time"

	"github.com/echoarena/server/internal/config"
)

// Phase is the round lifecycle state.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhasePreparation
	PhaseCombat
	PhaseReward
	PhaseMutationChoice
	PhaseGameOver

	phaseCount
)

var phaseNames = [phaseCount]string{
	"WaitingForPlayers", "Preparation", "Combat", "Reward",
	"MutationChoice", "GameOver",
}

func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Transition describes one committed phase change.
type Transition struct {
	To       Phase
	Duration time.Duration
}

// Scheduler drives the timed part of the lifecycle. Waiting and GameOver
// have no timer; Combat's timer is a safety net, normally cut short by
// CombatsResolved. The orchestrator calls Advance once per tick and
// broadcasts each returned transition.
type Scheduler struct {
	cfg       config.PhaseConfig
	phase     Phase
	remaining time.Duration
	round     int
}

func NewScheduler(cfg config.PhaseConfig) *Scheduler {
	return &Scheduler{cfg: cfg, phase: PhaseWaiting}
}

func (s *Scheduler) Phase() Phase             { return s.phase }
func (s *Scheduler) Round() int               { return s.round }
func (s *Scheduler) Remaining() time.Duration { return s.remaining }

func (s *Scheduler) duration(p Phase) time.Duration {
	switch p {
	case PhasePreparation:
		return s.cfg.Preparation
	case PhaseCombat:
		return s.cfg.CombatCap
	case PhaseReward:
		return s.cfg.Reward
	case PhaseMutationChoice:
		return s.cfg.MutationChoice
	default:
		return 0
	}
}

func (s *Scheduler) enter(p Phase) Transition {
	s.phase = p
	s.remaining = s.duration(p)
	return Transition{To: p, Duration: s.remaining}
}

// Advance burns wall-clock time and returns the transition if the current
// phase's timer elapsed.
func (s *Scheduler) Advance(dt time.Duration) (Transition, bool) {
	switch s.phase {
	case PhaseWaiting, PhaseGameOver:
		return Transition{}, false
	}
	s.remaining -= dt
	if s.remaining > 0 {
		return Transition{}, false
	}
	switch s.phase {
	case PhasePreparation:
		return s.enter(PhaseCombat), true
	case PhaseCombat:
		return s.enter(PhaseReward), true
	case PhaseReward:
		return s.enter(PhaseMutationChoice), true
	case PhaseMutationChoice:
		s.round++
		return s.enter(PhasePreparation), true
	}
	return Transition{}, false
}

// StartMatch is the lobby's trigger out of WaitingForPlayers.
func (s *Scheduler) StartMatch() (Transition, bool) {
	if s.phase != PhaseWaiting {
		return Transition{}, false
	}
	s.round = 1
	return s.enter(PhasePreparation), true
}

// CombatsResolved cuts the Combat phase short once every pair finished.
func (s *Scheduler) CombatsResolved() (Transition, bool) {
	if s.phase != PhaseCombat {
		return Transition{}, false
	}
	return s.enter(PhaseReward), true
}

// EndMatch forces GameOver from any phase.
func (s *Scheduler) EndMatch() (Transition, bool) {
	if s.phase == PhaseGameOver {
		return Transition{}, false
	}
	return s.enter(PhaseGameOver), true
}
