package tick

import (
	"sort"
	"time"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: drain the transport queue
	PhaseUpdate               // 1: phases, combats, energy, timers
	PhaseOutput               // 2: build + flush outbound frames
	PhaseCleanup              // 3: drop disconnected seats
)

// System is one stage of the per-tick pipeline.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Func adapts a bare function into a System.
type Func struct {
	P  Phase
	Fn func(dt time.Duration)
}

func (f Func) Phase() Phase             { return f.P }
func (f Func) Update(dt time.Duration) { f.Fn(dt) }

// Runner executes systems in phase order each tick. Registration order
// breaks ties within a phase.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{systems: make([]System, 0, 8)}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
