package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunnerExecutesInPhaseOrder(t *testing.T) {
	var order []string
	r := NewRunner()
	r.Register(Func{P: PhaseOutput, Fn: func(time.Duration) { order = append(order, "out") }})
	r.Register(Func{P: PhaseInput, Fn: func(time.Duration) { order = append(order, "in") }})
	r.Register(Func{P: PhaseUpdate, Fn: func(time.Duration) { order = append(order, "update") }})
	r.Register(Func{P: PhaseCleanup, Fn: func(time.Duration) { order = append(order, "cleanup") }})

	r.Tick(16 * time.Millisecond)
	assert.Equal(t, []string{"in", "update", "out", "cleanup"}, order)
}

func TestRunnerKeepsRegistrationOrderWithinPhase(t *testing.T) {
	var order []string
	r := NewRunner()
	r.Register(Func{P: PhaseUpdate, Fn: func(time.Duration) { order = append(order, "a") }})
	r.Register(Func{P: PhaseUpdate, Fn: func(time.Duration) { order = append(order, "b") }})

	r.Tick(time.Millisecond)
	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
}
