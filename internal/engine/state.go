package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/talgya/speedrunner/internal/world"
)

// RunState is the loop's own mutable record of a run. Only the loop
// goroutine touches it; readers get a Status copy.
type RunState struct {
	ID      string
	Started time.Time
	Epoch   time.Time // phase clock origin, moved by Reset

	Phase  int
	Ticks  int
	Deaths int
	Resets int

	// Milestones are objectives reached during the current attempt. They
	// stay set even when the items behind them are spent.
	Milestones map[world.Objective]bool

	Last     world.Situation
	Vector   []float64
	Observed bool
}

// NewRunState starts a run at now.
func NewRunState(now time.Time) *RunState {
	return &RunState{
		ID:         uuid.NewString(),
		Started:    now,
		Epoch:      now,
		Milestones: make(map[world.Objective]bool),
	}
}

// Elapsed is wall-clock time since the run started. Resets do not affect it.
func (rs *RunState) Elapsed(now time.Time) time.Duration { return now.Sub(rs.Started) }

// PhaseElapsed is time on the phase clock.
func (rs *RunState) PhaseElapsed(now time.Time) time.Duration { return now.Sub(rs.Epoch) }

// Reset sends the run back to the first phase after a death. The run clock
// keeps going.
func (rs *RunState) Reset(now time.Time) {
	rs.Phase = 0
	rs.Epoch = now
	rs.Resets++
	rs.Milestones = make(map[world.Objective]bool)
}

// advance records the tick's outcome. Phase only moves forward.
func (rs *RunState) advance(s world.Situation, vec []float64) {
	if s.PhaseIndex() > rs.Phase {
		rs.Phase = s.PhaseIndex()
	}
	rs.Last = s
	rs.Vector = vec
	rs.Observed = true
}
