package engine

import (
	"sort"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// Status is a point-in-time copy of the run for outside readers.
type Status struct {
	RunID      string                 `json:"run_id"`
	Outcome    Outcome                `json:"outcome"`
	Phase      string                 `json:"phase"`
	PhaseIndex int                    `json:"phase_index"`
	Ticks      int                    `json:"ticks"`
	Elapsed    float64                `json:"elapsed_seconds"`
	Deaths     int                    `json:"deaths"`
	Resets     int                    `json:"resets"`
	Health     float64                `json:"health"`
	Position   world.Vec3             `json:"position"`
	Resources  map[world.Resource]int `json:"resources"`
	Milestones []world.Objective      `json:"milestones"`

	Source    string  `json:"source,omitempty"`
	Action    string  `json:"action,omitempty"`
	Executed  string  `json:"executed,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
	Reward    float64 `json:"reward"`

	Epsilon    float64 `json:"epsilon"`
	TrainSteps int     `json:"train_steps"`
	Buffered   int     `json:"buffered"`
}

// RunSummary is one run's history row.
type RunSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitzero"`
	Outcome    Outcome       `json:"outcome"`
	Ticks      int           `json:"ticks"`
	Deaths     int           `json:"deaths"`
	FinalPhase string        `json:"final_phase"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// TickRecord is one tick's history row.
type TickRecord struct {
	RunID    string        `db:"run_id" json:"run_id"`
	Tick     int           `db:"tick" json:"tick"`
	Phase    string        `db:"phase" json:"phase"`
	Action   string        `db:"action" json:"action"`
	Executed string        `db:"executed" json:"executed"`
	Source   string        `db:"source" json:"source"`
	Reward   float64       `db:"reward" json:"reward"`
	Epsilon  float64       `db:"epsilon" json:"epsilon"`
	Success  bool          `db:"success" json:"success"`
	Elapsed  time.Duration `db:"elapsed_ns" json:"elapsed_ns"`
}

// Status returns the latest published status.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	s.Resources = make(map[world.Resource]int, len(l.status.Resources))
	for k, v := range l.status.Resources {
		s.Resources[k] = v
	}
	s.Milestones = append([]world.Objective(nil), l.status.Milestones...)
	return s
}

// publish rebuilds the shared status from rs, then applies edit.
func (l *Loop) publish(rs *RunState, edit func(*Status)) {
	s := Status{
		RunID:      rs.ID,
		Outcome:    InFlight,
		PhaseIndex: rs.Phase,
		Ticks:      rs.Ticks,
		Elapsed:    rs.Elapsed(l.d.Now()).Seconds(),
		Deaths:     rs.Deaths,
		Resets:     rs.Resets,
		Epsilon:    l.d.Learner.Epsilon(),
		TrainSteps: l.d.Learner.Steps(),
		Buffered:   l.d.Buffer.Len(),
		Resources:  make(map[world.Resource]int),
	}
	if rs.Observed {
		s.Phase = rs.Last.Phase()
		s.Health = rs.Last.Health()
		s.Position = rs.Last.Position()
		for _, r := range world.Resources {
			if n := rs.Last.Count(r); n > 0 {
				s.Resources[r] = n
			}
		}
	}
	for o := range rs.Milestones {
		s.Milestones = append(s.Milestones, o)
	}
	sort.Slice(s.Milestones, func(i, j int) bool { return s.Milestones[i] < s.Milestones[j] })

	l.mu.Lock()
	defer l.mu.Unlock()
	// Keep the last decision on ticks that make none.
	if edit == nil {
		s.Source, s.Action, s.Executed = l.status.Source, l.status.Action, l.status.Executed
		s.Rationale, s.Reward = l.status.Rationale, l.status.Reward
	} else {
		edit(&s)
	}
	l.status = s
}
