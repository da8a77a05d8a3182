// Package reward scores the transition between two consecutive situations.
package reward

import (
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// Config holds the shaping magnitudes. None of them are derived; they are
// tuning knobs coupled to the discount factor.
type Config struct {
	StepPenalty   float64                     `yaml:"step_penalty"`
	TimePenalty   float64                     `yaml:"time_penalty"`
	Resources     map[world.Resource]float64  `yaml:"resources"`
	Milestones    map[world.Objective]float64 `yaml:"milestones"`
	TerminalBonus float64                     `yaml:"terminal_bonus"`
}

// Terms is the per-component breakdown of one reward.
type Terms struct {
	Step      float64 `json:"step"`
	Resources float64 `json:"resources"`
	Milestone float64 `json:"milestone"`
	Terminal  float64 `json:"terminal"`
	Time      float64 `json:"time"`
}

// Total sums the terms in their fixed order.
func (t Terms) Total() float64 {
	return t.Step + t.Resources + t.Milestone + t.Terminal + t.Time
}

// Model computes rewards. It only reads the two situations it is handed.
type Model struct {
	cfg    Config
	budget time.Duration
}

// New creates a Model. budget scales the time penalty.
func New(cfg Config, budget time.Duration) *Model {
	return &Model{cfg: cfg, budget: budget}
}

// Reward scores moving from previous to current by taking action.
func (m *Model) Reward(current, previous world.Situation, action string) float64 {
	return m.Explain(current, previous, action).Total()
}

// Explain returns the components Reward sums.
func (m *Model) Explain(current, previous world.Situation, action string) Terms {
	var t Terms
	t.Step = m.cfg.StepPenalty

	for _, r := range world.Resources {
		if current.Count(r) > previous.Count(r) {
			t.Resources += m.cfg.Resources[r]
		}
	}

	for _, o := range world.Objectives {
		if current.Achieved(o) && !previous.Achieved(o) {
			t.Milestone += m.cfg.Milestones[o]
		}
	}

	if current.Won() && !previous.Won() {
		t.Terminal = m.cfg.TerminalBonus
	}

	if m.budget > 0 {
		frac := float64(current.Elapsed()) / float64(m.budget)
		if frac > 1 {
			frac = 1
		}
		if frac < 0 {
			frac = 0
		}
		t.Time = -m.cfg.TimePenalty * frac
	}
	return t
}
