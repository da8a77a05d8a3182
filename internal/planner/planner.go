// Package planner holds the speedrun schedule as data and answers two
// questions about it: which phase the clock is in, and which task in that
// phase is still open.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// Goal is a task's completion condition. A goal is met when any of its set
// conditions holds. A goal with no conditions is never met.
type Goal struct {
	Resource  world.Resource  `yaml:"resource,omitempty" json:"resource,omitempty"`
	Count     int             `yaml:"count,omitempty" json:"count,omitempty"`
	Objective world.Objective `yaml:"objective,omitempty" json:"objective,omitempty"`
	Items     []string        `yaml:"items,omitempty" json:"items,omitempty"`
}

// Met evaluates the goal against s. It has no side effects.
func (g Goal) Met(s world.Situation) bool {
	if g.Resource != "" && s.Count(g.Resource) >= max(g.Count, 1) {
		return true
	}
	if g.Objective != "" && s.Achieved(g.Objective) {
		return true
	}
	for _, item := range g.Items {
		if s.Held(item) > 0 {
			return true
		}
	}
	return false
}

// String describes the goal's conditions, "never" for an empty goal.
func (g Goal) String() string {
	var parts []string
	if g.Resource != "" {
		parts = append(parts, fmt.Sprintf("%s>=%d", g.Resource, max(g.Count, 1)))
	}
	if g.Objective != "" {
		parts = append(parts, string(g.Objective))
	}
	if len(g.Items) > 0 {
		parts = append(parts, "holding "+strings.Join(g.Items, "|"))
	}
	if len(parts) == 0 {
		return "never"
	}
	return strings.Join(parts, " or ")
}

// Task is one step of a phase.
type Task struct {
	Action   string `yaml:"action" json:"action"`
	Target   int    `yaml:"target,omitempty" json:"target,omitempty"`
	Priority int    `yaml:"priority" json:"priority"`
	Goal     Goal   `yaml:"done" json:"done"`
}

// Done reports whether the task's goal is met in s.
func (t Task) Done(s world.Situation) bool {
	return t.Goal.Met(s)
}

// Phase is a time-boxed group of tasks. Until is the elapsed time at which
// the phase is due to end.
type Phase struct {
	ID    string        `yaml:"id" json:"id"`
	Name  string        `yaml:"name" json:"name"`
	Until time.Duration `yaml:"until" json:"until"`
	Tasks []Task        `yaml:"tasks" json:"tasks"`
}

// Complete reports whether every task in p is done.
func (p Phase) Complete(s world.Situation) bool {
	for _, t := range p.Tasks {
		if !t.Done(s) {
			return false
		}
	}
	return true
}

// Planner answers schedule queries. It holds no mutable state.
type Planner struct {
	phases []Phase
}

// New validates phases and returns a Planner over a private copy. Thresholds
// must be strictly ascending. Each phase's tasks are stably sorted by
// descending priority.
func New(phases []Phase) (*Planner, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("schedule has no phases")
	}
	out := make([]Phase, len(phases))
	seen := make(map[string]bool, len(phases))
	for i, p := range phases {
		if p.ID == "" {
			return nil, fmt.Errorf("phase %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate phase id %q", p.ID)
		}
		seen[p.ID] = true
		if i > 0 && p.Until <= phases[i-1].Until {
			return nil, fmt.Errorf("phase %q ends at %s, not after %q at %s",
				p.ID, p.Until, phases[i-1].ID, phases[i-1].Until)
		}
		tasks := append([]Task(nil), p.Tasks...)
		sort.SliceStable(tasks, func(a, b int) bool {
			return tasks[a].Priority > tasks[b].Priority
		})
		p.Tasks = tasks
		out[i] = p
	}
	return &Planner{phases: out}, nil
}

// Phases returns the schedule in order.
func (p *Planner) Phases() []Phase {
	return append([]Phase(nil), p.phases...)
}

// Count returns the number of phases.
func (p *Planner) Count() int { return len(p.phases) }

// Phase returns the phase at index i, clamped to the schedule.
func (p *Planner) Phase(i int) Phase {
	return p.phases[p.clamp(i)]
}

// CurrentPhase returns the first phase whose threshold elapsed has not yet
// reached, or the last phase once every threshold has passed.
func (p *Planner) CurrentPhase(elapsed time.Duration) Phase {
	return p.phases[p.IndexAt(elapsed)]
}

// IndexAt is CurrentPhase's index.
func (p *Planner) IndexAt(elapsed time.Duration) int {
	for i, ph := range p.phases {
		if elapsed < ph.Until {
			return i
		}
	}
	return len(p.phases) - 1
}

// NextTask returns the highest-priority task in phase not yet done in s.
func (p *Planner) NextTask(phase Phase, s world.Situation) (Task, bool) {
	for _, t := range phase.Tasks {
		if !t.Done(s) {
			return t, true
		}
	}
	return Task{}, false
}

// Resolve picks the phase index for a tick. It never returns less than
// floor, follows the clock, and moves past phases whose tasks are all done.
func (p *Planner) Resolve(elapsed time.Duration, s world.Situation, floor int) int {
	idx := max(p.clamp(floor), p.IndexAt(elapsed))
	for idx < len(p.phases)-1 && p.phases[idx].Complete(s) {
		idx++
	}
	return idx
}

// Actions returns every distinct task action in schedule order.
func (p *Planner) Actions() []string {
	var out []string
	seen := make(map[string]bool)
	for _, ph := range p.phases {
		for _, t := range ph.Tasks {
			if !seen[t.Action] {
				seen[t.Action] = true
				out = append(out, t.Action)
			}
		}
	}
	return out
}

func (p *Planner) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(p.phases) {
		return len(p.phases) - 1
	}
	return i
}
