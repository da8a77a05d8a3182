// Package arbiter chooses which policy decides each tick. Strategies are
// ranked learned, then reasoning, then rule-based; a strategy that fails or
// overruns its deadline hands the tick to the next one down.
package arbiter

import (
	"context"
	"fmt"

	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/reasoning"
	"github.com/talgya/speedrunner/internal/world"
)

// Source identifies the strategy that produced a decision.
type Source int

const (
	RuleBased Source = iota
	Reasoning
	Learned
)

func (s Source) String() string {
	switch s {
	case Learned:
		return "learned"
	case Reasoning:
		return "reasoning"
	case RuleBased:
		return "rule_based"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Tick is everything a strategy may look at for one decision.
type Tick struct {
	Situation world.Situation
	State     []float64
	Available []string
}

// Choice is the accepted decision for a tick. Fallbacks lists the failures
// of higher-ranked strategies tried first.
type Choice struct {
	Action    string
	Target    int
	Source    Source
	Rationale string
	Fallbacks []error
}

// Strategy is one decision source.
type Strategy interface {
	Source() Source
	Decide(ctx context.Context, t Tick) (Choice, error)
}

// remote marks strategies that block on I/O. The arbiter runs them on their
// own goroutine and abandons them at the deadline; in-process strategies
// run inline and are discarded if they overrun.
type remote interface {
	remote()
}

// Selector picks an action from a state vector.
type Selector interface {
	SelectAction(state []float64, available []string) (string, error)
}

// LearnedStrategy wraps the Q-learning policy.
type LearnedStrategy struct {
	Policy Selector
}

func (LearnedStrategy) Source() Source { return Learned }

func (s LearnedStrategy) Decide(ctx context.Context, t Tick) (Choice, error) {
	action, err := s.Policy.SelectAction(t.State, t.Available)
	if err != nil {
		return Choice{}, err
	}
	return Choice{Action: action, Source: Learned}, nil
}

// Reasoner produces a reasoning decision for a situation.
type Reasoner interface {
	Decide(ctx context.Context, s world.Situation) reasoning.Decision
}

// ReasoningStrategy wraps the generative reasoning client. A degraded
// decision counts as a failure so the tick falls through to the next
// strategy instead of acting on a canned default.
type ReasoningStrategy struct {
	Client Reasoner
}

func (ReasoningStrategy) Source() Source { return Reasoning }
func (ReasoningStrategy) remote()        {}

func (s ReasoningStrategy) Decide(ctx context.Context, t Tick) (Choice, error) {
	d := s.Client.Decide(ctx, t.Situation)
	if d.Degraded {
		return Choice{}, fmt.Errorf("reasoning degraded: %w", d.Cause)
	}
	return Choice{Action: d.Action, Source: Reasoning, Rationale: d.Rationale}, nil
}

// Schedule is the planner surface the rule-based strategy needs.
type Schedule interface {
	Phase(i int) planner.Phase
	NextTask(phase planner.Phase, s world.Situation) (planner.Task, bool)
}

// RuleBasedStrategy follows the phase schedule. When every task in the
// current phase is done it returns Idle.
type RuleBasedStrategy struct {
	Plan Schedule
	Idle string
}

func (RuleBasedStrategy) Source() Source { return RuleBased }

func (s RuleBasedStrategy) Decide(ctx context.Context, t Tick) (Choice, error) {
	phase := s.Plan.Phase(t.Situation.PhaseIndex())
	task, ok := s.Plan.NextTask(phase, t.Situation)
	if !ok {
		return Choice{Action: s.Idle, Source: RuleBased, Rationale: "phase " + phase.ID + " complete"}, nil
	}
	return Choice{
		Action:    task.Action,
		Target:    task.Target,
		Source:    RuleBased,
		Rationale: fmt.Sprintf("%s priority %d", phase.ID, task.Priority),
	}, nil
}
