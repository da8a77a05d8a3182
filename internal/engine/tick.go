// Package engine runs the decision loop: observe the world, arbitrate,
// act, score the result, store it and train.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/speedrunner/internal/actuator"
	"github.com/talgya/speedrunner/internal/arbiter"
	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/replay"
	"github.com/talgya/speedrunner/internal/world"
)

// Config controls the loop's pacing.
type Config struct {
	Budget        time.Duration `yaml:"budget"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	Backoff       time.Duration `yaml:"backoff"`
	TrainEvery    int           `yaml:"train_every"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
	StatusAddr    string        `yaml:"status_addr"`
}

// Checkpoint says where and how often the model is saved.
type Checkpoint struct {
	Dir   string
	Every int // train steps between saves; 0 saves only at the end
}

// Outcome is how a run ended.
type Outcome string

const (
	Won      Outcome = "won"
	Timeout  Outcome = "budget_exhausted"
	Stopped  Outcome = "stopped"
	InFlight Outcome = "running"
)

// Executor carries out one action.
type Executor interface {
	Execute(ctx context.Context, action string, target int) actuator.Outcome
}

// Encoder turns a situation into the policy's input vector.
type Encoder interface {
	Encode(s world.Situation) []float64
}

// Rewarder scores a transition.
type Rewarder interface {
	Reward(current, previous world.Situation, action string) float64
}

// Decider picks the tick's action.
type Decider interface {
	Decide(ctx context.Context, t arbiter.Tick) arbiter.Choice
}

// Trainer is the learning side of the policy.
type Trainer interface {
	TrainStep() (bool, error)
	Save(dir string) error
	Steps() int
	Epsilon() float64
}

// ActionIndex maps action ids onto the learner's output slots.
type ActionIndex interface {
	Index(action string) (int, bool)
}

// Recorder stores run history. Failures are logged and never stop a run.
type Recorder interface {
	StartRun(r RunSummary) error
	RecordTick(t TickRecord) error
	FinishRun(r RunSummary) error
}

// Deps are the loop's collaborators. Recorder and Now are optional.
type Deps struct {
	World     actuator.Actuator
	Executor  Executor
	Planner   *planner.Planner
	Encoder   Encoder
	Reward    Rewarder
	Arbiter   Decider
	Buffer    *replay.Buffer
	Learner   Trainer
	Actions   ActionIndex
	Available []string
	Recorder  Recorder
	Now       func() time.Time
}

// Loop drives one run.
type Loop struct {
	cfg  Config
	ckpt Checkpoint
	d    Deps

	mu     sync.RWMutex
	status Status
}

// New builds a Loop.
func New(cfg Config, ckpt Checkpoint, d Deps) (*Loop, error) {
	switch {
	case d.World == nil, d.Executor == nil, d.Planner == nil, d.Encoder == nil,
		d.Reward == nil, d.Arbiter == nil, d.Buffer == nil, d.Learner == nil, d.Actions == nil:
		return nil, errors.New("engine: missing dependency")
	case cfg.Budget <= 0:
		return nil, fmt.Errorf("engine: budget must be positive, got %s", cfg.Budget)
	case cfg.TrainEvery <= 0:
		return nil, fmt.Errorf("engine: train_every must be positive, got %d", cfg.TrainEvery)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Loop{cfg: cfg, ckpt: ckpt, d: d, status: Status{Outcome: InFlight}}, nil
}

// Run drives ticks until the dragon dies, the budget runs out or ctx is
// cancelled. Cancellation and the budget are checked between ticks only;
// an action in progress always finishes.
func (l *Loop) Run(ctx context.Context) RunSummary {
	rs := NewRunState(l.d.Now())
	l.record(func(r Recorder) error { return r.StartRun(l.summary(rs, InFlight)) })
	slog.Info("run started", "run", rs.ID, "budget", l.cfg.Budget)

	var outcome Outcome
	for {
		if outcome = l.finished(ctx, rs); outcome != "" {
			break
		}

		start := l.d.Now()
		if err := l.safeTick(ctx, rs); err != nil {
			slog.Error("tick failed", "tick", rs.Ticks, "error", err)
			if !sleep(ctx, l.cfg.Backoff) {
				continue
			}
		}

		if wait := l.cfg.TickInterval - l.d.Now().Sub(start); wait > 0 {
			sleep(ctx, wait)
		}
	}

	l.saveCheckpoint()
	sum := l.summary(rs, outcome)
	l.record(func(r Recorder) error { return r.FinishRun(sum) })
	l.publish(rs, func(s *Status) { s.Outcome = outcome })
	slog.Info("run finished",
		"run", rs.ID,
		"outcome", outcome,
		"ticks", rs.Ticks,
		"elapsed", sum.Elapsed.Round(time.Second),
		"phase", sum.FinalPhase,
		"resets", rs.Resets,
	)
	return sum
}

func (l *Loop) finished(ctx context.Context, rs *RunState) Outcome {
	switch {
	case rs.Observed && rs.Last.Won():
		return Won
	case rs.Elapsed(l.d.Now()) >= l.cfg.Budget:
		return Timeout
	case ctx.Err() != nil:
		return Stopped
	}
	return ""
}

// safeTick turns a panic anywhere in the tick into an error.
func (l *Loop) safeTick(ctx context.Context, rs *RunState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return l.tick(ctx, rs)
}

// tick performs one observe, arbitrate, act, score, store, train cycle.
func (l *Loop) tick(ctx context.Context, rs *RunState) error {
	if !rs.Observed {
		s, vec, err := l.observe(ctx, rs)
		if err != nil {
			return fmt.Errorf("initial observation: %w", err)
		}
		rs.advance(s, vec)
		l.publish(rs, nil)
	}

	prev, state := rs.Last, rs.Vector
	choice := l.d.Arbiter.Decide(ctx, arbiter.Tick{Situation: prev, State: state, Available: l.d.Available})

	actx, cancel := l.actionContext(ctx)
	defer cancel()
	out := l.d.Executor.Execute(actx, choice.Action, choice.Target)
	for _, m := range out.Milestones {
		rs.Milestones[m] = true
	}

	resets := rs.Resets
	next, vec, err := l.observe(actx, rs)
	if err != nil {
		return fmt.Errorf("observe after %s: %w", choice.Action, err)
	}
	if rs.Resets != resets {
		// A death reset happened during the action; the outcome belongs to
		// the previous attempt.
		rs.advance(next, vec)
		rs.Ticks++
		l.publish(rs, nil)
		return nil
	}

	r := l.d.Reward.Reward(next, prev, choice.Action)
	terminal := next.Won() || next.Elapsed() >= l.cfg.Budget
	if idx, ok := l.d.Actions.Index(choice.Action); ok {
		l.d.Buffer.Append(replay.Transition{State: state, Action: idx, Reward: r, Next: vec, Terminal: terminal})
	} else {
		slog.Debug("action outside learner space, transition dropped", "action", choice.Action)
	}

	rs.advance(next, vec)
	rs.Ticks++

	if rs.Ticks%l.cfg.TrainEvery == 0 {
		trained, err := l.d.Learner.TrainStep()
		if err != nil {
			slog.Warn("training failed", "tick", rs.Ticks, "error", err)
		}
		if trained && l.ckpt.Every > 0 && l.d.Learner.Steps()%l.ckpt.Every == 0 {
			l.saveCheckpoint()
		}
	}

	slog.Debug("tick",
		"tick", rs.Ticks,
		"phase", next.Phase(),
		"source", choice.Source.String(),
		"action", choice.Action,
		"executed", out.Executed,
		"reward", r,
	)
	l.publish(rs, func(s *Status) {
		s.Source = choice.Source.String()
		s.Action = choice.Action
		s.Executed = out.Executed
		s.Rationale = choice.Rationale
		s.Reward = r
	})
	l.record(func(rec Recorder) error {
		return rec.RecordTick(TickRecord{
			RunID:    rs.ID,
			Tick:     rs.Ticks,
			Phase:    next.Phase(),
			Action:   choice.Action,
			Executed: out.Executed,
			Source:   choice.Source.String(),
			Reward:   r,
			Epsilon:  l.d.Learner.Epsilon(),
			Success:  out.Success && !out.Substituted,
			Elapsed:  next.Elapsed(),
		})
	})
	return nil
}

// observe queries the world and builds the tick's situation. A rise in
// the death counter resets the run state before the situation is built.
func (l *Loop) observe(ctx context.Context, rs *RunState) (world.Situation, []float64, error) {
	inv, err := l.d.World.Inventory(ctx)
	if err != nil {
		return world.Situation{}, nil, fmt.Errorf("inventory: %w", err)
	}
	pos, err := l.d.World.Position(ctx)
	if err != nil {
		return world.Situation{}, nil, fmt.Errorf("position: %w", err)
	}
	vit, err := l.d.World.Vitals(ctx)
	if err != nil {
		return world.Situation{}, nil, fmt.Errorf("vitals: %w", err)
	}

	now := l.d.Now()
	if vit.Deaths > rs.Deaths {
		if rs.Observed {
			slog.Warn("agent died, restarting from the first phase", "deaths", vit.Deaths, "phase", rs.Phase)
			rs.Reset(now)
		}
		rs.Deaths = vit.Deaths
	}

	switch vit.Dimension {
	case actuator.Nether:
		rs.Milestones[world.EnteredNether] = true
	case actuator.End:
		rs.Milestones[world.EnteredEnd] = true
	}
	for o, ok := range world.ItemObjectives(inv) {
		if ok {
			rs.Milestones[o] = true
		}
	}

	base := world.NewSituation(world.Snapshot{
		Position:   pos,
		Resources:  world.Tally(inv),
		Objectives: rs.Milestones,
		Items:      inv,
		Elapsed:    rs.Elapsed(now),
		Health:     vit.Health,
	})
	idx := l.d.Planner.Resolve(rs.PhaseElapsed(now), base, rs.Phase)
	s := base.InPhase(l.d.Planner.Phase(idx).ID, idx)
	return s, l.d.Encoder.Encode(s), nil
}

// actionContext detaches the action from loop cancellation so shutdown
// never interrupts a primitive halfway.
func (l *Loop) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if l.cfg.ActionTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, l.cfg.ActionTimeout)
}

func (l *Loop) saveCheckpoint() {
	if l.ckpt.Dir == "" {
		return
	}
	if err := l.d.Learner.Save(l.ckpt.Dir); err != nil {
		slog.Error("checkpoint save failed", "dir", l.ckpt.Dir, "error", err)
	}
}

func (l *Loop) record(fn func(Recorder) error) {
	if l.d.Recorder == nil {
		return
	}
	if err := fn(l.d.Recorder); err != nil {
		slog.Warn("run history write failed", "error", err)
	}
}

func (l *Loop) summary(rs *RunState, outcome Outcome) RunSummary {
	now := l.d.Now()
	sum := RunSummary{
		ID:        rs.ID,
		StartedAt: rs.Started,
		Outcome:   outcome,
		Ticks:     rs.Ticks,
		Deaths:    rs.Deaths,
		Elapsed:   rs.Elapsed(now),
	}
	if outcome != InFlight {
		sum.EndedAt = now
	}
	if rs.Observed {
		sum.FinalPhase = rs.Last.Phase()
	}
	return sum
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
