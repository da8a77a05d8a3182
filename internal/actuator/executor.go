package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/speedrunner/internal/world"
)

// Config tunes how actions are carried out.
type Config struct {
	SearchRadius  float64 `yaml:"search_radius"`
	Reach         float64 `yaml:"reach"`
	MaxStrikes    int     `yaml:"max_strikes"`
	DiamondLevel  float64 `yaml:"diamond_level"`
	ExploreRadius float64 `yaml:"explore_radius"`
	ExploreSeed   int64   `yaml:"explore_seed"`
}

// Outcome describes what one Execute call did. When the requested action
// failed, Executed is the exploration substitute and Cause the original
// failure.
type Outcome struct {
	Requested   string
	Executed    string
	Substituted bool
	Success     bool
	Milestones  []world.Objective
	Cause       error
}

type handler func(ctx context.Context, target int) ([]world.Objective, error)

// Executor turns action ids into primitive sequences. Each Execute performs
// one unit of work: one block mined, one item crafted, one fight.
type Executor struct {
	act      Actuator
	cfg      Config
	wander   *world.Wanderer
	handlers map[string]handler
	explores int
}

// NewExecutor wires the action table to act.
func NewExecutor(act Actuator, cfg Config) *Executor {
	e := &Executor{
		act:    act,
		cfg:    cfg,
		wander: world.NewWanderer(cfg.ExploreSeed, cfg.ExploreRadius),
	}
	e.handlers = e.table()
	return e
}

// Actions lists every action id Execute understands, sorted.
func (e *Executor) Actions() []string {
	out := make([]string, 0, len(e.handlers))
	for a := range e.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Knows reports whether action has a handler.
func (e *Executor) Knows(action string) bool {
	_, ok := e.handlers[action]
	return ok
}

// Execute runs action. Any failure is absorbed by exploring instead; only
// a failed exploration leaves Success false.
func (e *Executor) Execute(ctx context.Context, action string, target int) Outcome {
	out := Outcome{Requested: action, Executed: action}

	h, ok := e.handlers[action]
	var err error
	if !ok {
		err = fmt.Errorf("%w: unknown action %q", ErrActuation, action)
	} else {
		out.Milestones, err = h(ctx, target)
	}
	if err == nil {
		out.Success = true
		return out
	}

	slog.Warn("action failed, exploring instead", "action", action, "error", err)
	out.Cause = err
	out.Substituted = true
	out.Executed = "explore"
	if _, xerr := e.explore(ctx, 0); xerr != nil {
		slog.Warn("exploration failed", "error", xerr)
		return out
	}
	out.Success = true
	return out
}

// explore walks to the next noise-driven waypoint.
func (e *Executor) explore(ctx context.Context, _ int) ([]world.Objective, error) {
	pos, err := e.act.Position(ctx)
	if err != nil {
		return nil, err
	}
	e.explores++
	return nil, e.act.NavigateTo(ctx, e.wander.Waypoint(pos, e.explores), 2)
}

// mineNearest finds, walks to and breaks one matching block, holding tool
// when one is given and held.
func (e *Executor) mineNearest(ctx context.Context, match BlockMatch, tool string) error {
	blk, err := e.act.FindBlock(ctx, match, e.cfg.SearchRadius)
	if err != nil {
		return err
	}
	if err := e.act.NavigateTo(ctx, blk.Position, e.cfg.Reach); err != nil {
		return err
	}
	if tool != "" {
		inv, err := e.act.Inventory(ctx)
		if err != nil {
			return err
		}
		if best := bestHeld(inv, tool); best != "" {
			if err := e.act.Equip(ctx, best); err != nil {
				return err
			}
		}
	}
	return e.act.Mine(ctx, blk)
}

// goTo finds a matching block and walks into reach of it.
func (e *Executor) goTo(ctx context.Context, match BlockMatch, reach float64) (Block, error) {
	blk, err := e.act.FindBlock(ctx, match, e.cfg.SearchRadius)
	if err != nil {
		return Block{}, err
	}
	return blk, e.act.NavigateTo(ctx, blk.Position, reach)
}

// fight finds one matching entity and attacks it.
func (e *Executor) fight(ctx context.Context, names ...string) (AttackResult, error) {
	ent, err := e.act.FindEntity(ctx, EntityMatch{Names: names}, e.cfg.SearchRadius)
	if err != nil {
		return AttackResult{}, err
	}
	if err := e.act.NavigateTo(ctx, ent.Position, e.cfg.Reach); err != nil {
		return AttackResult{}, err
	}
	inv, err := e.act.Inventory(ctx)
	if err != nil {
		return AttackResult{}, err
	}
	if best := bestHeld(inv, "sword"); best != "" {
		if err := e.act.Equip(ctx, best); err != nil {
			return AttackResult{}, err
		}
	}
	return e.act.Attack(ctx, ent, e.cfg.MaxStrikes)
}

// craft crafts count of item, first crafting whatever intermediate parts
// the inventory lacks.
func (e *Executor) craft(ctx context.Context, item string, count int) error {
	inv, err := e.act.Inventory(ctx)
	if err != nil {
		return err
	}
	for _, step := range plan(item, count, inv) {
		if err := e.act.Craft(ctx, step.item, step.count); err != nil {
			return fmt.Errorf("craft %s: %w", step.item, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
