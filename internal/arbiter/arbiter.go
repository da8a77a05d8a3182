package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrTimeout is returned for a strategy that overran its deadline.
var ErrTimeout = errors.New("strategy timed out")

// Config holds arbitration settings.
type Config struct {
	Timeout        time.Duration `yaml:"timeout"`
	FallbackAction string        `yaml:"fallback_action"`
}

// Arbiter holds the strategies that were available at startup, best first.
// The last strategy is always rule-based and is never abandoned.
type Arbiter struct {
	chain    []Strategy
	timeout  time.Duration
	fallback string
}

// New ranks strategies. Exactly one rule-based strategy is required; its
// answer is accepted whenever everything above it fails.
func New(cfg Config, strategies ...Strategy) (*Arbiter, error) {
	chain := append([]Strategy(nil), strategies...)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Source() > chain[j].Source()
	})

	rules := 0
	for _, s := range chain {
		if s.Source() == RuleBased {
			rules++
		}
	}
	if rules != 1 {
		return nil, fmt.Errorf("need exactly one rule-based strategy, have %d", rules)
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].Source() == chain[i-1].Source() {
			return nil, fmt.Errorf("duplicate %s strategy", chain[i].Source())
		}
	}
	return &Arbiter{chain: chain, timeout: cfg.Timeout, fallback: cfg.FallbackAction}, nil
}

// Sources returns the ranked sources, best first.
func (a *Arbiter) Sources() []Source {
	out := make([]Source, len(a.chain))
	for i, s := range a.chain {
		out[i] = s.Source()
	}
	return out
}

// Preferred returns the source tried first each tick.
func (a *Arbiter) Preferred() Source { return a.chain[0].Source() }

// Decide returns exactly one strategy's choice for this tick. Failures only
// affect this tick; the next call starts again from the top.
func (a *Arbiter) Decide(ctx context.Context, t Tick) Choice {
	var fallbacks []error
	last := len(a.chain) - 1
	for i, s := range a.chain {
		var (
			c   Choice
			err error
		)
		if i == last {
			c, err = call(ctx, s, t)
		} else {
			c, err = a.bounded(ctx, s, t)
		}
		if err == nil && c.Action == "" {
			err = errors.New("empty action")
		}
		if err == nil {
			c.Source = s.Source()
			c.Fallbacks = fallbacks
			return c
		}
		fallbacks = append(fallbacks, fmt.Errorf("%s: %w", s.Source(), err))
		slog.Warn("strategy failed, falling back", "strategy", s.Source().String(), "error", err)
	}

	// The rule-based strategy should not fail; if it somehow does the tick
	// still gets an action.
	return Choice{Action: a.fallback, Source: RuleBased, Rationale: "no strategy answered", Fallbacks: fallbacks}
}

// bounded runs s under the arbiter timeout.
func (a *Arbiter) bounded(ctx context.Context, s Strategy, t Tick) (Choice, error) {
	if a.timeout <= 0 {
		return call(ctx, s, t)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if _, ok := s.(remote); !ok {
		start := time.Now()
		c, err := call(ctx, s, t)
		if err == nil && time.Since(start) > a.timeout {
			return Choice{}, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return c, err
	}

	type result struct {
		c   Choice
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := call(ctx, s, t)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.c, r.err
	case <-ctx.Done():
		return Choice{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// call invokes s, converting a panic into an error.
func call(ctx context.Context, s Strategy, t Tick) (c Choice, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Decide(ctx, t)
}
