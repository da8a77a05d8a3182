package arbiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/reasoning"
	"github.com/talgya/speedrunner/internal/world"
)

type fixedSelector struct {
	action string
	err    error
	calls  int
}

func (f *fixedSelector) SelectAction(state []float64, available []string) (string, error) {
	f.calls++
	return f.action, f.err
}

type fixedReasoner struct {
	decision reasoning.Decision
	delay    time.Duration
}

func (f fixedReasoner) Decide(ctx context.Context, s world.Situation) reasoning.Decision {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return reasoning.Decision{Action: "explore", Degraded: true, Cause: ctx.Err()}
		}
	}
	return f.decision
}

// hangingReasoner ignores its context entirely.
type hangingReasoner struct{ release chan struct{} }

func (h hangingReasoner) Decide(ctx context.Context, s world.Situation) reasoning.Decision {
	<-h.release
	return reasoning.Decision{Action: "mine_iron"}
}

func rules(t *testing.T) RuleBasedStrategy {
	t.Helper()
	p, err := planner.New(planner.Default())
	if err != nil {
		t.Fatal(err)
	}
	return RuleBasedStrategy{Plan: p, Idle: "explore"}
}

func startTick() Tick {
	return Tick{Situation: world.NewSituation(world.Snapshot{Phase: "phase1"})}
}

func TestPrioritiesAndOrdering(t *testing.T) {
	sel := &fixedSelector{action: "mine_stone"}
	a, err := New(Config{Timeout: time.Second},
		rules(t),
		ReasoningStrategy{Client: fixedReasoner{decision: reasoning.Decision{Action: "explore"}}},
		LearnedStrategy{Policy: sel},
	)
	if err != nil {
		t.Fatal(err)
	}
	got := a.Sources()
	want := []Source{Learned, Reasoning, RuleBased}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sources = %v, want %v", got, want)
		}
	}
	if a.Preferred() != Learned {
		t.Errorf("Preferred = %s, want learned", a.Preferred())
	}
	c := a.Decide(context.Background(), startTick())
	if c.Source != Learned || c.Action != "mine_stone" || len(c.Fallbacks) != 0 {
		t.Fatalf("choice = %+v", c)
	}
}

func TestPreferredRuleBasedAlone(t *testing.T) {
	a, err := New(Config{Timeout: time.Second}, rules(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Preferred() != RuleBased {
		t.Errorf("Preferred = %s, want rule_based", a.Preferred())
	}
}

func TestReasoningTimeoutFallsBackToRuleBased(t *testing.T) {
	rb := rules(t)
	a, err := New(Config{Timeout: 30 * time.Millisecond},
		ReasoningStrategy{Client: fixedReasoner{delay: time.Minute}},
		rb,
	)
	if err != nil {
		t.Fatal(err)
	}

	tick := startTick()
	want, _ := rb.Decide(context.Background(), tick)

	start := time.Now()
	c := a.Decide(context.Background(), tick)
	if time.Since(start) > time.Second {
		t.Fatal("arbiter waited past timeout")
	}
	if c.Source != RuleBased || c.Action != want.Action {
		t.Fatalf("choice = %s/%s, want rule_based/%s", c.Source, c.Action, want.Action)
	}
	if len(c.Fallbacks) != 1 {
		t.Fatalf("fallbacks = %v", c.Fallbacks)
	}
}

func TestHungRemoteStrategyIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a, err := New(Config{Timeout: 20 * time.Millisecond},
		ReasoningStrategy{Client: hangingReasoner{release: release}},
		rules(t),
	)
	if err != nil {
		t.Fatal(err)
	}
	c := a.Decide(context.Background(), startTick())
	if c.Source != RuleBased {
		t.Fatalf("source = %s", c.Source)
	}
	if !errors.Is(c.Fallbacks[0], ErrTimeout) {
		t.Fatalf("fallback err = %v, want ErrTimeout", c.Fallbacks[0])
	}
}

func TestFallbackIsPerTick(t *testing.T) {
	sel := &fixedSelector{err: errors.New("nan")}
	a, err := New(Config{Timeout: time.Second},
		LearnedStrategy{Policy: sel},
		ReasoningStrategy{Client: fixedReasoner{decision: reasoning.Decision{Action: "find_blaze", Rationale: "rods"}}},
		rules(t),
	)
	if err != nil {
		t.Fatal(err)
	}

	c := a.Decide(context.Background(), startTick())
	if c.Source != Reasoning || c.Action != "find_blaze" {
		t.Fatalf("first tick = %s/%s", c.Source, c.Action)
	}

	sel.err = nil
	sel.action = "explore"
	c = a.Decide(context.Background(), startTick())
	if c.Source != Learned {
		t.Fatalf("learned strategy permanently demoted: %s", c.Source)
	}
	if sel.calls != 2 {
		t.Fatalf("learned called %d times, want 2", sel.calls)
	}
}

func TestDegradedReasoningCountsAsFailure(t *testing.T) {
	a, err := New(Config{Timeout: time.Second},
		ReasoningStrategy{Client: fixedReasoner{decision: reasoning.Decision{
			Action: "explore", Degraded: true, Cause: reasoning.ErrMalformed,
		}}},
		rules(t),
	)
	if err != nil {
		t.Fatal(err)
	}
	c := a.Decide(context.Background(), startTick())
	if c.Source != RuleBased || c.Action != "gather_wood" {
		t.Fatalf("choice = %s/%s", c.Source, c.Action)
	}
	if !errors.Is(c.Fallbacks[0], reasoning.ErrMalformed) {
		t.Fatalf("fallback = %v", c.Fallbacks[0])
	}
}

func TestPanickingStrategyFallsBack(t *testing.T) {
	a, err := New(Config{Timeout: time.Second}, LearnedStrategy{Policy: nil}, rules(t))
	if err != nil {
		t.Fatal(err)
	}
	c := a.Decide(context.Background(), startTick())
	if c.Source != RuleBased {
		t.Fatalf("source = %s", c.Source)
	}
}

func TestRuleBasedFollowsPhaseIndex(t *testing.T) {
	rb := rules(t)
	s := world.NewSituation(world.Snapshot{}).InPhase("phase3", 2)
	c, err := rb.Decide(context.Background(), Tick{Situation: s})
	if err != nil {
		t.Fatal(err)
	}
	if c.Action != "mine_iron" || c.Target != 12 {
		t.Fatalf("choice = %s target %d", c.Action, c.Target)
	}
}

func TestNewRequiresOneRuleBased(t *testing.T) {
	if _, err := New(Config{}, LearnedStrategy{}); err == nil {
		t.Error("missing rule-based accepted")
	}
	if _, err := New(Config{}, rules(t), rules(t)); err == nil {
		t.Error("two rule-based accepted")
	}
	if _, err := New(Config{}, rules(t), LearnedStrategy{}, LearnedStrategy{}); err == nil {
		t.Error("duplicate learned accepted")
	}
}
