package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talgya/speedrunner/internal/actuator"
	"github.com/talgya/speedrunner/internal/config"
	"github.com/talgya/speedrunner/internal/planner"
)

func TestWaitReadyImmediate(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), "bridge", func(context.Context) error {
		calls++
		return nil
	}, time.Minute)
	if err != nil || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestWaitReadyGivesUpAtDeadline(t *testing.T) {
	down := errors.New("connection refused")
	err := waitReady(context.Background(), "bridge", func(context.Context) error { return down }, time.Second)
	if !errors.Is(err, down) {
		t.Errorf("err = %v, want wrapped probe error", err)
	}
}

func TestWaitReadyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitReady(ctx, "bridge", func(context.Context) error { return errors.New("down") }, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuildLearnerColdStart(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Learner.ModelDir = t.TempDir()
	cfg.Learner.Hidden = []int{8}

	lrn, err := buildLearner(cfg, cfg.Encoder.StateSize)
	if err != nil {
		t.Fatalf("buildLearner: %v", err)
	}
	if lrn.Loaded() {
		t.Error("empty model dir reported as loaded")
	}
	if lrn.Space().Size() != len(cfg.Learner.Actions) {
		t.Errorf("space size = %d", lrn.Space().Size())
	}
	if lrn.Buffer().Cap() != cfg.Learner.BufferSize {
		t.Errorf("buffer cap = %d", lrn.Buffer().Cap())
	}

	if err := lrn.Save(cfg.Learner.ModelDir); err != nil {
		t.Fatal(err)
	}
	again, err := buildLearner(cfg, cfg.Encoder.StateSize)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.Loaded() {
		t.Error("saved checkpoint not loaded")
	}
}

func TestUnhandledActions(t *testing.T) {
	exec := actuator.NewExecutor(nil, actuator.Config{})
	got := unhandled(exec, []string{"gather_wood", "moonwalk", "kill_dragon"})
	if len(got) != 1 || got[0] != "moonwalk" {
		t.Errorf("unhandled = %v, want [moonwalk]", got)
	}

	plan, err := planner.New(planner.Default())
	if err != nil {
		t.Fatal(err)
	}
	if missing := unhandled(exec, plan.Actions()); len(missing) != 0 {
		t.Errorf("default schedule has actions without handlers: %v", missing)
	}
}
