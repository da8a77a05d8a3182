package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/speedrunner/internal/actuator"
	"github.com/talgya/speedrunner/internal/api"
	"github.com/talgya/speedrunner/internal/arbiter"
	"github.com/talgya/speedrunner/internal/config"
	"github.com/talgya/speedrunner/internal/encoder"
	"github.com/talgya/speedrunner/internal/engine"
	"github.com/talgya/speedrunner/internal/learner"
	"github.com/talgya/speedrunner/internal/llm"
	"github.com/talgya/speedrunner/internal/persistence"
	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/reasoning"
	"github.com/talgya/speedrunner/internal/replay"
	"github.com/talgya/speedrunner/internal/reward"
	"github.com/talgya/speedrunner/internal/telemetry"
)

var (
	flagBudget      time.Duration
	flagNoReasoning bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play one run against the game bridge",
	Long: `Play one run. The run ends when the dragon dies, the time budget is
spent, or the process receives SIGINT/SIGTERM. The model checkpoint is
saved on the way out either way.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().DurationVar(&flagBudget, "budget", 0, "Override engine.budget")
	runCmd.Flags().BoolVar(&flagNoReasoning, "no-reasoning", false, "Skip the language model strategy")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagBudget > 0 {
		cfg.Engine.Budget = flagBudget
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Run history ───────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Persistence.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Persistence.DBPath)

	recorders := telemetry.Fanout{db}
	if cfg.Telemetry.Redis.Addr != "" {
		mirror, err := telemetry.NewRedisMirror(cfg.Telemetry.Redis)
		if err != nil {
			slog.Warn("redis mirror disabled", "error", err)
		} else {
			defer mirror.Close()
			recorders = append(recorders, mirror)
			slog.Info("mirroring runs to redis", "addr", cfg.Telemetry.Redis.Addr)
		}
	}
	if cfg.Telemetry.AMQP.URL != "" {
		pub, err := telemetry.NewPublisher(cfg.Telemetry.AMQP)
		if err != nil {
			slog.Warn("amqp publisher disabled", "error", err)
		} else {
			defer pub.Close()
			recorders = append(recorders, pub)
			slog.Info("publishing run events", "exchange", cfg.Telemetry.AMQP.Exchange)
		}
	}

	// ── Game bridge ───────────────────────────────────────────────────
	bridge := actuator.NewBridge(cfg.Bridge)
	if err := waitReady(ctx, "game bridge", bridge.Ready, cfg.Bridge.ReadyTimeout); err != nil {
		return err
	}
	exec := actuator.NewExecutor(bridge, cfg.Actuator)

	// ── Policy ────────────────────────────────────────────────────────
	plan, err := planner.New(cfg.Schedule())
	if err != nil {
		return err
	}
	enc := encoder.New(cfg.Encoder, cfg.Engine.Budget, plan.Count())
	rewards := reward.New(cfg.Reward, cfg.Engine.Budget)

	lrn, err := buildLearner(cfg, enc.Size())
	if err != nil {
		return err
	}
	space := lrn.Space()

	strategies := []arbiter.Strategy{
		arbiter.RuleBasedStrategy{Plan: plan, Idle: cfg.Arbiter.FallbackAction},
	}
	if lrn.Loaded() || cfg.Learner.ActCold {
		strategies = append(strategies, arbiter.LearnedStrategy{Policy: lrn})
	}
	if !flagNoReasoning {
		if r := buildReasoner(ctx, cfg, space.Names()); r != nil {
			strategies = append(strategies, arbiter.ReasoningStrategy{Client: r})
		}
	}
	arb, err := arbiter.New(cfg.Arbiter, strategies...)
	if err != nil {
		return err
	}
	slog.Info("policy ready", "strategies", fmt.Sprint(arb.Sources()), "preferred", arb.Preferred(),
		"epsilon", lrn.Epsilon(), "checkpoint", lrn.Loaded())
	if missing := unhandled(exec, plan.Actions()); len(missing) > 0 {
		slog.Warn("schedule actions without a handler will explore instead", "actions", missing)
	}

	// ── Loop ──────────────────────────────────────────────────────────
	loop, err := engine.New(cfg.Engine,
		engine.Checkpoint{Dir: cfg.Learner.ModelDir, Every: cfg.Learner.SaveEvery},
		engine.Deps{
			World:     bridge,
			Executor:  exec,
			Planner:   plan,
			Encoder:   enc,
			Reward:    rewards,
			Arbiter:   arb,
			Buffer:    lrn.Buffer(),
			Learner:   lrn,
			Actions:   space,
			Available: space.Names(),
			Recorder:  recorders,
		})
	if err != nil {
		return err
	}

	if cfg.Engine.StatusAddr != "" {
		srv := (&api.Server{Loop: loop, DB: db, Addr: cfg.Engine.StatusAddr}).Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sum := loop.Run(ctx)
	fmt.Printf("run %s: %s after %s, %d ticks, %d deaths, reached %s\n",
		sum.ID, sum.Outcome, sum.Elapsed.Round(time.Second), sum.Ticks, sum.Deaths, sum.FinalPhase)
	return nil
}

// unhandled lists the actions exec has no handler for.
func unhandled(exec *actuator.Executor, actions []string) []string {
	var out []string
	for _, a := range actions {
		if !exec.Knows(a) {
			out = append(out, a)
		}
	}
	return out
}

// buildLearner sizes the network to the encoder and restores the last
// checkpoint if there is one.
func buildLearner(cfg config.Config, stateSize int) (*learner.Learner, error) {
	space, err := learner.NewActionSpace(cfg.Learner.Actions, cfg.Learner.Aliases)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Learner.Seed))

	sizes := append([]int{stateSize}, cfg.Learner.Hidden...)
	sizes = append(sizes, space.Size())
	model, err := learner.NewMLP(sizes, cfg.Learner.LearningRate, rng)
	if err != nil {
		return nil, err
	}
	lrn, err := learner.New(cfg.Learner, space, model, replay.New(cfg.Learner.BufferSize, rng), rng)
	if err != nil {
		return nil, err
	}

	// A rejected checkpoint leaves fresh parameters; Load has already logged it.
	if err := lrn.Load(cfg.Learner.ModelDir); err != nil && !errors.Is(err, learner.ErrNoCheckpoint) {
		slog.Warn("continuing without checkpoint", "error", err)
	}
	return lrn, nil
}

// buildReasoner returns nil when no model server or model is reachable.
func buildReasoner(ctx context.Context, cfg config.Config, actions []string) *reasoning.Client {
	client := llm.NewClient(cfg.LLM)
	probeCtx, cancel := context.WithTimeout(ctx, cfg.LLM.Timeout)
	defer cancel()

	if _, err := client.SelectModel(probeCtx); err != nil {
		slog.Warn("reasoning unavailable, continuing without it", "url", cfg.LLM.URL, "error", err)
		return nil
	}
	return reasoning.New(client, actions, cfg.Reasoning)
}

// waitReady polls probe with exponential backoff until it succeeds, ctx is
// cancelled, or timeout passes.
func waitReady(ctx context.Context, name string, probe func(context.Context) error, timeout time.Duration) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(timeout)

	for {
		err := probe(ctx)
		if err == nil {
			slog.Info(name + " is ready")
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("%s did not become ready within %s: %w", name, timeout, err)
		}
		slog.Info(name+" not ready, retrying...", "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
