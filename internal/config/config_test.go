package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/speedrunner/internal/learner"
	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/world"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speedrunner.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmbeddedDefaultsAreValid(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Budget != 15*time.Minute {
		t.Errorf("budget = %s, want 15m", cfg.Engine.Budget)
	}
	if cfg.Encoder.StateSize != 32 {
		t.Errorf("state_size = %d", cfg.Encoder.StateSize)
	}
	if cfg.Reward.Resources[world.Diamonds] != 10 || cfg.Reward.TerminalBonus != 1000 {
		t.Errorf("reward = %+v", cfg.Reward)
	}
	if len(cfg.Learner.Actions) != 10 || cfg.Learner.Gamma != 0.95 {
		t.Errorf("learner = %+v", cfg.Learner)
	}
	if cfg.Telemetry.Redis.Addr != "" || cfg.Telemetry.AMQP.URL != "" {
		t.Errorf("telemetry on by default: %+v", cfg.Telemetry)
	}
	if len(cfg.Schedule()) != 7 {
		t.Errorf("schedule has %d phases, want 7", len(cfg.Schedule()))
	}
}

func TestDefaultScheduleActionsReachLearner(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	space, err := learner.NewActionSpace(cfg.Learner.Actions, cfg.Learner.Aliases)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := planner.New(cfg.Schedule())
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range plan.Actions() {
		if _, ok := space.Index(a); !ok {
			t.Errorf("schedule action %q has no slot in the learner space", a)
		}
	}
	for _, a := range []string{cfg.Arbiter.FallbackAction, cfg.Reasoning.DefaultAction} {
		if _, ok := space.Index(a); !ok {
			t.Errorf("fallback action %q has no slot in the learner space", a)
		}
	}
}

func TestFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
engine:
  budget: 20m
reward:
  resources:
    wood: 2.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Budget != 20*time.Minute {
		t.Errorf("budget = %s, want 20m", cfg.Engine.Budget)
	}
	if cfg.Engine.TrainEvery != 4 {
		t.Errorf("train_every = %d, want default 4", cfg.Engine.TrainEvery)
	}
	if cfg.Reward.Resources[world.Wood] != 2.5 || cfg.Reward.Resources[world.Iron] != 2 {
		t.Errorf("resources = %v", cfg.Reward.Resources)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	path := writeFile(t, "engine:\n  budgett: 20m\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestMissingCustomFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLocalFileUsedWithoutPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll("configs", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(LocalPath, []byte("engine:\n  train_every: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.TrainEvery != 9 {
		t.Errorf("train_every = %d, want 9", cfg.Engine.TrainEvery)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPEEDRUNNER_BRIDGE_URL", "http://bot:9000")
	t.Setenv("OLLAMA_URL", "http://gpu:11434")
	t.Setenv("SPEEDRUNNER_DB", "/tmp/x.db")
	t.Setenv("SPEEDRUNNER_MODEL_DIR", "/tmp/models")
	t.Setenv("SPEEDRUNNER_BUDGET", "90s")
	t.Setenv("SPEEDRUNNER_REDIS_ADDR", "cache:6379")
	t.Setenv("SPEEDRUNNER_AMQP_URL", "amqp://guest:guest@mq:5672/")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.URL != "http://bot:9000" || cfg.LLM.URL != "http://gpu:11434" ||
		cfg.Persistence.DBPath != "/tmp/x.db" || cfg.Learner.ModelDir != "/tmp/models" ||
		cfg.Engine.Budget != 90*time.Second || cfg.Telemetry.Redis.Addr != "cache:6379" ||
		cfg.Telemetry.AMQP.URL != "amqp://guest:guest@mq:5672/" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestBadBudgetEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPEEDRUNNER_BUDGET", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("bad budget accepted")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	path := writeFile(t, `
learner:
  gamma: 1.5
  batch_size: 20000
arbiter:
  fallback_action: ""
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"gamma", "batch_size", "fallback_action"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestAliasToUnknownActionRejected(t *testing.T) {
	path := writeFile(t, "learner:\n  aliases:\n    dig: teleport\n")
	if _, err := Load(path); err == nil {
		t.Fatal("alias to unknown action accepted")
	}
}

func TestCustomPhases(t *testing.T) {
	path := writeFile(t, `
phases:
  - id: only
    name: Just wood
    until: 15m
    tasks:
      - action: gather_wood
        priority: 1
        done: {resource: wood, count: 4}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sched := cfg.Schedule()
	if len(sched) != 1 || sched[0].Tasks[0].Goal.Count != 4 {
		t.Errorf("schedule = %+v", sched)
	}
}
