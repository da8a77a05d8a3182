// Package config loads the speedrunner configuration: embedded defaults,
// overlaid by a YAML file, then by environment variables.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/speedrunner/internal/actuator"
	"github.com/talgya/speedrunner/internal/arbiter"
	"github.com/talgya/speedrunner/internal/encoder"
	"github.com/talgya/speedrunner/internal/engine"
	"github.com/talgya/speedrunner/internal/learner"
	"github.com/talgya/speedrunner/internal/llm"
	"github.com/talgya/speedrunner/internal/logging"
	"github.com/talgya/speedrunner/internal/planner"
	"github.com/talgya/speedrunner/internal/reasoning"
	"github.com/talgya/speedrunner/internal/reward"
	"github.com/talgya/speedrunner/internal/telemetry"
)

//go:embed defaults.yaml
var defaultYAML []byte

// LocalPath is the project-local config file tried when no path is given.
const LocalPath = "configs/speedrunner.yaml"

// Config is the whole configuration surface.
type Config struct {
	Log         logging.Config        `yaml:"log"`
	Bridge      actuator.BridgeConfig `yaml:"bridge"`
	Actuator    actuator.Config       `yaml:"actuator"`
	Engine      engine.Config         `yaml:"engine"`
	Encoder     encoder.Config        `yaml:"encoder"`
	Reward      reward.Config         `yaml:"reward"`
	Learner     learner.Config        `yaml:"learner"`
	LLM         llm.Config            `yaml:"llm"`
	Reasoning   reasoning.Config      `yaml:"reasoning"`
	Arbiter     arbiter.Config        `yaml:"arbiter"`
	Persistence Persistence           `yaml:"persistence"`
	Telemetry   telemetry.Config      `yaml:"telemetry"`
	// Phases replaces the built-in schedule when set.
	Phases []planner.Phase `yaml:"phases"`
}

// Persistence locates the run history database.
type Persistence struct {
	DBPath string `yaml:"db_path"`
}

// Load builds the configuration.
// Search order: customPath -> ./configs/speedrunner.yaml -> embedded defaults only.
// A file overlays the defaults; keys it leaves out keep their default.
func Load(customPath string) (Config, error) {
	var cfg Config
	if err := decode(defaultYAML, &cfg); err != nil {
		return cfg, fmt.Errorf("embedded defaults: %w", err)
	}

	switch {
	case customPath != "":
		data, err := os.ReadFile(customPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", customPath, err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", customPath, err)
		}
	default:
		if data, err := os.ReadFile(LocalPath); err == nil {
			if err := decode(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", LocalPath, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode is strict: unknown keys are errors.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Bridge.URL = envOrDefault("SPEEDRUNNER_BRIDGE_URL", cfg.Bridge.URL)
	cfg.LLM.URL = envOrDefault("OLLAMA_URL", cfg.LLM.URL)
	cfg.Persistence.DBPath = envOrDefault("SPEEDRUNNER_DB", cfg.Persistence.DBPath)
	cfg.Learner.ModelDir = envOrDefault("SPEEDRUNNER_MODEL_DIR", cfg.Learner.ModelDir)
	cfg.Telemetry.Redis.Addr = envOrDefault("SPEEDRUNNER_REDIS_ADDR", cfg.Telemetry.Redis.Addr)
	cfg.Telemetry.Redis.Password = envOrDefault("SPEEDRUNNER_REDIS_PASSWORD", cfg.Telemetry.Redis.Password)
	cfg.Telemetry.AMQP.URL = envOrDefault("SPEEDRUNNER_AMQP_URL", cfg.Telemetry.AMQP.URL)
	if v := os.Getenv("SPEEDRUNNER_BUDGET"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPEEDRUNNER_BUDGET: %w", err)
		}
		cfg.Engine.Budget = d
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Schedule returns the configured phases, or the built-in schedule.
func (c Config) Schedule() []planner.Phase {
	if len(c.Phases) > 0 {
		return c.Phases
	}
	return planner.Default()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	check(c.Bridge.URL != "", "bridge.url is required")
	check(c.Bridge.Timeout > 0, "bridge.timeout must be positive")

	check(c.Engine.Budget > 0, "engine.budget must be positive")
	check(c.Engine.TrainEvery > 0, "engine.train_every must be positive")
	check(c.Engine.Backoff >= 0, "engine.backoff must not be negative")
	check(c.Engine.ActionTimeout > 0, "engine.action_timeout must be positive")

	check(c.Encoder.StateSize > 0, "encoder.state_size must be positive")
	check(c.Encoder.MaxHealth > 0, "encoder.max_health must be positive")

	l := c.Learner
	check(len(l.Actions) > 0, "learner.actions is empty")
	check(len(l.Hidden) > 0, "learner.hidden is empty")
	for _, h := range l.Hidden {
		check(h > 0, "learner.hidden sizes must be positive, got %d", h)
	}
	check(l.LearningRate > 0, "learner.learning_rate must be positive")
	check(l.Gamma >= 0 && l.Gamma <= 1, "learner.gamma must be in [0,1], got %v", l.Gamma)
	check(l.EpsilonMin >= 0 && l.EpsilonMin <= l.Epsilon && l.Epsilon <= 1,
		"learner epsilon bounds need 0 <= epsilon_min <= epsilon <= 1")
	check(l.EpsilonDecay > 0 && l.EpsilonDecay <= 1, "learner.epsilon_decay must be in (0,1]")
	check(l.BatchSize > 0 && l.BatchSize <= l.BufferSize, "learner.batch_size must be in [1, buffer_size]")
	check(l.SaveEvery >= 0, "learner.save_every must not be negative")
	if _, err := learner.NewActionSpace(l.Actions, l.Aliases); err != nil {
		errs = append(errs, fmt.Errorf("learner: %w", err))
	}

	check(c.LLM.URL != "", "llm.url is required")
	check(c.LLM.Timeout > 0, "llm.timeout must be positive")
	check(c.Reasoning.DefaultAction != "", "reasoning.default_action is required")
	check(c.Reasoning.MaxHistory >= 0, "reasoning.max_history must not be negative")

	check(c.Arbiter.Timeout > 0, "arbiter.timeout must be positive")
	check(c.Arbiter.FallbackAction != "", "arbiter.fallback_action is required")

	check(c.Telemetry.Redis.DB >= 0, "telemetry.redis.db must not be negative")
	check(c.Telemetry.Redis.RecentTicks >= 0, "telemetry.redis.recent_ticks must not be negative")

	if _, err := planner.New(c.Schedule()); err != nil {
		errs = append(errs, fmt.Errorf("phases: %w", err))
	}
	return errors.Join(errs...)
}
