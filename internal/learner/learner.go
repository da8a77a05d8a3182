// Package learner implements the online Q-learning policy: epsilon-greedy
// action selection, one-step Bellman training from the replay buffer, and
// checkpointing.
package learner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/talgya/speedrunner/internal/replay"
)

var (
	// ErrTraining wraps any failure inside TrainStep.
	ErrTraining = errors.New("training step failed")
	// ErrNoCheckpoint means the checkpoint directory holds no model.
	ErrNoCheckpoint = errors.New("no checkpoint")
)

const (
	modelFile = "model.json"
	stateFile = "learner.json"
)

// Target is one regression sample: move the estimate at Action in State
// toward Value.
type Target struct {
	State  []float64
	Action int
	Value  float64
}

// QFunction estimates per-action values. Train must leave parameters
// unchanged when it returns an error.
type QFunction interface {
	Predict(state []float64) ([]float64, error)
	Train(batch []Target) (loss float64, err error)
	Actions() int
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Config holds the learner hyperparameters.
type Config struct {
	Hidden       []int             `yaml:"hidden"`
	LearningRate float64           `yaml:"learning_rate"`
	Gamma        float64           `yaml:"gamma"`
	Epsilon      float64           `yaml:"epsilon"`
	EpsilonMin   float64           `yaml:"epsilon_min"`
	EpsilonDecay float64           `yaml:"epsilon_decay"`
	BufferSize   int               `yaml:"buffer_size"`
	BatchSize    int               `yaml:"batch_size"`
	Seed         int64             `yaml:"seed"`
	ModelDir     string            `yaml:"model_dir"`
	SaveEvery    int               `yaml:"save_every"`
	ActCold      bool              `yaml:"act_cold"`
	Actions      []string          `yaml:"actions"`
	Aliases      map[string]string `yaml:"aliases"`
}

// Learner owns the Q-function and the exploration rate. It samples from,
// but does not fill, the replay buffer. Not safe for concurrent use.
type Learner struct {
	cfg     Config
	space   *ActionSpace
	model   QFunction
	buffer  *replay.Buffer
	rng     *rand.Rand
	epsilon float64
	steps   int
	loaded  bool
}

// New wires a learner around model and buffer.
func New(cfg Config, space *ActionSpace, model QFunction, buffer *replay.Buffer, rng *rand.Rand) (*Learner, error) {
	if model.Actions() != space.Size() {
		return nil, fmt.Errorf("model scores %d actions, space has %d", model.Actions(), space.Size())
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	return &Learner{
		cfg:     cfg,
		space:   space,
		model:   model,
		buffer:  buffer,
		rng:     rng,
		epsilon: cfg.Epsilon,
	}, nil
}

// Epsilon returns the current exploration rate.
func (l *Learner) Epsilon() float64 { return l.epsilon }

// Steps returns the number of successful training steps.
func (l *Learner) Steps() int { return l.steps }

// Loaded reports whether parameters came from a checkpoint.
func (l *Learner) Loaded() bool { return l.loaded }

// Space returns the action space.
func (l *Learner) Space() *ActionSpace { return l.space }

// Buffer returns the replay buffer the learner samples from.
func (l *Learner) Buffer() *replay.Buffer { return l.buffer }

// SelectAction picks from available with epsilon-greedy exploration. When
// exploiting, the highest-valued available action wins and ties go to the
// earliest entry. Actions the space does not know are never exploited.
func (l *Learner) SelectAction(state []float64, available []string) (string, error) {
	if len(available) == 0 {
		available = l.space.Names()
	}
	if l.rng.Float64() < l.epsilon {
		return available[l.rng.Intn(len(available))], nil
	}

	q, err := l.model.Predict(state)
	if err != nil {
		return "", fmt.Errorf("predict: %w", err)
	}

	best := -1
	bestQ := math.Inf(-1)
	for i, a := range available {
		idx, ok := l.space.Index(a)
		if !ok {
			continue
		}
		if best < 0 || q[idx] > bestQ {
			best, bestQ = i, q[idx]
		}
	}
	if best < 0 {
		return available[l.rng.Intn(len(available))], nil
	}
	return available[best], nil
}

// TrainStep runs one optimization step on a sampled batch. It returns false
// without error when the buffer holds fewer than a batch. On failure
// epsilon and parameters are unchanged.
func (l *Learner) TrainStep() (trained bool, err error) {
	if l.buffer.Len() < l.cfg.BatchSize {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			trained = false
			err = fmt.Errorf("%w: panic: %v", ErrTraining, r)
			slog.Error("training step panicked", "panic", r)
		}
	}()

	batch, err := l.buffer.Sample(l.cfg.BatchSize)
	if err != nil {
		return false, nil
	}

	targets := make([]Target, len(batch))
	for i, t := range batch {
		value := t.Reward
		if !t.Terminal {
			next, err := l.model.Predict(t.Next)
			if err != nil {
				return false, l.trainFailed(err)
			}
			value += l.cfg.Gamma * maxOf(next)
		}
		targets[i] = Target{State: t.State, Action: t.Action, Value: value}
	}

	loss, err := l.model.Train(targets)
	if err != nil {
		return false, l.trainFailed(err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return false, l.trainFailed(ErrNonFinite)
	}

	l.epsilon = math.Max(l.cfg.EpsilonMin, l.epsilon*l.cfg.EpsilonDecay)
	l.steps++
	slog.Debug("train step", "loss", loss, "epsilon", l.epsilon, "steps", l.steps)
	return true, nil
}

func (l *Learner) trainFailed(err error) error {
	slog.Warn("training step skipped", "error", err)
	return fmt.Errorf("%w: %v", ErrTraining, err)
}

type learnerState struct {
	Epsilon float64  `json:"epsilon"`
	Steps   int      `json:"steps"`
	Actions []string `json:"actions"`
}

// Save writes the model and learner state into dir.
func (l *Learner) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	params, err := l.model.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot model: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, modelFile), params, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	state, err := json.MarshalIndent(learnerState{
		Epsilon: l.epsilon,
		Steps:   l.steps,
		Actions: l.space.Names(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal learner state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFile), state, 0644); err != nil {
		return fmt.Errorf("write learner state: %w", err)
	}
	slog.Info("checkpoint saved", "dir", dir, "steps", l.steps, "epsilon", l.epsilon)
	return nil
}

// Load restores a checkpoint from dir. A missing checkpoint returns
// ErrNoCheckpoint; any other failure leaves the fresh parameters in place.
// Either way the learner stays usable.
func (l *Learner) Load(dir string) error {
	params, err := os.ReadFile(filepath.Join(dir, modelFile))
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no checkpoint found, starting cold", "dir", dir)
		return ErrNoCheckpoint
	}
	if err != nil {
		slog.Warn("checkpoint unreadable, using fresh parameters", "dir", dir, "error", err)
		return fmt.Errorf("read model: %w", err)
	}
	if err := l.model.Restore(params); err != nil {
		slog.Warn("checkpoint rejected, using fresh parameters", "dir", dir, "error", err)
		return fmt.Errorf("restore model: %w", err)
	}
	l.loaded = true

	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		slog.Warn("learner state missing, keeping configured epsilon", "error", err)
		return nil
	}
	var st learnerState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("learner state corrupted, keeping configured epsilon", "error", err)
		return nil
	}
	// Epsilon only ever moves down.
	if st.Epsilon < l.epsilon {
		l.epsilon = math.Max(l.cfg.EpsilonMin, st.Epsilon)
	}
	l.steps = st.Steps
	slog.Info("checkpoint loaded", "dir", dir, "steps", l.steps, "epsilon", l.epsilon)
	return nil
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}
