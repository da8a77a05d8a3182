// Package reasoning asks a generative model what to do next and turns its
// free-form answer into one recognized action. It never fails: every
// problem degrades to a configured local default.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// ErrMalformed means the service answered but nothing in the text named a
// recognized action.
var ErrMalformed = errors.New("response names no recognized action")

// Generator produces text for a prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Keyword maps a loose word in a response onto an action.
type Keyword struct {
	Word   string `yaml:"word"`
	Action string `yaml:"action"`
}

// Config controls prompting, parsing and fallbacks.
type Config struct {
	Timeout         time.Duration     `yaml:"timeout"`
	MaxHistory      int               `yaml:"max_history"`
	HistoryInPrompt int               `yaml:"history_in_prompt"`
	MaxPromptChars  int               `yaml:"max_prompt_chars"`
	DefaultAction   string            `yaml:"default_action"`
	PhaseDefaults   map[string]string `yaml:"phase_defaults"`
	Keywords        []Keyword         `yaml:"keywords"`
}

// Source records how a decision was reached.
type Source string

const (
	SourceStructured Source = "structured"
	SourceHeuristic  Source = "heuristic"
	SourceDefault    Source = "default"
)

// Decision is the outcome of one Decide call. Degraded is set when the
// action is the local default because the service failed or its answer was
// unusable; Cause says why.
type Decision struct {
	Action    string
	Rationale string
	Priority  int
	Source    Source
	Degraded  bool
	Cause     error
}

// Exchange is one remembered (situation, decision) pair.
type Exchange struct {
	Phase     string
	Elapsed   time.Duration
	Summary   string
	Action    string
	Rationale string
}

// Client decides actions through a Generator.
type Client struct {
	gen        Generator
	cfg        Config
	actions    []string
	recognized map[string]bool

	mu      sync.Mutex
	history []Exchange
}

// New creates a Client that only ever returns one of actions, or a
// configured default.
func New(gen Generator, actions []string, cfg Config) *Client {
	rec := make(map[string]bool, len(actions))
	for _, a := range actions {
		rec[a] = true
	}
	return &Client{
		gen:        gen,
		cfg:        cfg,
		actions:    append([]string(nil), actions...),
		recognized: rec,
	}
}

// Actions returns the recognized actions in prompt order.
func (c *Client) Actions() []string {
	return append([]string(nil), c.actions...)
}

// Decide asks the service for the next action in s. It does not return an
// error; failures surface as a degraded Decision.
func (c *Client) Decide(ctx context.Context, s world.Situation) Decision {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	prompt := c.buildPrompt(s)
	raw, err := c.gen.Generate(ctx, prompt)

	var d Decision
	switch {
	case err != nil:
		slog.Warn("reasoning service failed, using local default", "phase", s.Phase(), "error", err)
		d = c.fallback(s, err)
	default:
		var ok bool
		d, ok = c.parse(raw)
		if !ok {
			slog.Warn("reasoning response unusable, using local default", "phase", s.Phase(), "response", clip(raw, 120))
			d = c.fallback(s, ErrMalformed)
		}
	}

	c.remember(Exchange{
		Phase:     s.Phase(),
		Elapsed:   s.Elapsed(),
		Summary:   summarize(s),
		Action:    d.Action,
		Rationale: d.Rationale,
	})
	return d
}

// fallback returns the local default for s's phase.
func (c *Client) fallback(s world.Situation, cause error) Decision {
	return Decision{
		Action:    c.DefaultFor(s.Phase()),
		Rationale: fmt.Sprintf("local default: %v", cause),
		Source:    SourceDefault,
		Degraded:  true,
		Cause:     cause,
	}
}

// DefaultFor returns the configured default action for phase.
func (c *Client) DefaultFor(phase string) string {
	if a, ok := c.cfg.PhaseDefaults[phase]; ok && a != "" {
		return a
	}
	return c.cfg.DefaultAction
}

func (c *Client) remember(e Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, e)
	if c.cfg.MaxHistory > 0 && len(c.history) > c.cfg.MaxHistory {
		c.history = append([]Exchange(nil), c.history[len(c.history)-c.cfg.MaxHistory:]...)
	}
}

// History returns the remembered exchanges, oldest first.
func (c *Client) History() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Exchange(nil), c.history...)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
