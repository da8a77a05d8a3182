package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// BridgeConfig locates the bot bridge.
type BridgeConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// Bridge implements Actuator over a bot sidecar's JSON API.
type Bridge struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewBridge creates a Bridge for the given base URL.
func NewBridge(cfg BridgeConfig) *Bridge {
	return &Bridge{
		BaseURL: strings.TrimRight(cfg.URL, "/"),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Ready reports whether the bridge answers its status endpoint.
func (b *Bridge) Ready(ctx context.Context) error {
	return b.get(ctx, "/v1/status", nil)
}

func (b *Bridge) FindBlock(ctx context.Context, match BlockMatch, maxDistance float64) (Block, error) {
	var out Block
	err := b.post(ctx, "/v1/find/block", map[string]any{
		"match":        match,
		"max_distance": maxDistance,
	}, &out)
	return out, err
}

func (b *Bridge) FindEntity(ctx context.Context, match EntityMatch, maxDistance float64) (Entity, error) {
	var out Entity
	err := b.post(ctx, "/v1/find/entity", map[string]any{
		"match":        match,
		"max_distance": maxDistance,
	}, &out)
	return out, err
}

func (b *Bridge) NavigateTo(ctx context.Context, target world.Vec3, reach float64) error {
	return b.post(ctx, "/v1/navigate", map[string]any{"target": target, "reach": reach}, nil)
}

func (b *Bridge) Mine(ctx context.Context, blk Block) error {
	return b.post(ctx, "/v1/mine", blk, nil)
}

func (b *Bridge) Craft(ctx context.Context, item string, count int) error {
	return b.post(ctx, "/v1/craft", map[string]any{"item": item, "count": count}, nil)
}

func (b *Bridge) Attack(ctx context.Context, e Entity, maxStrikes int) (AttackResult, error) {
	var out AttackResult
	err := b.post(ctx, "/v1/attack", map[string]any{"entity": e, "max_strikes": maxStrikes}, &out)
	return out, err
}

func (b *Bridge) Equip(ctx context.Context, item string) error {
	return b.post(ctx, "/v1/equip", map[string]any{"item": item}, nil)
}

func (b *Bridge) Use(ctx context.Context, item string) error {
	return b.post(ctx, "/v1/use", map[string]any{"item": item}, nil)
}

func (b *Bridge) Place(ctx context.Context, item string, at world.Vec3) error {
	return b.post(ctx, "/v1/place", map[string]any{"item": item, "at": at}, nil)
}

func (b *Bridge) Inventory(ctx context.Context) (map[string]int, error) {
	var out struct {
		Items map[string]int `json:"items"`
	}
	if err := b.get(ctx, "/v1/inventory", &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = map[string]int{}
	}
	return out.Items, nil
}

func (b *Bridge) Position(ctx context.Context) (world.Vec3, error) {
	var out world.Vec3
	err := b.get(ctx, "/v1/position", &out)
	return out, err
}

func (b *Bridge) Vitals(ctx context.Context) (Vitals, error) {
	var out Vitals
	err := b.get(ctx, "/v1/health", &out)
	return out, err
}

func (b *Bridge) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return b.do(req, path, out)
}

func (b *Bridge) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, path, out)
}

// do sends req and decodes a 200 body into out. 404 maps to ErrNotFound;
// every other failure wraps ErrActuation.
func (b *Bridge) do(req *http.Request, path string, out any) error {
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrActuation, req.Method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrActuation, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s (%d): %s", ErrActuation, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrActuation, path, err)
	}
	return nil
}
