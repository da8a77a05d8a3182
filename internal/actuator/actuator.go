// Package actuator defines the world-interaction contract the decision loop
// drives, an HTTP client for a bot bridge that implements it, and the
// executor that expands action ids into primitive calls.
package actuator

import (
	"context"
	"errors"

	"github.com/talgya/speedrunner/internal/world"
)

var (
	// ErrNotFound means no block or entity matched within range.
	ErrNotFound = errors.New("target not found")
	// ErrActuation wraps any failed primitive: navigation, mining, crafting,
	// combat.
	ErrActuation = errors.New("actuation failed")
)

// BlockMatch selects blocks by exact name or name suffix.
type BlockMatch struct {
	Names    []string `json:"names,omitempty"`
	Suffixes []string `json:"suffixes,omitempty"`
}

// EntityMatch selects entities by name.
type EntityMatch struct {
	Names []string `json:"names"`
}

// Block is a located block.
type Block struct {
	Name     string     `json:"name"`
	Position world.Vec3 `json:"position"`
}

// Entity is a located entity.
type Entity struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Position world.Vec3 `json:"position"`
}

// AttackResult reports how a bounded attack ended.
type AttackResult struct {
	Strikes int  `json:"strikes"`
	Killed  bool `json:"killed"`
}

// Vitals is the agent's body state. Deaths only ever grows; a rise means the
// agent respawned since the last query.
type Vitals struct {
	Health    float64 `json:"health"`
	Food      float64 `json:"food"`
	Deaths    int     `json:"deaths"`
	Dimension string  `json:"dimension"`
}

// Dimensions reported in Vitals.
const (
	Overworld = "overworld"
	Nether    = "the_nether"
	End       = "the_end"
)

// Actuator is the world. Every call may block on the game and must honour
// ctx.
type Actuator interface {
	FindBlock(ctx context.Context, match BlockMatch, maxDistance float64) (Block, error)
	FindEntity(ctx context.Context, match EntityMatch, maxDistance float64) (Entity, error)
	NavigateTo(ctx context.Context, target world.Vec3, reach float64) error
	Mine(ctx context.Context, b Block) error
	Craft(ctx context.Context, item string, count int) error
	Attack(ctx context.Context, e Entity, maxStrikes int) (AttackResult, error)
	Equip(ctx context.Context, item string) error
	Use(ctx context.Context, item string) error
	Place(ctx context.Context, item string, at world.Vec3) error
	Inventory(ctx context.Context) (map[string]int, error)
	Position(ctx context.Context) (world.Vec3, error)
	Vitals(ctx context.Context) (Vitals, error)
}
