// Package world provides the per-tick view of the agent's surroundings:
// resources, objectives, position and the clock.
package world

import (
	"fmt"
	"time"
)

// Resource names a counted material the run progresses through.
type Resource string

const (
	Wood        Resource = "wood"
	Stone       Resource = "stone"
	Iron        Resource = "iron"
	Diamonds    Resource = "diamonds"
	Obsidian    Resource = "obsidian"
	EnderPearls Resource = "ender_pearls"
	BlazeRods   Resource = "blaze_rods"
	EnderEyes   Resource = "ender_eyes"
)

// Resources lists every resource in canonical order, cheapest first.
var Resources = []Resource{Wood, Stone, Iron, Diamonds, Obsidian, EnderPearls, BlazeRods, EnderEyes}

// Objective names a boolean milestone.
type Objective string

const (
	HasWoodenTools  Objective = "has_wooden_tools"
	HasStoneTools   Objective = "has_stone_tools"
	HasIronTools    Objective = "has_iron_tools"
	HasDiamonds     Objective = "has_diamonds"
	HasObsidian     Objective = "has_obsidian"
	HasBlazeRods    Objective = "has_blaze_rods"
	HasEnderEyes    Objective = "has_ender_eyes"
	EnteredNether   Objective = "entered_nether"
	FoundStronghold Objective = "found_stronghold"
	EnteredEnd      Objective = "entered_end"
	KilledDragon    Objective = "killed_dragon" // win condition
)

// Objectives lists every objective in the order the run reaches them.
var Objectives = []Objective{
	HasWoodenTools, HasStoneTools, HasIronTools, HasDiamonds, HasObsidian,
	HasBlazeRods, HasEnderEyes, EnteredNether, FoundStronghold, EnteredEnd, KilledDragon,
}

// Vec3 is a block-space position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.0f, %.0f, %.0f)", v.X, v.Y, v.Z)
}

// Snapshot is the mutable input used to build a Situation.
type Snapshot struct {
	Phase      string             `json:"phase"`
	PhaseIndex int                `json:"phase_index"`
	Position   Vec3               `json:"position"`
	Resources  map[Resource]int   `json:"resources"`
	Objectives map[Objective]bool `json:"objectives"`
	Items      map[string]int     `json:"items,omitempty"`
	Elapsed    time.Duration      `json:"elapsed"`
	Health     float64            `json:"health"`
}

// Situation is an immutable snapshot of the world for one tick.
// The zero value is valid: empty inventory, no objectives, time zero.
type Situation struct {
	phase      string
	phaseIndex int
	position   Vec3
	resources  map[Resource]int
	objectives map[Objective]bool
	items      map[string]int
	elapsed    time.Duration
	health     float64
}

// NewSituation copies s into a Situation. Later changes to s's maps
// are not visible through the result.
func NewSituation(s Snapshot) Situation {
	res := make(map[Resource]int, len(s.Resources))
	for k, v := range s.Resources {
		res[k] = v
	}
	obj := make(map[Objective]bool, len(s.Objectives))
	for k, v := range s.Objectives {
		if v {
			obj[k] = true
		}
	}
	items := make(map[string]int, len(s.Items))
	for k, v := range s.Items {
		items[k] = v
	}
	return Situation{
		phase:      s.Phase,
		phaseIndex: s.PhaseIndex,
		position:   s.Position,
		resources:  res,
		objectives: obj,
		items:      items,
		elapsed:    s.Elapsed,
		health:     s.Health,
	}
}

func (s Situation) Phase() string          { return s.phase }
func (s Situation) PhaseIndex() int        { return s.phaseIndex }
func (s Situation) Position() Vec3         { return s.position }
func (s Situation) Elapsed() time.Duration { return s.elapsed }
func (s Situation) Health() float64        { return s.health }

// Count returns the held amount of r, zero if unknown.
func (s Situation) Count(r Resource) int {
	return s.resources[r]
}

// Achieved reports whether objective o has been reached.
func (s Situation) Achieved(o Objective) bool {
	return s.objectives[o]
}

// Held returns the raw inventory count of item.
func (s Situation) Held(item string) int {
	return s.items[item]
}

// Won reports whether the win condition is met.
func (s Situation) Won() bool {
	return s.objectives[KilledDragon]
}

// InPhase returns a copy of s tagged with the given phase.
// The maps are shared; neither copy ever writes to them.
func (s Situation) InPhase(id string, index int) Situation {
	s.phase = id
	s.phaseIndex = index
	return s
}

// Snapshot returns a detached, mutable copy of s.
func (s Situation) Snapshot() Snapshot {
	out := Snapshot{
		Phase:      s.phase,
		PhaseIndex: s.phaseIndex,
		Position:   s.position,
		Resources:  make(map[Resource]int, len(s.resources)),
		Objectives: make(map[Objective]bool, len(s.objectives)),
		Items:      make(map[string]int, len(s.items)),
		Elapsed:    s.elapsed,
		Health:     s.health,
	}
	for k, v := range s.resources {
		out.Resources[k] = v
	}
	for k, v := range s.objectives {
		out.Objectives[k] = v
	}
	for k, v := range s.items {
		out.Items[k] = v
	}
	return out
}
