// Package encoder turns a world.Situation into the fixed-length numeric
// vector the learned policy consumes.
package encoder

import (
	"math"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

// Config controls normalization. Every constant the encoder divides by
// comes from here.
type Config struct {
	StateSize    int                        `yaml:"state_size"`
	ResourceCaps map[world.Resource]float64 `yaml:"resource_caps"`
	WorldScale   world.Vec3                 `yaml:"world_scale"`
	MaxHealth    float64                    `yaml:"max_health"`
}

// Range is the closed interval a vector component is guaranteed to lie in.
type Range struct {
	Lo, Hi float64
}

// Encoder is a pure function object; it holds no per-call state and is safe
// for concurrent use.
type Encoder struct {
	cfg        Config
	budget     time.Duration
	phaseCount int
	ranges     []Range
}

// New builds an Encoder. budget is the run's wall-clock budget and
// phaseCount the number of planner phases.
func New(cfg Config, budget time.Duration, phaseCount int) *Encoder {
	e := &Encoder{cfg: cfg, budget: budget, phaseCount: phaseCount}

	var layout []Range
	for range world.Resources {
		layout = append(layout, Range{0, 1})
	}
	for range world.Objectives {
		layout = append(layout, Range{0, 1})
	}
	layout = append(layout, Range{0, 1}, Range{0, 1}) // elapsed, phase
	layout = append(layout, Range{-1, 1}, Range{-1, 1}, Range{-1, 1})
	layout = append(layout, Range{0, 1}) // health

	e.ranges = make([]Range, cfg.StateSize)
	copy(e.ranges, layout)
	return e
}

// Size returns N, the length of every encoded vector.
func (e *Encoder) Size() int { return e.cfg.StateSize }

// Ranges returns the documented range of each component. Padding slots are
// always exactly zero.
func (e *Encoder) Ranges() []Range {
	out := make([]Range, len(e.ranges))
	copy(out, e.ranges)
	return out
}

// Encode maps s onto a vector of exactly Size() components. Unknown or
// missing inputs encode as zero. Components past Size() are dropped.
func (e *Encoder) Encode(s world.Situation) []float64 {
	v := make([]float64, e.cfg.StateSize)
	i := 0
	put := func(x float64) {
		if i < len(v) {
			v[i] = x
		}
		i++
	}

	for _, r := range world.Resources {
		put(clamp(ratio(float64(s.Count(r)), e.cfg.ResourceCaps[r]), 0, 1))
	}
	for _, o := range world.Objectives {
		if s.Achieved(o) {
			put(1)
		} else {
			put(0)
		}
	}

	put(clamp(ratio(float64(s.Elapsed()), float64(e.budget)), 0, 1))
	put(clamp(ratio(float64(s.PhaseIndex()), float64(e.phaseCount)), 0, 1))

	pos := s.Position()
	put(clamp(ratio(pos.X, e.cfg.WorldScale.X), -1, 1))
	put(clamp(ratio(pos.Y, e.cfg.WorldScale.Y), -1, 1))
	put(clamp(ratio(pos.Z, e.cfg.WorldScale.Z), -1, 1))

	put(clamp(ratio(s.Health(), e.cfg.MaxHealth), 0, 1))
	return v
}

// ratio returns x/d, or 0 when d is not a usable divisor.
func ratio(x, d float64) float64 {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return x / d
}

func clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < lo:
		return lo
	case x > hi:
		return hi
	}
	return x
}
