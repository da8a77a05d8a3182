package world

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// Wanderer produces exploration waypoints that drift smoothly from one call
// to the next, so repeated explore actions trace a path instead of jittering
// around the same spot.
type Wanderer struct {
	heading  opensimplex.Noise
	distance opensimplex.Noise
	radius   float64
}

// NewWanderer creates a Wanderer with the given seed. Waypoints land at most
// radius blocks from the origin they are computed from.
func NewWanderer(seed int64, radius float64) *Wanderer {
	if radius <= 0 {
		radius = 20
	}
	return &Wanderer{
		heading:  opensimplex.NewNormalized(seed),
		distance: opensimplex.NewNormalized(seed + 1),
		radius:   radius,
	}
}

// Waypoint returns the target for the step-th explore action starting at
// from. The height is kept; pathfinding settles the actual Y.
func (w *Wanderer) Waypoint(from Vec3, step int) Vec3 {
	t := float64(step)
	angle := octaveNoise(w.heading, t, 0, 3, 0.15, 0.5) * 2 * math.Pi
	dist := w.radius * (0.5 + 0.5*octaveNoise(w.distance, t, 0, 2, 0.3, 0.5))
	return Vec3{
		X: math.Round(from.X + math.Cos(angle)*dist),
		Y: from.Y,
		Z: math.Round(from.Z + math.Sin(angle)*dist),
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
