// Package replay implements the fixed-capacity experience store the learner
// trains from.
package replay

import (
	"errors"
	"math/rand"
)

// ErrNotReady is returned by Sample when fewer transitions are stored than
// were asked for.
var ErrNotReady = errors.New("replay buffer holds fewer transitions than requested")

// Transition is one observed step. Action is an index into the learner's
// action space.
type Transition struct {
	State    []float64
	Action   int
	Reward   float64
	Next     []float64
	Terminal bool
}

// Buffer is a ring of transitions. Once full, each Append overwrites the
// oldest entry. Not safe for concurrent use.
type Buffer struct {
	items []Transition
	next  int // slot the next Append writes
	size  int
	rng   *rand.Rand
}

// New creates a Buffer holding at most capacity transitions.
func New(capacity int, rng *rand.Rand) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		items: make([]Transition, capacity),
		rng:   rng,
	}
}

// Append stores t, evicting the oldest transition when full. The vectors are
// copied so callers may reuse their slices.
func (b *Buffer) Append(t Transition) {
	t.State = append([]float64(nil), t.State...)
	t.Next = append([]float64(nil), t.Next...)

	b.items[b.next] = t
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Sample draws n transitions uniformly with replacement.
func (b *Buffer) Sample(n int) ([]Transition, error) {
	if n <= 0 || b.size < n {
		return nil, ErrNotReady
	}
	out := make([]Transition, n)
	for i := range out {
		out[i] = b.items[b.index(b.rng.Intn(b.size))]
	}
	return out, nil
}

// At returns the i-th oldest stored transition.
func (b *Buffer) At(i int) Transition {
	return b.items[b.index(i)]
}

// index maps an age-ordered position (0 = oldest) onto a slot.
func (b *Buffer) index(i int) int {
	oldest := 0
	if b.size == len(b.items) {
		oldest = b.next
	}
	return (oldest + i) % len(b.items)
}

func (b *Buffer) Len() int { return b.size }
func (b *Buffer) Cap() int { return len(b.items) }
