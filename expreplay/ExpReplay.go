// Package expreplay implements a bounded experience replay buffer for
// off-policy, value-based agents.
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"

	ts "github.com/samuelfneumann/goplace/timestep"
)

// Batch is a minibatch of transitions. States and NextStates are
// stored in row-major order with one row per transition so that they
// can be fed directly to a network's input node.
type Batch struct {
	States     []float64
	Actions    []int
	Rewards    []float64
	NextStates []float64
	Dones      []float64 // 1.0 if the transition ended an episode
}

// Len returns the number of transitions in the Batch
func (b Batch) Len() int {
	return len(b.Actions)
}

// Buffer is a fixed capacity FIFO replay buffer. Once full, adding a
// transition evicts the oldest one. Minibatches are sampled uniformly
// at random without replacement.
type Buffer struct {
	capacity int
	features int

	// Ring storage: transitions[(start + i) % capacity] is the i-th
	// oldest transition for i < size
	transitions []ts.Transition
	start       int
	size        int

	rng *rand.Rand
}

// New returns a new Buffer holding at most capacity transitions whose
// states have features values.
func New(capacity, features int, seed uint64) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be positive")
	}
	if features < 1 {
		return nil, fmt.Errorf("new: features must be positive")
	}
	return &Buffer{
		capacity:    capacity,
		features:    features,
		transitions: make([]ts.Transition, 0, capacity),
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Add adds a transition to the buffer, evicting the oldest transition
// if the buffer is at capacity. The state vectors are copied.
func (b *Buffer) Add(t ts.Transition) error {
	if len(t.State) != b.features || len(t.NextState) != b.features {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("illegal state length\n\twant(%d)\n\thave(%d, %d)",
				b.features, len(t.State), len(t.NextState)),
		}
	}
	t.State = append([]float64(nil), t.State...)
	t.NextState = append([]float64(nil), t.NextState...)

	if b.size < b.capacity {
		b.transitions = append(b.transitions, t)
		b.size++
		return nil
	}

	b.transitions[b.start] = t
	b.start = (b.start + 1) % b.capacity
	return nil
}

// At returns the i-th oldest transition in the buffer
func (b *Buffer) At(i int) ts.Transition {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("at: index %d out of range [0, %d)", i, b.size))
	}
	return b.transitions[(b.start+i)%b.capacity]
}

// Sample returns batchSize transitions sampled uniformly at random
// without replacement. If the buffer holds fewer than batchSize
// transitions, an error satisfying IsEmptyBuffer or
// IsInsufficientSamples is returned.
func (b *Buffer) Sample(batchSize int) (Batch, error) {
	if b.size == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if batchSize < 1 || b.size < batchSize {
		return Batch{}, &ExpReplayError{Op: "sample",
			Err: errInsufficientSamples}
	}

	batch := Batch{
		States:     make([]float64, 0, batchSize*b.features),
		Actions:    make([]int, 0, batchSize),
		Rewards:    make([]float64, 0, batchSize),
		NextStates: make([]float64, 0, batchSize*b.features),
		Dones:      make([]float64, 0, batchSize),
	}
	for _, i := range b.indices(batchSize) {
		t := b.transitions[i]
		batch.States = append(batch.States, t.State...)
		batch.Actions = append(batch.Actions, t.Action)
		batch.Rewards = append(batch.Rewards, t.Reward)
		batch.NextStates = append(batch.NextStates, t.NextState...)
		done := 0.0
		if t.Done {
			done = 1.0
		}
		batch.Dones = append(batch.Dones, done)
	}
	return batch, nil
}

// indices returns n distinct indices into the buffer, drawn uniformly
// at random. It runs the first n swaps of a Fisher-Yates shuffle of
// [0, size), keeping only the swapped positions, so the cost does not
// grow with the size of the buffer.
func (b *Buffer) indices(n int) []int {
	swapped := make(map[int]int, n)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]int, n)
	for i := 0; i < n; i++ {
		j := i + b.rng.Intn(b.size-i)
		out[i] = at(j)
		swapped[j] = at(i)
	}
	return out
}

// Len returns the number of transitions in the buffer
func (b *Buffer) Len() int {
	return b.size
}

// Capacity returns the maximum number of transitions in the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Clear removes all transitions from the buffer
func (b *Buffer) Clear() {
	b.transitions = b.transitions[:0]
	b.start = 0
	b.size = 0
}
