// Package policy implements action selection over a discrete action
// space in which only some actions are legal: masked categorical
// (softmax) policies, greedy and ε-greedy selection over action
// values, and the computational graph pieces that score masked
// categorical policies during training.
package policy

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/goplace/utils/floatutils"
)

// MaskPenalty is added to the logits of illegal actions. It drives
// their probability to exactly zero without producing infinities.
const MaskPenalty = -1e9

// Mask returns a vector of n values that is 1 at each available action
// and 0 elsewhere.
func Mask(available []int, n int) []float64 {
	mask := make([]float64, n)
	for _, a := range available {
		mask[a] = 1
	}
	return mask
}

// Penalty returns a vector of n values that is 0 at each available
// action and MaskPenalty elsewhere.
func Penalty(available []int, n int) []float64 {
	penalty := make([]float64, n)
	floats.AddConst(MaskPenalty, penalty)
	for _, a := range available {
		penalty[a] = 0
	}
	return penalty
}

// OneHot returns a vector of n values that is 1 at action and 0
// elsewhere.
func OneHot(action, n int) []float64 {
	v := make([]float64, n)
	v[action] = 1
	return v
}

// Probabilities returns the softmax distribution over logits after
// removing all mass from unavailable actions and renormalizing, so
// that the result sums to 1 over available.
func Probabilities(logits []float64, available []int) []float64 {
	max := math.Inf(-1)
	for _, a := range available {
		max = math.Max(max, logits[a])
	}

	probs := make([]float64, len(logits))
	for _, a := range available {
		probs[a] = math.Exp(logits[a] - max)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}

// LogProb returns the log probability of action under the masked
// distribution given by logits and available.
func LogProb(logits []float64, available []int, action int) float64 {
	max := math.Inf(-1)
	for _, a := range available {
		max = math.Max(max, logits[a])
	}
	sum := 0.0
	for _, a := range available {
		sum += math.Exp(logits[a] - max)
	}
	return logits[action] - max - math.Log(sum)
}

// Entropy returns the entropy of a probability vector
func Entropy(probs []float64) float64 {
	h := 0.0
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// Sample samples an action from the probability vector probs
func Sample(probs []float64, src rand.Source) int {
	return int(distuv.NewCategorical(probs, src).Rand())
}

// Greedy returns the available action of largest value. Ties are
// broken towards the lowest action index so that greedy selection is
// deterministic.
func Greedy(values []float64, available []int) int {
	legal := make([]float64, len(available))
	for i, a := range available {
		legal[i] = values[a]
	}
	_, maxIndices := floatutils.MaxSlice(legal)

	action := available[maxIndices[0]]
	for _, i := range maxIndices[1:] {
		if available[i] < action {
			action = available[i]
		}
	}
	return action
}

// EGreedy selects actions ε-greedily with respect to action values
type EGreedy struct {
	Epsilon float64
	rng     *rand.Rand
}

// NewEGreedy returns a new ε-greedy selector
func NewEGreedy(epsilon float64, seed uint64) *EGreedy {
	return &EGreedy{
		Epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Explore reports whether the next selection should be uniformly
// random. It never explores outside of training.
func (e *EGreedy) Explore(training bool) bool {
	return training && e.rng.Float64() < e.Epsilon
}

// Random returns a uniformly random available action
func (e *EGreedy) Random(available []int) int {
	return available[e.rng.Intn(len(available))]
}
