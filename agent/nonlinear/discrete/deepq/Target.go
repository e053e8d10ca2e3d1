package deepq

import (
	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/utils/floatutils"
)

// targetRule computes the bootstrap value of each next state in a
// batch given the row-major target network and online network action
// values of those states.
type targetRule func(target, online []float64, actions int) []float64

func ruleFor(variant agent.Type) targetRule {
	if variant == agent.DoubleDeepQ {
		return doubleTarget
	}
	return maxTarget
}

// maxTarget evaluates next states with max_a Q'(s', a)
func maxTarget(target, _ []float64, actions int) []float64 {
	next := make([]float64, len(target)/actions)
	for i := range next {
		next[i], _ = floatutils.MaxSlice(target[i*actions : (i+1)*actions])
	}
	return next
}

// doubleTarget evaluates next states with Q'(s', argmax_a Q(s', a)) so
// that action selection and action evaluation use different networks.
func doubleTarget(target, online []float64, actions int) []float64 {
	next := make([]float64, len(target)/actions)
	for i := range next {
		_, best := floatutils.MaxSlice(online[i*actions : (i+1)*actions])
		next[i] = target[i*actions+best[0]]
	}
	return next
}
