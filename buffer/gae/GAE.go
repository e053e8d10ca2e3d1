// Package gae implements the advantage and return estimators used by
// the policy-based agents: discounted Monte-Carlo returns, one-step TD
// advantages, and generalized advantage estimates GAE(λ) following
// https://arxiv.org/abs/1506.02438.
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Epsilon is added to the standard deviation when standardizing
const Epsilon = 1e-8

// DiscountedReturns computes G_t = r_t + γ G_{t+1} backward through an
// episode, with G_T = 0 after the last reward.
func DiscountedReturns(rewards []float64, gamma float64) []float64 {
	return discountCumSum(rewards, nil, gamma)
}

// EpisodicReturns computes discounted returns over a trajectory that
// may span several episodes. The return is reset after each step for
// which dones is true.
func EpisodicReturns(rewards []float64, dones []bool,
	gamma float64) ([]float64, error) {
	if len(rewards) != len(dones) {
		return nil, fmt.Errorf("episodicreturns: %d rewards but %d dones",
			len(rewards), len(dones))
	}
	return discountCumSum(rewards, dones, gamma), nil
}

// TDAdvantages computes one-step TD advantages
//
//	δ_t = r_t + γ V(s_{t+1}) (1 - done_t) - V(s_t)
//
// with a bootstrap value of 0 after the last step.
func TDAdvantages(rewards, values []float64, dones []bool,
	gamma float64) ([]float64, error) {
	if err := checkLengths(rewards, values, dones); err != nil {
		return nil, fmt.Errorf("tdadvantages: %v", err)
	}
	return deltas(rewards, values, dones, gamma), nil
}

// Advantages computes GAE(λ) advantages and the corresponding returns
// A_t + V(s_t) over a rollout that may span several episodes:
//
//	A_t = δ_t + γλ (1 - done_t) A_{t+1}
//
// A bootstrap value of 0 is used after the last step. With λ = 0 the
// advantages are the one-step TD advantages, and with λ = 1 they are
// Monte-Carlo returns minus the value baseline.
func Advantages(rewards, values []float64, dones []bool, gamma,
	lambda float64) (advantages, returns []float64, err error) {
	if err := checkLengths(rewards, values, dones); err != nil {
		return nil, nil, fmt.Errorf("advantages: %v", err)
	}

	advantages = discountCumSum(deltas(rewards, values, dones, gamma), dones,
		gamma*lambda)

	returns = make([]float64, len(advantages))
	floats.AddTo(returns, advantages, values)
	return advantages, returns, nil
}

// Standardize returns (x - mean(x)) / (std(x) + Epsilon) using the
// unbiased standard deviation. Fewer than two values standardize to
// zeros.
func Standardize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 {
		return out
	}
	mean := stat.Mean(x, nil)
	std := stat.StdDev(x, nil) + Epsilon

	copy(out, x)
	floats.AddConst(-mean, out)
	floats.Scale(1/std, out)
	return out
}

func checkLengths(rewards, values []float64, dones []bool) error {
	if len(rewards) != len(values) || len(rewards) != len(dones) {
		return fmt.Errorf("mismatched lengths: %d rewards, %d values, "+
			"%d dones", len(rewards), len(values), len(dones))
	}
	return nil
}

func deltas(rewards, values []float64, dones []bool,
	gamma float64) []float64 {
	d := make([]float64, len(rewards))
	for t := range rewards {
		next := 0.0
		if t+1 < len(values) && !dones[t] {
			next = values[t+1]
		}
		d[t] = rewards[t] + gamma*next - values[t]
	}
	return d
}

// discountCumSum computes the discounted cumulative sum of x backward:
//
//	y_t = x_t + discount (1 - done_t) y_{t+1}
//
// A nil dones never resets the sum.
func discountCumSum(x []float64, dones []bool, discount float64) []float64 {
	cumSums := make([]float64, len(x))
	running := 0.0
	for t := len(x) - 1; t >= 0; t-- {
		if dones != nil && dones[t] {
			running = 0
		}
		running = x[t] + discount*running
		cumSums[t] = running
	}
	return cumSums
}
