// Package floatutils provides utilities for working with floats
package floatutils

import (
	"gonum.org/v1/gonum/floats"
)

// MaxSlice gets the maximum value and indices of the maximum values in
// a slice of float64. Indices are in increasing order.
func MaxSlice(values []float64) (max float64, indices []int) {
	max = floats.Max(values)
	for i, value := range values {
		if value == max {
			indices = append(indices, i)
		}
	}

	// NaN never compares equal
	if len(indices) == 0 {
		return values[0], []int{0}
	}
	return
}
