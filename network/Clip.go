package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// ClipGradNorm rescales the gradients of model in place so that their
// global L2 norm is at most maxNorm. It must be called after the
// backward pass has been run and before the solver steps. The norm
// before clipping is returned. A non-positive maxNorm disables
// clipping.
func ClipGradNorm(model []G.ValueGrad, maxNorm float64) (float64, error) {
	grads := make([][]float64, 0, len(model))
	var sumSq float64
	for i, vg := range model {
		grad, err := vg.Grad()
		if err != nil {
			return 0, fmt.Errorf("clipgradnorm: could not get gradient "+
				"%d: %v", i, err)
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return 0, fmt.Errorf("clipgradnorm: gradient %d is not a "+
				"float64 tensor", i)
		}
		sumSq += floats.Dot(data, data)
		grads = append(grads, data)
	}

	norm := math.Sqrt(sumSq)
	if maxNorm > 0 && norm > maxNorm {
		scale := maxNorm / (norm + 1e-6)
		for _, g := range grads {
			floats.Scale(scale, g)
		}
	}
	return norm, nil
}
