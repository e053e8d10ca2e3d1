package policy

import (
	"fmt"

	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goplace/network"
)

// Forward runs a forward-only network on input and returns a copy of
// each of its outputs. Failing to run the graph is a programming error
// and panics.
func Forward(net network.NeuralNet, vm G.VM, input []float64) [][]float64 {
	if err := net.SetInput(append([]float64(nil), input...)); err != nil {
		panic(fmt.Sprintf("forward: could not set input: %v", err))
	}
	if err := vm.RunAll(); err != nil {
		panic(fmt.Sprintf("forward: could not run network: %v", err))
	}
	defer vm.Reset()

	outputs := make([][]float64, len(net.Output()))
	for i, out := range net.Output() {
		outputs[i] = append([]float64(nil), out.Data().([]float64)...)
	}
	return outputs
}
