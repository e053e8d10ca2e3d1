package policy

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Scorer adds to a computational graph the log probability and the
// entropy of a masked categorical policy for a batch of states. The
// Penalty and Actions input nodes must be set with SetBatch before the
// graph is run.
type Scorer struct {
	Penalty *G.Node // (batch, actions): 0 if legal, MaskPenalty if not
	Actions *G.Node // (batch, actions): one-hot selected actions

	LogProb *G.Node // (batch): log π(a|s)
	Entropy *G.Node // (batch): entropy of π(·|s)

	batch, actions int
}

// NewScorer adds a Scorer on top of a (batch, actions) logits node
func NewScorer(logits *G.Node) (*Scorer, error) {
	if !logits.IsMatrix() {
		return nil, fmt.Errorf("newscorer: logits must be a matrix")
	}
	g := logits.Graph()
	batch, actions := logits.Shape()[0], logits.Shape()[1]

	penalty := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actions),
		G.WithName("maskPenalty"), G.WithInit(G.Zeroes()))
	selected := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actions),
		G.WithName("selectedActions"), G.WithInit(G.Zeroes()))

	ones := make([]float64, actions)
	for i := range ones {
		ones[i] = 1
	}
	spread := G.NewMatrix(g, tensor.Float64, G.WithShape(1, actions),
		G.WithName("scorerSpread"), G.WithValue(tensor.New(
			tensor.WithShape(1, actions), tensor.WithBacking(ones))))

	// rowwise spreads a (batch) vector over the action dimension
	rowwise := func(v *G.Node) *G.Node {
		col := G.Must(G.Reshape(v, tensor.Shape{batch, 1}))
		return G.Must(G.Mul(col, spread))
	}

	// Log softmax over the legal actions, shifted by the row max for
	// stability
	masked := G.Must(G.Add(logits, penalty))
	shifted := G.Must(G.Sub(masked, rowwise(G.Must(G.Max(masked, 1)))))
	logSumExp := G.Must(G.Log(G.Must(G.Sum(G.Must(G.Exp(shifted)), 1))))
	logProbs := G.Must(G.Sub(shifted, rowwise(logSumExp)))

	logProb := G.Must(G.Sum(G.Must(G.HadamardProd(logProbs, selected)), 1))

	// Illegal actions have probability exactly 0 and a large but
	// finite log probability, so they contribute 0 to the entropy
	probs := G.Must(G.Exp(logProbs))
	entropy := G.Must(G.Neg(G.Must(G.Sum(
		G.Must(G.HadamardProd(probs, logProbs)), 1))))

	return &Scorer{
		Penalty: penalty,
		Actions: selected,
		LogProb: logProb,
		Entropy: entropy,
		batch:   batch,
		actions: actions,
	}, nil
}

// SetBatch sets the legal actions and selected actions of each row
func (s *Scorer) SetBatch(available [][]int, actions []int) error {
	if len(available) != s.batch || len(actions) != s.batch {
		return fmt.Errorf("setbatch: want %d rows, have %d legal action "+
			"sets and %d actions", s.batch, len(available), len(actions))
	}

	penalty := make([]float64, 0, s.batch*s.actions)
	selected := make([]float64, 0, s.batch*s.actions)
	for i := range actions {
		penalty = append(penalty, Penalty(available[i], s.actions)...)
		selected = append(selected, OneHot(actions[i], s.actions)...)
	}

	err := G.Let(s.Penalty, tensor.New(tensor.WithShape(s.batch, s.actions),
		tensor.WithBacking(penalty)))
	if err != nil {
		return fmt.Errorf("setbatch: could not set penalty: %v", err)
	}
	err = G.Let(s.Actions, tensor.New(tensor.WithShape(s.batch, s.actions),
		tensor.WithBacking(selected)))
	if err != nil {
		return fmt.Errorf("setbatch: could not set actions: %v", err)
	}
	return nil
}
