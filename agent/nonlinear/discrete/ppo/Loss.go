package ppo

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goplace/network"
)

// clip returns lo + relu(x - lo) - relu(x - hi), which equals x
// clamped to [lo, hi] and has zero gradient outside of it.
func clip(x, lo, hi *G.Node) *G.Node {
	below := G.Must(G.Rectify(G.Must(G.Sub(x, lo))))
	above := G.Must(G.Rectify(G.Must(G.Sub(x, hi))))
	return G.Must(G.Sub(G.Must(G.Add(lo, below)), above))
}

// minimum returns the elementwise minimum a - relu(a - b)
func minimum(a, b *G.Node) *G.Node {
	return G.Must(G.Sub(a, G.Must(G.Rectify(G.Must(G.Sub(a, b))))))
}

// surrogate adds the clipped surrogate objective to the graph of
// logProb and returns its negation, the policy loss, together with
// the probability ratio.
//
//	L = -mean(min(r A, clip(r, 1-ε, 1+ε) A)),	r = exp(log π - log π_old)
func surrogate(logProb, oldLogProb, advantages *G.Node,
	epsilon float64) (loss, ratio *G.Node) {
	g := logProb.Graph()
	lo := G.NewScalar(g, tensor.Float64, G.WithName("clipLow"),
		G.WithValue(1-epsilon))
	hi := G.NewScalar(g, tensor.Float64, G.WithName("clipHigh"),
		G.WithValue(1+epsilon))

	ratio = G.Must(G.Exp(G.Must(G.Sub(logProb, oldLogProb))))
	unclipped := G.Must(G.HadamardProd(ratio, advantages))
	clipped := G.Must(G.HadamardProd(clip(ratio, lo, hi), advantages))

	loss = G.Must(G.Neg(G.Must(G.Mean(minimum(unclipped, clipped)))))
	return loss, ratio
}

// trainNet is a policy-value network over a whole rollout together
// with the PPO loss and its gradient
type trainNet struct {
	net    network.NeuralNet
	vm     G.VM
	scorer *policy.Scorer

	oldLogProbs *G.Node
	advantages  *G.Node
	returns     *G.Node

	loss, policyLoss, valueLoss, entropy, ratio G.Value
}

func newTrainNet(behaviour network.NeuralNet, batch int,
	c Config) (*trainNet, error) {
	net, err := behaviour.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("newtrainnet: %v", err)
	}
	g := net.Graph()

	scorer, err := policy.NewScorer(net.Prediction()[0])
	if err != nil {
		return nil, fmt.Errorf("newtrainnet: %v", err)
	}
	t := &trainNet{
		net:    net,
		scorer: scorer,
		oldLogProbs: G.NewVector(g, tensor.Float64, G.WithShape(batch),
			G.WithName("oldLogProbs"), G.WithInit(G.Zeroes())),
		advantages: G.NewVector(g, tensor.Float64, G.WithShape(batch),
			G.WithName("advantages"), G.WithInit(G.Zeroes())),
		returns: G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1),
			G.WithName("returns"), G.WithInit(G.Zeroes())),
	}

	policyLoss, ratio := surrogate(scorer.LogProb, t.oldLogProbs,
		t.advantages, c.ClipEpsilon)

	valueLoss := G.Must(G.Sub(net.Prediction()[1], t.returns))
	valueLoss = G.Must(G.Mean(G.Must(G.Square(valueLoss))))

	entropy := G.Must(G.Mean(scorer.Entropy))

	valueCoef := G.NewScalar(g, tensor.Float64, G.WithName("valueCoef"),
		G.WithValue(c.ValueCoef))
	entropyCoef := G.NewScalar(g, tensor.Float64, G.WithName("entropyCoef"),
		G.WithValue(c.EntropyCoef))
	loss := G.Must(G.Add(policyLoss, G.Must(G.Mul(valueCoef, valueLoss))))
	loss = G.Must(G.Sub(loss, G.Must(G.Mul(entropyCoef, entropy))))

	G.Read(loss, &t.loss)
	G.Read(policyLoss, &t.policyLoss)
	G.Read(valueLoss, &t.valueLoss)
	G.Read(entropy, &t.entropy)
	G.Read(ratio, &t.ratio)

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newtrainnet: could not compute gradient: %v",
			err)
	}
	t.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))
	return t, nil
}

// setBatch sets every input of the training graph
func (t *trainNet) setBatch(states []float64, available [][]int,
	actions []int, oldLogProbs, advantages, returns []float64) error {
	n := t.net.BatchSize()
	if err := t.net.SetInput(states); err != nil {
		return fmt.Errorf("setbatch: %v", err)
	}
	if err := t.scorer.SetBatch(available, actions); err != nil {
		return fmt.Errorf("setbatch: %v", err)
	}

	inputs := []struct {
		node  *G.Node
		shape []int
		data  []float64
	}{
		{t.oldLogProbs, []int{n}, oldLogProbs},
		{t.advantages, []int{n}, advantages},
		{t.returns, []int{n, 1}, returns},
	}
	for _, in := range inputs {
		value := tensor.New(tensor.WithShape(in.shape...),
			tensor.WithBacking(append([]float64(nil), in.data...)))
		if err := G.Let(in.node, value); err != nil {
			return fmt.Errorf("setbatch: could not set %v: %v",
				in.node.Name(), err)
		}
	}
	return nil
}

// clipFraction returns the fraction of ratios outside [1-ε, 1+ε] after
// the graph has been run
func (t *trainNet) clipFraction(epsilon float64) float64 {
	var ratios []float64
	switch data := t.ratio.Data().(type) {
	case []float64:
		ratios = data
	case float64:
		ratios = []float64{data}
	}
	clipped := 0
	for _, r := range ratios {
		if r < 1-epsilon || r > 1+epsilon {
			clipped++
		}
	}
	return float64(clipped) / float64(len(ratios))
}
