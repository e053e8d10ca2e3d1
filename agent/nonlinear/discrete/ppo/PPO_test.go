package ppo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/network"
)

const (
	stateSize  = 3
	actionSize = 4
)

func smallConfig() Config {
	c := DefaultConfig(stateSize, actionSize)
	c.Layers = []int{8}
	c.Biases = []bool{true}
	c.Activations = network.ReLUs(1)
	return c
}

func newAgent(t *testing.T, c Config, seed uint64) *PPO {
	t.Helper()
	p, err := New(c, seed)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func randomState(rng *rand.Rand) []float64 {
	state := make([]float64, stateSize)
	for i := range state {
		state[i] = rng.NormFloat64()
	}
	return state
}

func playEpisode(t *testing.T, p *PPO, steps int, rng *rand.Rand) {
	t.Helper()
	for i := 0; i < steps; i++ {
		available := rng.Perm(actionSize)[:2+rng.Intn(actionSize-1)]
		action, err := p.SelectAction(randomState(rng), available, true)
		require.NoError(t, err)
		require.Contains(t, available, action)
		require.NoError(t, p.StoreReward(rng.Float64(), i == steps-1))
	}
}

// The clipped objective has zero gradient once the ratio has moved
// past the clip range in the direction favoured by the advantage.
func TestSurrogateGradientIsFlatOutsideClipRange(t *testing.T) {
	g := G.NewGraph()
	logProb := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName("logProb"), G.WithValue(tensor.New(
			tensor.WithShape(3),
			tensor.WithBacking([]float64{math.Log(1.5), 0, math.Log(0.5)}))))
	oldLogProb := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName("old"), G.WithInit(G.Zeroes()))
	advantages := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName("adv"), G.WithValue(tensor.New(tensor.WithShape(3),
			tensor.WithBacking([]float64{1, 1, -1}))))

	loss, _ := surrogate(logProb, oldLogProb, advantages, 0.2)
	var lossVal G.Value
	G.Read(loss, &lossVal)
	_, err := G.Grad(loss, logProb)
	require.NoError(t, err)

	vm := G.NewTapeMachine(g, G.BindDualValues(logProb))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	assert.InDelta(t, -(1.2+1.0-0.8)/3, lossVal.Data().(float64), 1e-9)

	grad, err := logProb.Grad()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, -1.0 / 3, 0},
		grad.Data().([]float64), 1e-9)
}

func TestTrainStepOnEmptyRollout(t *testing.T) {
	p := newAgent(t, smallConfig(), 1)
	before, err := p.StateDict()
	require.NoError(t, err)

	losses, err := p.TrainStep()
	require.NoError(t, err)
	assert.True(t, losses.IsZero())

	after, err := p.StateDict()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReadyToTrainAfterRolloutEpisodes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := smallConfig()
	c.RolloutEpisodes = 2
	p := newAgent(t, c, 1)

	playEpisode(t, p, 3, rng)
	assert.False(t, p.ReadyToTrain(true))
	assert.False(t, p.ReadyToTrain(false))

	playEpisode(t, p, 3, rng)
	assert.True(t, p.ReadyToTrain(true))
}

func TestTrainStepUpdatesAndClears(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p := newAgent(t, smallConfig(), 1)

	for _, steps := range []int{4, 4, 7} {
		playEpisode(t, p, steps, rng)
		before, err := p.StateDict()
		require.NoError(t, err)

		losses, err := p.TrainStep()
		require.NoError(t, err)
		assert.False(t, losses.IsZero())
		assert.GreaterOrEqual(t, losses.ValueLoss, 0.0)
		assert.Greater(t, losses.Entropy, 0.0)
		assert.GreaterOrEqual(t, losses.ClipFraction, 0.0)
		assert.LessOrEqual(t, losses.ClipFraction, 1.0)
		assert.Equal(t, 0, p.buffer.Len())

		after, err := p.StateDict()
		require.NoError(t, err)
		assert.NotEqual(t, before.Params["policy"], after.Params["policy"])
		assert.Equal(t, before.Optimizers["policy"].Steps+4,
			after.Optimizers["policy"].Steps, "one solver step per epoch")
	}
}

func TestStateDictRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	trained := newAgent(t, smallConfig(), 1)
	playEpisode(t, trained, 5, rng)
	_, err := trained.TrainStep()
	require.NoError(t, err)

	s, err := trained.StateDict()
	require.NoError(t, err)
	loaded := newAgent(t, smallConfig(), 5)
	require.NoError(t, loaded.LoadStateDict(s))

	for i := 0; i < 20; i++ {
		state := randomState(rng)
		want, err := trained.SelectAction(state, []int{0, 2, 3}, false)
		require.NoError(t, err)
		got, err := loaded.SelectAction(state, []int{0, 2, 3}, false)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	s.StateSize = 1
	assert.True(t, errors.Is(loaded.LoadStateDict(s),
		agent.ErrDimensionMismatch))
}
