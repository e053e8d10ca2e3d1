package deepq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/network"
)

const (
	stateSize  = 4
	actionSize = 6
)

var variants = []agent.Type{agent.DeepQ, agent.DoubleDeepQ,
	agent.DuelingDeepQ}

func smallConfig(variant agent.Type) Config {
	c := DefaultConfig(variant, stateSize, actionSize)
	c.PolicyLayers = []int{8}
	c.Biases = []bool{true}
	c.Activations = network.ReLUs(1)
	c.StreamLayers = []int{4}
	c.Capacity = 50
	c.BatchSize = 4
	return c
}

func newAgent(t *testing.T, c Config, seed uint64) *DeepQ {
	t.Helper()
	d, err := New(c, seed)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func randomState(rng *rand.Rand) []float64 {
	state := make([]float64, stateSize)
	for i := range state {
		state[i] = rng.Float64()
	}
	return state
}

// play runs steps training decisions, each followed by its reward. Every
// fifth step ends an episode.
func play(t *testing.T, d *DeepQ, steps int, rng *rand.Rand) {
	t.Helper()
	for i := 0; i < steps; i++ {
		_, err := d.SelectAction(randomState(rng), []int{0, 2, 3, 5}, true)
		require.NoError(t, err)
		require.NoError(t, d.StoreReward(rng.Float64()-0.5, i%5 == 4))
	}
}

func TestSelectActionIsAvailable(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, variant := range variants {
		t.Run(string(variant), func(t *testing.T) {
			c := smallConfig(variant)
			c.Epsilon = 0.5
			d := newAgent(t, c, 3)

			for i := 0; i < 50; i++ {
				available := rng.Perm(actionSize)[:1+rng.Intn(actionSize)]
				training := i%2 == 0
				action, err := d.SelectAction(randomState(rng), available,
					training)
				require.NoError(t, err)
				assert.Contains(t, available, action)
				if training {
					require.NoError(t, d.StoreReward(0, false))
				}
			}
		})
	}
}

func TestSelectActionErrors(t *testing.T) {
	d := newAgent(t, smallConfig(agent.DeepQ), 1)

	_, err := d.SelectAction(make([]float64, stateSize), nil, true)
	assert.True(t, errors.Is(err, agent.ErrNoAvailableActions))

	_, err = d.SelectAction(make([]float64, stateSize+1), []int{0}, true)
	assert.True(t, errors.Is(err, agent.ErrDimensionMismatch))

	_, err = d.SelectAction(make([]float64, stateSize), []int{actionSize},
		true)
	assert.True(t, errors.Is(err, agent.ErrDimensionMismatch))

	assert.Error(t, d.StoreReward(1, false), "reward without an action")

	_, err = d.SelectAction(make([]float64, stateSize), []int{0}, true)
	require.NoError(t, err)
	_, err = d.SelectAction(make([]float64, stateSize), []int{0}, true)
	assert.Error(t, err, "previous action was never rewarded")
}

func TestGreedySelectionIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := newAgent(t, smallConfig(agent.DuelingDeepQ), 4)

	state := randomState(rng)
	first, err := d.SelectAction(state, []int{1, 2, 4}, false)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		action, err := d.SelectAction(state, []int{1, 2, 4}, false)
		require.NoError(t, err)
		assert.Equal(t, first, action)
	}
}

func TestTrainStepWithInsufficientData(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, variant := range variants {
		t.Run(string(variant), func(t *testing.T) {
			d := newAgent(t, smallConfig(variant), 1)
			play(t, d, 2, rng)

			before, err := d.StateDict()
			require.NoError(t, err)

			losses, err := d.TrainStep()
			require.NoError(t, err)
			assert.True(t, losses.IsZero())

			after, err := d.StateDict()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestTrainStepUpdatesParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	for _, variant := range variants {
		t.Run(string(variant), func(t *testing.T) {
			d := newAgent(t, smallConfig(variant), 2)
			play(t, d, 10, rng)

			before, err := d.StateDict()
			require.NoError(t, err)

			losses, err := d.TrainStep()
			require.NoError(t, err)
			assert.False(t, losses.IsZero())
			assert.GreaterOrEqual(t, losses.Loss, 0.0)

			after, err := d.StateDict()
			require.NoError(t, err)
			assert.NotEqual(t, before.Params["q"], after.Params["q"])
			assert.Equal(t, 1.0, after.Scalars["gradient_steps"])
		})
	}
}

func TestEpsilonDecaysToFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := smallConfig(agent.DeepQ)
	c.Epsilon = 1.0
	c.EpsilonDecay = 0.5
	c.EpsilonMin = 0.1
	d := newAgent(t, c, 1)
	play(t, d, 10, rng)

	want := []float64{0.5, 0.25, 0.125, 0.1, 0.1}
	for _, eps := range want {
		_, err := d.TrainStep()
		require.NoError(t, err)
		assert.InDelta(t, eps, d.Epsilon(), 1e-12)
	}
}

func TestTargetNetworkSync(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	c := smallConfig(agent.DeepQ)
	c.TargetUpdateInterval = 2
	d := newAgent(t, c, 1)
	play(t, d, 10, rng)

	_, err := d.TrainStep()
	require.NoError(t, err)
	s, err := d.StateDict()
	require.NoError(t, err)
	assert.NotEqual(t, s.Params["q"], s.Params["target"])

	_, err = d.TrainStep()
	require.NoError(t, err)
	s, err = d.StateDict()
	require.NoError(t, err)
	assert.Equal(t, s.Params["q"], s.Params["target"])
}

func TestStateDictRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for _, variant := range variants {
		t.Run(string(variant), func(t *testing.T) {
			c := smallConfig(variant)
			trained := newAgent(t, c, 1)
			play(t, trained, 10, rng)
			for i := 0; i < 3; i++ {
				_, err := trained.TrainStep()
				require.NoError(t, err)
			}
			s, err := trained.StateDict()
			require.NoError(t, err)

			loaded := newAgent(t, c, 99)
			require.NoError(t, loaded.LoadStateDict(s))

			reloaded, err := loaded.StateDict()
			require.NoError(t, err)
			assert.Equal(t, s, reloaded)

			for i := 0; i < 20; i++ {
				state := randomState(rng)
				available := []int{0, 1, 2, 3, 4, 5}
				want, err := trained.SelectAction(state, available, false)
				require.NoError(t, err)
				got, err := loaded.SelectAction(state, available, false)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestLoadStateDictMismatch(t *testing.T) {
	d := newAgent(t, smallConfig(agent.DeepQ), 1)

	other := smallConfig(agent.DeepQ)
	other.StateSize = stateSize + 1
	o := newAgent(t, other, 1)
	s, err := o.StateDict()
	require.NoError(t, err)
	assert.True(t, errors.Is(d.LoadStateDict(s), agent.ErrDimensionMismatch))

	double := newAgent(t, smallConfig(agent.DoubleDeepQ), 1)
	s, err = double.StateDict()
	require.NoError(t, err)
	assert.True(t, errors.Is(d.LoadStateDict(s), agent.ErrDimensionMismatch))
}

func TestConfigValidate(t *testing.T) {
	c := smallConfig(agent.DeepQ)
	require.NoError(t, c.Validate())

	c.Variant = agent.PPO
	assert.Error(t, c.Validate())

	c = smallConfig(agent.DeepQ)
	c.Capacity = c.BatchSize - 1
	assert.Error(t, c.Validate())

	c = smallConfig(agent.DeepQ)
	c.Activations = nil
	assert.Error(t, c.Validate())
}

func TestTargetRules(t *testing.T) {
	target := []float64{1, 5, 2, 3, 0, 4}
	online := []float64{3, 0, 1, 0, 9, 1}

	assert.Equal(t, []float64{5, 4}, maxTarget(target, nil, 3))
	assert.Equal(t, []float64{1, 0}, doubleTarget(target, online, 3))
}

func TestTypedConfigJSON(t *testing.T) {
	c := smallConfig(agent.DuelingDeepQ)
	data, err := json.Marshal(agent.NewTypedConfig(c))
	require.NoError(t, err)

	var decoded agent.TypedConfig
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, agent.DuelingDeepQ, decoded.Type)

	a, err := decoded.CreateAgent(1)
	require.NoError(t, err)
	defer a.Close()

	s, err := a.StateDict()
	require.NoError(t, err)
	d := newAgent(t, c, 2)
	require.NoError(t, d.LoadStateDict(s))
}
