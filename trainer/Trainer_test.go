package trainer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/checkpoint"
	"github.com/samuelfneumann/goplace/circuit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTrainer(t *testing.T) *Trainer {
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := checkpoint.NewManager(store, checkpoint.WithLogger(quiet))
	return New(m, WithLogger(quiet))
}

// problem has one macro and three standard cells connected by a
// single net on a 100x100 chip
func problem() Problem {
	cells := []circuit.Cell{
		{ID: "c0", Name: "macro", Width: 20, Height: 20,
			Type: circuit.Macro, Pins: []circuit.Pin{{ID: "p0"}}},
		{ID: "c1", Name: "std1", Width: 10, Height: 10,
			Type: circuit.Standard, Pins: []circuit.Pin{{ID: "p0"}}},
		{ID: "c2", Name: "std2", Width: 10, Height: 10,
			Type: circuit.Standard, Pins: []circuit.Pin{{ID: "p0"}}},
		{ID: "c3", Name: "std3", Width: 10, Height: 10,
			Type: circuit.Standard, Pins: []circuit.Pin{{ID: "p0"}}},
	}
	nets := []circuit.Net{{ID: "n0", Name: "net0", Weight: 1.0,
		Pins: []string{"c0_0", "c1_0", "c2_0", "c3_0"}}}
	return Problem{Cells: cells, Nets: nets, ChipWidth: 100,
		ChipHeight: 100}
}

func request(alg Algorithm, episodes int) Request {
	req := DefaultRequest()
	req.Algorithm = string(alg)
	req.Problem = problem()
	req.Episodes = episodes
	req.BatchSize = 2
	req.Seed = 1
	return req
}

func TestTrainDQNEndToEnd(t *testing.T) {
	tr := newTrainer(t)

	var calls []int
	progress := func(episode, episodes int, _ float64) {
		assert.Equal(t, 5, episodes)
		calls = append(calls, episode)
	}

	result, err := tr.Train(context.Background(), request(DQN, 5), progress)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, result.EpisodeRewards, 5)
	assert.Len(t, result.Convergence, 5)
	assert.Equal(t, []float64{4, 4, 4, 4, 4}, result.EpisodeLengths)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)
	assert.InDelta(t, result.TotalReward, sumOf(result.EpisodeRewards), 1e-9)
	assert.Equal(t, 5*4+4, result.Steps)
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.ModelPath)

	require.Len(t, result.Cells, 4)
	for _, cell := range result.Cells {
		assert.True(t, cell.Placed())
	}

	snap, ok, err := tr.Manager().Load("dqn_latest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, snap.Episode)
	assert.Equal(t, string(agent.DeepQ), snap.Algorithm)
	assert.InDelta(t, result.TotalReward, snap.Reward, 1e-9)
	assert.Equal(t, result.RunID, snap.Metadata["run_id"])
}

func TestTrainAllAlgorithms(t *testing.T) {
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			tr := newTrainer(t)
			result, err := tr.Train(context.Background(), request(alg, 2), nil)
			require.NoError(t, err)
			assert.Len(t, result.EpisodeRewards, 2)

			_, ok, err := tr.Manager().Load(alg.Checkpoint())
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestTrainIntermediateCheckpoints(t *testing.T) {
	tr := newTrainer(t)
	req := request(PolicyGradient, 4)
	req.CheckpointEvery = 2

	_, err := tr.Train(context.Background(), req, nil)
	require.NoError(t, err)

	for _, name := range []string{"pg_ep2", "pg_ep4", "pg_latest"} {
		_, ok, err := tr.Manager().Load(name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	latest, ok, err := tr.Manager().Latest("pg_ep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pg_ep4", latest.Name)
}

func TestTrainPretrained(t *testing.T) {
	tr := newTrainer(t)
	req := request(ActorCritic, 1)
	req.UsePretrained = true

	// No checkpoint yet: training starts fresh
	_, err := tr.Train(context.Background(), req, nil)
	require.NoError(t, err)

	// Now the checkpoint exists and is resumed
	_, err = tr.Train(context.Background(), req, nil)
	require.NoError(t, err)
}

func TestTrainPretrainedMismatch(t *testing.T) {
	tr := newTrainer(t)

	// Save a PPO model under the DQN checkpoint name
	state := agent.NewStateDict(agent.PPO, 101, 100)
	_, err := tr.Manager().Save(DQN.Checkpoint(), &checkpoint.Snapshot{
		Algorithm: string(agent.PPO),
		State:     state,
	}, nil)
	require.NoError(t, err)

	req := request(DQN, 1)
	req.UsePretrained = true
	_, err = tr.Train(context.Background(), req, nil)
	assert.ErrorIs(t, err, agent.ErrDimensionMismatch)
	assert.False(t, IsClientError(err))
}

func TestTrainInvalidRequests(t *testing.T) {
	tr := newTrainer(t)

	req := request("a3c", 1)
	_, err := tr.Train(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.True(t, IsClientError(err))

	req = request(DQN, 1)
	req.ChipWidth = 0
	_, err = tr.Train(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = request(DQN, 0)
	_, err = tr.Train(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = request(DQN, 1)
	req.Nets[0].Pins = append(req.Nets[0].Pins, "missing_0")
	_, err = tr.Train(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTrainCancelled(t *testing.T) {
	tr := newTrainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Train(ctx, request(DQN, 3), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInfer(t *testing.T) {
	tr := newTrainer(t)
	trained, err := tr.Train(context.Background(), request(DuelingDQN, 2), nil)
	require.NoError(t, err)

	req := InferenceRequest{
		Algorithm: "dueling_dqn",
		ModelPath: "dueling_dqn_latest",
		Problem:   problem(),
	}
	result, err := tr.Infer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Steps)
	assert.Equal(t, string(agent.DuelingDeepQ), result.Algorithm)
	for _, cell := range result.Cells {
		assert.True(t, cell.Placed())
	}

	// Greedy placement is deterministic, and matches the placement
	// reported by training
	again, err := tr.Infer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, result.Cells, again.Cells)
	assert.Equal(t, trained.Cells, result.Cells)

	// The location returned by training also resolves
	req.ModelPath = trained.ModelPath
	_, err = tr.Infer(context.Background(), req)
	assert.NoError(t, err)
}

func TestInferErrors(t *testing.T) {
	tr := newTrainer(t)

	req := InferenceRequest{ModelPath: "ppo_latest", Problem: problem()}
	_, err := tr.Infer(context.Background(), req)
	assert.ErrorIs(t, err, ErrModelNotFound)

	// A location that does not exist is a missing model
	_, err = tr.Infer(context.Background(), InferenceRequest{
		ModelPath: "dqn_latest.ckpt", Problem: problem(),
	})
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = tr.Train(context.Background(), request(PPO, 1), nil)
	require.NoError(t, err)

	req.Algorithm = "dqn"
	_, err = tr.Infer(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req.Algorithm = "nope"
	_, err = tr.Infer(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestTrainGNN(t *testing.T) {
	tr := newTrainer(t)
	req := DefaultGNNRequest()
	req.Problem = problem()
	req.Problem.Cells[0].Position = &circuit.Point{X: 0, Y: 0}
	req.Epochs = 5
	req.HiddenDim = 8
	req.NumLayers = 2

	result, err := tr.TrainGNN(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Losses, 5)
	assert.NotEmpty(t, result.ModelPath)
	require.Len(t, result.Cells, 4)
	for _, cell := range result.Cells {
		assert.True(t, cell.Placed())
	}

	snap, ok, err := tr.Manager().Load(GNNCheckpoint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, snap.Epoch)
	assert.Equal(t, agent.GNN, snap.State.Type)

	// Graph models cannot drive the placement environment
	_, err = tr.Infer(context.Background(), InferenceRequest{
		ModelPath: GNNCheckpoint, Problem: problem(),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrUnknownAlgorithm)
	assert.Contains(t, err.Error(), "graph placement model")
}

func TestTrainGNNInvalid(t *testing.T) {
	tr := newTrainer(t)
	req := DefaultGNNRequest()
	req.Problem = problem()
	req.HiddenDim = 0
	_, err := tr.TrainGNN(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseAlgorithm(t *testing.T) {
	for _, name := range []string{"DQN", "policy_gradient", " ppo ",
		"Actor-Critic"} {
		_, err := ParseAlgorithm(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseAlgorithm("sarsa")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	assert.Equal(t, "pg_latest", PolicyGradient.Checkpoint())
	assert.Equal(t, agent.VanillaAC, ActorCritic.Type())
}

func sumOf(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}
