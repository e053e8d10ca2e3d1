package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/goplace/trainer"
)

const request = `
cells:
  - {id: c0, name: macro, width: 20, height: 20, type: macro, pins: [{id: p0}]}
  - {id: c1, name: std1, width: 10, height: 10, type: standard, pins: [{id: p0}]}
  - {id: c2, name: std2, width: 10, height: 10, type: standard, pins: [{id: p0}]}
nets:
  - {id: n0, name: net0, weight: 1, pins: [c0_0, c1_0, c2_0]}
chipWidth: 100
chipHeight: 100
batchSize: 2
`

func run(t *testing.T, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTrainAndManageModels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(request), 0o600))
	models := filepath.Join(dir, "models")

	out, err := run(t, "train", path, "--checkpoint-dir", models,
		"--log-level", "error", "-a", "actor_critic", "-n", "2")
	require.NoError(t, err)

	var result trainer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "actor-critic", result.Algorithm)
	assert.Len(t, result.EpisodeRewards, 2)

	out, err = run(t, "models", "list", "--checkpoint-dir", models)
	require.NoError(t, err)
	assert.Contains(t, out, "ac_latest")

	out, err = run(t, "models", "best", "--checkpoint-dir", models,
		"-m", "episodes")
	require.NoError(t, err)
	assert.Contains(t, out, "ac_latest\tepisodes=2")

	out, err = run(t, "models", "delete", "ac_latest",
		"--checkpoint-dir", models)
	require.NoError(t, err)
	assert.Equal(t, "deleted ac_latest\n", out)

	_, err = run(t, "models", "delete", "ac_latest",
		"--checkpoint-dir", models)
	assert.Error(t, err)
}

func TestTrainGNN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.yaml")
	data := request + "epochs: 2\nhiddenDim: 4\nnumLayers: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	out, err := run(t, "train", path, "--gnn", "--backend", "badger",
		"--checkpoint-dir", filepath.Join(dir, "db"), "--log-level", "error")
	require.NoError(t, err)

	var result trainer.GNNResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Losses, 2)
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, "models", "list", "--backend", "s3")
	assert.Error(t, err)

	_, err = run(t, "train", filepath.Join(t.TempDir(), "missing.yaml"),
		"--checkpoint-dir", t.TempDir())
	assert.Error(t, err)
}
