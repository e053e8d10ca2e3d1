package checkpointer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNStep(t *testing.T) {
	var names []string
	var episodes []int
	save := func(name string, episode int) error {
		names = append(names, name)
		episodes = append(episodes, episode)
		return nil
	}

	c := NewNStep(3, save, EpisodeNamer("ppo"))
	for ep := 1; ep <= 7; ep++ {
		require.NoError(t, c.Checkpoint(ep))
	}
	assert.Equal(t, []string{"ppo_ep3", "ppo_ep6"}, names)
	assert.Equal(t, []int{3, 6}, episodes)
}

func TestNStepDisabled(t *testing.T) {
	called := false
	c := NewNStep(0, func(string, int) error {
		called = true
		return nil
	}, FixedNamer("latest"))
	assert.NoError(t, c.Checkpoint(1))
	assert.False(t, called)
}

func TestFixedNamer(t *testing.T) {
	name := FixedNamer("dqn_latest")
	assert.Equal(t, "dqn_latest", name(1))
	assert.Equal(t, "dqn_latest", name(50))
}
