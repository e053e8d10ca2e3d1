package checkpointer

// nStep implements checkpointing every N episodes
type nStep struct {
	interval int
	save     SaveFunc

	// name returns the name to save the checkpoint of an episode
	// under.
	//
	// If each checkpoint should be kept, use EpisodeNamer, which
	// names checkpoints after their episode (e.g. dqn_ep10,
	// dqn_ep20, ...). Otherwise, use FixedNamer so that each
	// checkpoint replaces the last. For example:
	//
	// n := NewNStep(10, save, FixedNamer("dqn_latest"))
	name func(episode int) string
}

// NewNStep returns a checkpointer that checkpoints every n episodes.
// A non-positive n disables checkpointing.
func NewNStep(n int, save SaveFunc, name func(episode int) string) Checkpointer {
	return &nStep{
		interval: n,
		save:     save,
		name:     name,
	}
}

// Checkpoint saves a checkpoint if episode is a multiple of the
// interval
func (n *nStep) Checkpoint(episode int) error {
	if n.interval > 0 && episode%n.interval == 0 {
		return n.save(n.name(episode), episode)
	}
	return nil
}
