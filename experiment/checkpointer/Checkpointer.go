// Package checkpointer implements Checkpointers, which save the state
// of an experiment as it runs
package checkpointer

// Checkpointer checkpoints an experiment after each completed episode
type Checkpointer interface {
	Checkpoint(episode int) error
}

// SaveFunc saves a checkpoint under a name
type SaveFunc func(name string, episode int) error
