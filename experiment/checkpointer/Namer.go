package checkpointer

import "fmt"

// EpisodeNamer returns a function which names checkpoints after the
// episode they are taken at, as <prefix>_ep<episode>.
func EpisodeNamer(prefix string) func(episode int) string {
	return func(episode int) string {
		return fmt.Sprintf("%v_ep%v", prefix, episode)
	}
}

// FixedNamer returns a function which gives every checkpoint the same
// name, so that each checkpoint replaces the previous one
func FixedNamer(name string) func(episode int) string {
	return func(int) string {
		return name
	}
}
