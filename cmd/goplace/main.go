// Command goplace trains and serves reinforcement learning agents that
// place circuits on a chip
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
