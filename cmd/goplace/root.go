package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/samuelfneumann/goplace/checkpoint"
	"github.com/samuelfneumann/goplace/config"
	"github.com/samuelfneumann/goplace/trainer"
)

// app holds the state shared by all commands
type app struct {
	out, errOut io.Writer

	configPath string
	overrides  overrides

	config config.Config
	logger *slog.Logger
}

// overrides are flags that take precedence over the config file
type overrides struct {
	addr          string
	checkpointDir string
	backend       string
	logLevel      string
	logFormat     string
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.addr, "addr", "", "address to serve on")
	fs.StringVar(&o.checkpointDir, "checkpoint-dir", "",
		"directory of saved models")
	fs.StringVar(&o.backend, "backend", "",
		"checkpoint backend (file or badger)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level")
	fs.StringVar(&o.logFormat, "log-format", "", "log format (text or json)")
}

// apply copies the flags that were set onto c
func (o *overrides) apply(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed("addr") {
		c.Server.Addr = o.addr
	}
	if fs.Changed("checkpoint-dir") {
		c.Checkpoint.Dir = o.checkpointDir
	}
	if fs.Changed("backend") {
		c.Checkpoint.Backend = o.backend
	}
	if fs.Changed("log-level") {
		c.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		c.Log.Format = o.logFormat
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "goplace",
		Short: "Reinforcement learning for chip placement",
		Long: `goplace trains agents that place the cells of a circuit on a
chip grid, saves them as checkpoints, and serves training and
inference over HTTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to a YAML config file")
	a.overrides.register(root.PersistentFlags())

	root.AddCommand(a.serveCmd(), a.trainCmd(), a.modelsCmd())
	return root
}

// load reads the configuration and sets up logging before any command
// runs
func (a *app) load(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.overrides.apply(cmd.Flags(), &c)
	if err := c.Validate(); err != nil {
		return err
	}
	a.config = c
	a.logger = c.Logger(a.errOut)
	slog.SetDefault(a.logger)
	return nil
}

// trainer opens the checkpoint store and returns a Trainer over it.
// The returned function closes the store.
func (a *app) trainer() (*trainer.Trainer, func(), error) {
	store, err := a.config.OpenStore(a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open checkpoint store: %v", err)
	}
	m := checkpoint.NewManager(store, checkpoint.WithLogger(a.logger))
	t := trainer.New(m, trainer.WithLogger(a.logger),
		trainer.WithConvergenceWindow(a.config.Training.ConvergenceWindow))

	closer := func() {
		if err := m.Close(); err != nil {
			a.logger.Error("could not close checkpoint store", "error", err)
		}
	}
	return t, closer, nil
}
