// Package config loads the configuration of the placement service
// from YAML. Every field has a default, so a configuration file only
// needs to name the fields it changes.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/goplace/checkpoint"
	"github.com/samuelfneumann/goplace/trainer"
)

// Checkpoint storage backends
const (
	FileBackend   = "file"
	BadgerBackend = "badger"
)

// Config is the configuration of the placement service
type Config struct {
	Server     Server     `yaml:"server"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Log        Log        `yaml:"log"`
	Training   Training   `yaml:"training"`
}

// Server configures the HTTP server
type Server struct {
	Addr string `yaml:"addr"`
}

// Checkpoint configures where models are stored
type Checkpoint struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"`

	// InMemory keeps a badger store in memory only. It is ignored by
	// the file backend.
	InMemory bool `yaml:"inMemory"`
}

// Log configures the service logger
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Training holds the hyperparameters used when a training request
// leaves them out
type Training struct {
	Episodes          int     `yaml:"episodes"`
	LearningRate      float64 `yaml:"learningRate"`
	DiscountFactor    float64 `yaml:"discountFactor"`
	Epsilon           float64 `yaml:"epsilon"`
	BatchSize         int     `yaml:"batchSize"`
	CheckpointEvery   int     `yaml:"checkpointEvery"`
	ConvergenceWindow int     `yaml:"convergenceWindow"`
}

// Default returns the default configuration
func Default() Config {
	req := trainer.DefaultRequest()
	return Config{
		Server:     Server{Addr: ":8000"},
		Checkpoint: Checkpoint{Dir: "./checkpoints", Backend: FileBackend},
		Log:        Log{Level: "info", Format: "text"},
		Training: Training{
			Episodes:          req.Episodes,
			LearningRate:      req.LearningRate,
			DiscountFactor:    req.DiscountFactor,
			Epsilon:           req.Epsilon,
			BatchSize:         req.BatchSize,
			ConvergenceWindow: 10,
		},
	}
}

// Load reads the configuration at path over the defaults. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: could not read config: %v", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("load: could not parse config %v: %v",
			path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("validate: server address must be set")
	}
	switch c.Checkpoint.Backend {
	case FileBackend, BadgerBackend:
	default:
		return fmt.Errorf("validate: unknown checkpoint backend %q",
			c.Checkpoint.Backend)
	}
	if c.Checkpoint.Dir == "" && !c.Checkpoint.InMemory {
		return fmt.Errorf("validate: checkpoint directory must be set")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("validate: unknown log format %q", c.Log.Format)
	}
	if c.Training.ConvergenceWindow <= 0 {
		return fmt.Errorf("validate: convergence window must be positive")
	}
	if err := c.Request().ValidateHyperparameters(); err != nil {
		return fmt.Errorf("validate: training defaults: %v", err)
	}
	return nil
}

// Request returns a training request without a problem that carries
// the configured training defaults
func (c Config) Request() trainer.Request {
	req := trainer.DefaultRequest()
	req.Episodes = c.Training.Episodes
	req.LearningRate = c.Training.LearningRate
	req.DiscountFactor = c.Training.DiscountFactor
	req.Epsilon = c.Training.Epsilon
	req.BatchSize = c.Training.BatchSize
	req.CheckpointEvery = c.Training.CheckpointEvery
	return req
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// Logger returns the logger described by the configuration
func (c Config) Logger(out io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// OpenStore opens the configured checkpoint store
func (c Config) OpenStore(logger *slog.Logger) (checkpoint.Store, error) {
	if c.Checkpoint.Backend == BadgerBackend {
		store, err := checkpoint.OpenBadgerStore(checkpoint.BadgerConfig{
			Path:     c.Checkpoint.Dir,
			InMemory: c.Checkpoint.InMemory,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("openstore: %v", err)
		}
		return store, nil
	}

	store, err := checkpoint.NewFileStore(c.Checkpoint.Dir)
	if err != nil {
		return nil, fmt.Errorf("openstore: %v", err)
	}
	return store, nil
}
