package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/environment/placement"
	"github.com/samuelfneumann/goplace/experiment"
	"github.com/samuelfneumann/goplace/experiment/checkpointer"
	"github.com/samuelfneumann/goplace/experiment/tracker"
	"github.com/samuelfneumann/goplace/experiment/trackers"
)

// Train trains an agent on the request's circuit, places the circuit
// greedily with the trained agent, and saves the agent as the latest
// checkpoint of its algorithm. If the request asks for a pretrained
// agent, training resumes from that checkpoint when it exists.
//
// Training stops between episodes if ctx is cancelled. The progress
// function, which may be nil, is called after every episode.
func (t *Trainer) Train(ctx context.Context, req Request,
	progress ProgressFunc) (result *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	alg, _ := ParseAlgorithm(req.Algorithm)
	defer func() { observeSession("train", string(alg), err) }()

	runID := newRunID()
	logger := t.logger.With("run_id", runID, "algorithm", alg)
	logger.Info("starting training", "episodes", req.Episodes,
		"cells", len(req.Cells), "nets", len(req.Nets))

	env, err := placement.New(req.Circuit(), placement.Config{
		ChipWidth:      req.ChipWidth,
		ChipHeight:     req.ChipHeight,
		OverlapPenalty: placement.DefaultOverlapPenalty,
	})
	if err != nil {
		return nil, fmt.Errorf("train: %w: %v", ErrInvalidRequest, err)
	}

	config, err := alg.AgentConfig(req)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	a, err := config.CreateAgent(req.Seed)
	if err != nil {
		return nil, fmt.Errorf("train: could not create agent: %v", err)
	}
	defer a.Close()

	if req.UsePretrained {
		if err := t.warmStart(alg, a, logger); err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
	}

	returns := trackers.NewReturn()
	lengths := trackers.NewEpisodeLength()
	losses := trackers.NewLoss()
	counter := &episodeCounter{algorithm: string(alg)}
	if progress != nil {
		counter.onEpisode = func(episode int, ret float64) {
			progress(episode, req.Episodes, ret)
		}
	}

	save := func(name string, episode int) error {
		last, _ := losses.Last()
		snap, err := snapshot(a, config, episode, floats.Sum(returns.Data()),
			last.Loss)
		if err != nil {
			return err
		}
		_, err = t.manager.Save(name, snap, map[string]any{
			"algorithm": string(alg),
			"episodes":  episode,
			"run_id":    runID,
		})
		return err
	}
	exp := experiment.NewOnline(env, instrumented{a, string(alg)},
		req.Episodes,
		[]tracker.Tracker{returns, lengths, losses, counter},
		[]checkpointer.Checkpointer{checkpointer.NewNStep(
			req.CheckpointEvery, save, checkpointer.EpisodeNamer(alg.Prefix()),
		)},
	)

	start := time.Now()
	if err := exp.Run(ctx); err != nil {
		logger.Error("training failed", "episode", exp.Episodes(),
			"error", err)
		return nil, fmt.Errorf("train: %w", err)
	}
	trainingTime := time.Since(start)

	start = time.Now()
	last, _, err := experiment.Evaluate(env, a)
	if err != nil {
		return nil, fmt.Errorf("train: could not place circuit: %w", err)
	}
	inferenceTime := time.Since(start)
	placed := env.Placement()

	rewards := returns.Data()
	total := floats.Sum(rewards)
	final, _ := losses.Last()

	snap, err := snapshot(a, config, req.Episodes, total, final.Loss)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	modelPath, err := t.manager.Save(alg.Checkpoint(), snap, map[string]any{
		"algorithm":    string(alg),
		"episodes":     req.Episodes,
		"final_reward": rewards[len(rewards)-1],
		"wirelength":   env.Wirelength(),
		"overlap":      env.Overlap(),
		"run_id":       runID,
	})
	if err != nil {
		logger.Error("could not save model", "error", err)
		return nil, fmt.Errorf("train: %w", err)
	}

	logger.Info("training complete", "episodes", exp.Episodes(),
		"total_reward", total, "wirelength", env.Wirelength(),
		"updates", losses.Updates(), "model_path", modelPath,
		"duration", trainingTime)

	return &Result{
		Success:        true,
		RunID:          runID,
		Algorithm:      string(alg),
		Cells:          placed.Cells,
		TotalReward:    total,
		EpisodeRewards: rewards,
		EpisodeLengths: lengths.Data(),
		Convergence:    returns.Convergence(t.ConvergenceWindow),
		Wirelength:     env.Wirelength(),
		Overlap:        env.Overlap(),
		TrainingTime:   trainingTime.Seconds(),
		InferenceTime:  inferenceTime.Seconds(),
		Steps:          exp.Steps() + last.Number,
		Updates:        losses.Updates(),
		FinalLoss:      final.Loss,
		ModelPath:      modelPath,
	}, nil
}

// warmStart loads the latest checkpoint of an algorithm into a. A
// missing checkpoint is not an error; a checkpoint that does not fit
// the agent is.
func (t *Trainer) warmStart(alg Algorithm, a agent.Agent,
	logger *slog.Logger) error {
	name := alg.Checkpoint()
	snap, ok, err := t.manager.Load(name)
	if err != nil {
		return fmt.Errorf("could not load pretrained model: %w", err)
	}
	if !ok {
		logger.Info("no pretrained model, starting fresh", "name", name)
		return nil
	}
	if err := a.LoadStateDict(snap.State); err != nil {
		return fmt.Errorf("could not restore pretrained model %q: %w", name,
			err)
	}
	logger.Info("resumed from pretrained model", "name", name,
		"episode", snap.Episode)
	return nil
}

// IsClientError reports whether err was caused by the request rather
// than by a failure of the Trainer
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownAlgorithm)
}
