package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/environment/placement"
	"github.com/samuelfneumann/goplace/experiment"
)

// Infer places the request's circuit greedily with a saved agent. The
// agent is rebuilt from the configuration stored in its checkpoint;
// if the request names an algorithm, it must match the checkpoint.
func (t *Trainer) Infer(ctx context.Context, req InferenceRequest) (
	result *InferenceResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	defer func() { observeSession("infer", req.Algorithm, err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, ok, err := t.manager.Load(req.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("infer: %w: %q", ErrModelNotFound,
			req.ModelPath)
	}

	// Graph models score placements but cannot act in the environment
	if snap.State != nil && snap.State.Type == agent.GNN {
		return nil, fmt.Errorf("infer: %w: model %q is a graph placement "+
			"model and cannot be used for inference", ErrInvalidRequest,
			req.ModelPath)
	}

	if req.Algorithm != "" {
		alg, _ := ParseAlgorithm(req.Algorithm)
		if string(alg.Type()) != snap.Algorithm {
			return nil, fmt.Errorf("infer: %w: model %q was trained with %v, "+
				"not %v", ErrInvalidRequest, req.ModelPath, snap.Algorithm,
				alg)
		}
	}

	a, _, err := restore(snap, 0)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	defer a.Close()

	env, err := placement.New(req.Circuit(), placement.Config{
		ChipWidth:      req.ChipWidth,
		ChipHeight:     req.ChipHeight,
		OverlapPenalty: placement.DefaultOverlapPenalty,
	})
	if err != nil {
		return nil, fmt.Errorf("infer: %w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	last, ret, err := experiment.Evaluate(env, a)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	elapsed := time.Since(start)

	t.logger.Info("placed circuit", "model", req.ModelPath,
		"algorithm", snap.Algorithm, "wirelength", env.Wirelength(),
		"duration", elapsed)

	return &InferenceResult{
		Success:       true,
		Algorithm:     snap.Algorithm,
		Cells:         env.Placement().Cells,
		TotalReward:   ret,
		Wirelength:    env.Wirelength(),
		Overlap:       env.Overlap(),
		InferenceTime: elapsed.Seconds(),
		Steps:         last.Number,
	}, nil
}
