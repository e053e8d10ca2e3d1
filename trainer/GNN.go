package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samuelfneumann/goplace/checkpoint"
	"github.com/samuelfneumann/goplace/gnn"
	"github.com/samuelfneumann/goplace/graphenc"
)

// GNNCheckpoint is the name of the latest graph placement model
const GNNCheckpoint = "gnn_latest"

// TrainGNN fits the graph placement model to the request's circuit,
// anchoring cells that carry a position, and saves it as the latest
// graph model.
func (t *Trainer) TrainGNN(ctx context.Context, req GNNRequest) (
	result *GNNResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("traingnn: %w", err)
	}
	defer func() { observeSession("train", "gnn", err) }()

	runID := newRunID()
	logger := t.logger.With("run_id", runID, "algorithm", "gnn")
	logger.Info("starting graph model training", "epochs", req.Epochs,
		"cells", len(req.Cells), "nets", len(req.Nets))

	c := req.Circuit()
	graph, err := graphenc.Encode(c)
	if err != nil {
		return nil, fmt.Errorf("traingnn: %w: %v", ErrInvalidRequest, err)
	}
	graph = graph.Normalized(req.ChipWidth, req.ChipHeight)
	anchors := gnn.Anchors(c, req.ChipWidth, req.ChipHeight)

	config := gnn.DefaultConfig(req.LearningRate, req.HiddenDim,
		req.NumLayers)
	model, err := gnn.New(config, graph, anchors)
	if err != nil {
		return nil, fmt.Errorf("traingnn: %v", err)
	}
	defer model.Close()

	start := time.Now()
	losses := make([]float64, 0, req.Epochs)
	for epoch := 0; epoch < req.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("traingnn: %w", err)
		}
		loss, _ := model.Step()
		losses = append(losses, loss)
	}
	elapsed := time.Since(start)

	finalLoss, _ := model.Predict()
	placed, err := model.Place(c, req.ChipWidth, req.ChipHeight)
	if err != nil {
		return nil, fmt.Errorf("traingnn: %v", err)
	}
	wirelength, overlap := placed.HPWL(), placed.OverlapArea()

	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("traingnn: could not encode config: %v", err)
	}
	modelPath, err := t.manager.Save(GNNCheckpoint, &checkpoint.Snapshot{
		Algorithm: "gnn",
		Epoch:     req.Epochs,
		Loss:      finalLoss,
		Config:    data,
		State:     model.StateDict(),
	}, map[string]any{
		"algorithm":  "gnn",
		"epochs":     req.Epochs,
		"final_loss": finalLoss,
		"wirelength": wirelength,
		"overlap":    overlap,
		"run_id":     runID,
	})
	if err != nil {
		logger.Error("could not save model", "error", err)
		return nil, fmt.Errorf("traingnn: %w", err)
	}

	logger.Info("graph model training complete", "final_loss", finalLoss,
		"wirelength", wirelength, "model_path", modelPath,
		"duration", elapsed)

	return &GNNResult{
		Success:      true,
		RunID:        runID,
		Losses:       losses,
		FinalLoss:    finalLoss,
		Cells:        placed.Cells,
		Wirelength:   wirelength,
		Overlap:      overlap,
		TrainingTime: elapsed.Seconds(),
		ModelPath:    modelPath,
	}, nil
}
