package trainer

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/goplace/circuit"
)

var (
	// ErrInvalidRequest is returned for malformed requests
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownAlgorithm is returned for algorithms that cannot be
	// trained
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrModelNotFound is returned when a requested model has not been
	// saved
	ErrModelNotFound = errors.New("model not found")
)

// Problem is a circuit to place on a chip
type Problem struct {
	Cells      []circuit.Cell `json:"cells" yaml:"cells"`
	Nets       []circuit.Net  `json:"nets" yaml:"nets"`
	ChipWidth  float64        `json:"chipWidth" yaml:"chipWidth"`
	ChipHeight float64        `json:"chipHeight" yaml:"chipHeight"`
}

// Circuit returns the circuit of the problem
func (p Problem) Circuit() *circuit.Circuit {
	return circuit.New(p.Cells, p.Nets)
}

func (p Problem) validate() error {
	if p.ChipWidth <= 0 || p.ChipHeight <= 0 {
		return fmt.Errorf("%w: chip dimensions must be positive, got %vx%v",
			ErrInvalidRequest, p.ChipWidth, p.ChipHeight)
	}
	if err := p.Circuit().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Request is a request to train a reinforcement learning placement
// agent
type Request struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Problem   `yaml:",inline"`

	Episodes       int     `json:"episodes" yaml:"episodes"`
	LearningRate   float64 `json:"learningRate" yaml:"learningRate"`
	DiscountFactor float64 `json:"discountFactor" yaml:"discountFactor"`
	Epsilon        float64 `json:"epsilon" yaml:"epsilon"`
	BatchSize      int     `json:"batchSize" yaml:"batchSize"`
	UsePretrained  bool    `json:"usePretrained" yaml:"usePretrained"`
	Seed           uint64  `json:"seed" yaml:"seed"`

	// CheckpointEvery saves an intermediate checkpoint every
	// CheckpointEvery episodes. Zero disables intermediate checkpoints.
	CheckpointEvery int `json:"checkpointEvery" yaml:"checkpointEvery"`
}

// DefaultRequest returns a Request with the default hyperparameters
// and no circuit
func DefaultRequest() Request {
	return Request{
		Episodes:       100,
		LearningRate:   1e-3,
		DiscountFactor: 0.99,
		Epsilon:        0.1,
		BatchSize:      32,
	}
}

// Validate returns an error wrapping ErrInvalidRequest or
// ErrUnknownAlgorithm if the request cannot be trained
func (r Request) Validate() error {
	if _, err := ParseAlgorithm(r.Algorithm); err != nil {
		return err
	}
	if err := r.ValidateHyperparameters(); err != nil {
		return err
	}
	return r.Problem.validate()
}

// ValidateHyperparameters checks the hyperparameters of the request,
// ignoring its algorithm and problem
func (r Request) ValidateHyperparameters() error {
	if r.Episodes < 1 {
		return fmt.Errorf("%w: episodes must be positive", ErrInvalidRequest)
	}
	if r.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive",
			ErrInvalidRequest)
	}
	if r.DiscountFactor < 0 || r.DiscountFactor > 1 {
		return fmt.Errorf("%w: discount factor must be in [0, 1]",
			ErrInvalidRequest)
	}
	if r.Epsilon < 0 || r.Epsilon > 1 {
		return fmt.Errorf("%w: epsilon must be in [0, 1]", ErrInvalidRequest)
	}
	if r.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive",
			ErrInvalidRequest)
	}
	if r.CheckpointEvery < 0 {
		return fmt.Errorf("%w: checkpoint interval must be non-negative",
			ErrInvalidRequest)
	}
	return nil
}

// Result reports a training session
type Result struct {
	Success        bool           `json:"success"`
	RunID          string         `json:"runId"`
	Algorithm      string         `json:"algorithm"`
	Cells          []circuit.Cell `json:"cells"`
	TotalReward    float64        `json:"totalReward"`
	EpisodeRewards []float64      `json:"episodeRewards"`
	EpisodeLengths []float64      `json:"episodeLengths"`
	Convergence    []float64      `json:"convergence"`
	Wirelength     float64        `json:"wirelength"`
	Overlap        float64        `json:"overlap"`
	TrainingTime   float64        `json:"trainingTime"`
	InferenceTime  float64        `json:"inferenceTime"`
	Steps          int            `json:"steps"`
	Updates        int            `json:"updates"`
	FinalLoss      float64        `json:"finalLoss"`
	ModelPath      string         `json:"modelPath,omitempty"`
}

// GNNRequest is a request to fit the graph placement model to a
// circuit
type GNNRequest struct {
	Problem `yaml:",inline"`

	Epochs       int     `json:"epochs" yaml:"epochs"`
	LearningRate float64 `json:"learningRate" yaml:"learningRate"`
	HiddenDim    int     `json:"hiddenDim" yaml:"hiddenDim"`
	NumLayers    int     `json:"numLayers" yaml:"numLayers"`
}

// DefaultGNNRequest returns a GNNRequest with the default
// hyperparameters and no circuit
func DefaultGNNRequest() GNNRequest {
	return GNNRequest{
		Epochs:       100,
		LearningRate: 1e-3,
		HiddenDim:    64,
		NumLayers:    3,
	}
}

// Validate returns an error wrapping ErrInvalidRequest if the request
// is malformed
func (r GNNRequest) Validate() error {
	if r.Epochs < 1 {
		return fmt.Errorf("%w: epochs must be positive", ErrInvalidRequest)
	}
	if r.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive",
			ErrInvalidRequest)
	}
	if r.HiddenDim < 1 || r.NumLayers < 0 {
		return fmt.Errorf("%w: invalid architecture with %d layers of %d "+
			"units", ErrInvalidRequest, r.NumLayers, r.HiddenDim)
	}
	return r.Problem.validate()
}

// GNNResult reports a graph model fit
type GNNResult struct {
	Success      bool           `json:"success"`
	RunID        string         `json:"runId"`
	Losses       []float64      `json:"losses"`
	FinalLoss    float64        `json:"finalLoss"`
	Cells        []circuit.Cell `json:"cells"`
	Wirelength   float64        `json:"wirelength"`
	Overlap      float64        `json:"overlap"`
	TrainingTime float64        `json:"trainingTime"`
	ModelPath    string         `json:"modelPath,omitempty"`
}

// InferenceRequest is a request to place a circuit with a saved model
type InferenceRequest struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// ModelPath is the name or location of the model's checkpoint
	ModelPath string `json:"modelPath" yaml:"modelPath"`
	Problem   `yaml:",inline"`
}

// Validate returns an error if the request is malformed
func (r InferenceRequest) Validate() error {
	if r.Algorithm != "" {
		if _, err := ParseAlgorithm(r.Algorithm); err != nil {
			return err
		}
	}
	if r.ModelPath == "" {
		return fmt.Errorf("%w: no model path", ErrInvalidRequest)
	}
	return r.Problem.validate()
}

// InferenceResult reports a placement by a saved model
type InferenceResult struct {
	Success       bool           `json:"success"`
	Algorithm     string         `json:"algorithm"`
	Cells         []circuit.Cell `json:"cells"`
	TotalReward   float64        `json:"totalReward"`
	Wirelength    float64        `json:"wirelength"`
	Overlap       float64        `json:"overlap"`
	InferenceTime float64        `json:"inferenceTime"`
	Steps         int            `json:"steps"`
}
