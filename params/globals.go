package params

import "fmt"

type TrainingConfig struct {
	// Cell shape
	InputSize  int // features per time step
	HiddenSize int // width of the hidden state
	OutputSize int // width of the readout layer
	Rho        int // truncated unroll length (steps per BPTT cycle)

	// Optimization parameters
	LearningRate float64
	AdamBeta1    float64 // default 0.9
	AdamBeta2    float64 // default 0.999
	AdamEps      float64 // default 1e-8
	WeightDecay  float64 // AdamW-style, e.g., 0.01; 0 disables
	GradClip     float64 // <=0 disables

	MaxEpochs int     // maximum number of epochs
	Patience  int     // early stopping patience (0 = never stop early)
	Epsilon   float64 // stop if loss < epsilon
	BatchSize int     // columns per time-step matrix

	Seed            int64
	Debug           bool // enable periodic debug logs
	DebugEvery      int  // print every N optimizer steps
	SaveEveryEpochs int  // checkpoint every N epochs (0=disable)
	ModelPath       string
}

var Config = TrainingConfig{
	InputSize:  1,
	HiddenSize: 16,
	OutputSize: 1,
	Rho:        8,

	LearningRate: 0.01,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,
	WeightDecay:  0.0,
	GradClip:     1.0,

	MaxEpochs: 200,
	Patience:  20,
	Epsilon:   1e-5,
	BatchSize: 1,

	Seed:            123,
	Debug:           false,
	DebugEvery:      100,
	SaveEveryEpochs: 0,
	ModelPath:       "models/recurrent.gob",
}

// Validate reports the first field of c that cannot drive a training run.
func (c TrainingConfig) Validate() error {
	switch {
	case c.InputSize <= 0:
		return fmt.Errorf("params: InputSize must be positive, got %d", c.InputSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("params: HiddenSize must be positive, got %d", c.HiddenSize)
	case c.OutputSize <= 0:
		return fmt.Errorf("params: OutputSize must be positive, got %d", c.OutputSize)
	case c.Rho < 1:
		return fmt.Errorf("params: Rho must be at least 1, got %d", c.Rho)
	case c.LearningRate < 0:
		return fmt.Errorf("params: LearningRate must not be negative, got %g", c.LearningRate)
	case c.BatchSize <= 0:
		return fmt.Errorf("params: BatchSize must be positive, got %d", c.BatchSize)
	case c.DebugEvery <= 0:
		return fmt.Errorf("params: DebugEvery must be positive, got %d", c.DebugEvery)
	}
	return nil
}
