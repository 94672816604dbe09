// Package runtime abstracts the model runtime that performs the actual
// tensor-level work. The core drives it through a narrow interface so
// the training loop implementation stays a pluggable collaborator.
package runtime

import (
	"context"
	"errors"
)

// ErrTrainingUnsupported is returned by runtimes that can only serve
// generation (e.g. hosted-API backends).
var ErrTrainingUnsupported = errors.New("runtime does not support training")

// TrainSpec carries everything a runtime needs for one fine-tuning run.
type TrainSpec struct {
	TrainTexts []string `json:"train_texts"`
	EvalTexts  []string `json:"eval_texts"`

	BaseModel    string  `json:"base_model"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	MaxLength    int     `json:"max_length"`
	Seed         int64   `json:"seed"`

	OutputDir string `json:"output_dir"`
}

// EpochProgress is reported once per completed epoch.
type EpochProgress struct {
	Epoch       int      `json:"epoch"`
	TotalEpochs int      `json:"total_epochs"`
	TrainLoss   *float64 `json:"train_loss,omitempty"`
	EvalLoss    *float64 `json:"eval_loss,omitempty"`
}

// TrainResult is the outcome of a successful run.
type TrainResult struct {
	FinalLoss      *float64 `json:"final_loss,omitempty"`
	ValidationLoss *float64 `json:"validation_loss,omitempty"`
	ModelPath      string   `json:"model_path"`
	TokenizerPath  string   `json:"tokenizer_path"`
}

// SamplingParams mirror the generation request knobs.
type SamplingParams struct {
	MaxLength          int     `json:"max_length"`
	Temperature        float64 `json:"temperature"`
	TopP               float64 `json:"top_p"`
	TopK               int     `json:"top_k"`
	RepetitionPenalty  float64 `json:"repetition_penalty"`
	NumReturnSequences int     `json:"num_return_sequences"`
}

// Handle is one loaded model/tokenizer pair, ready to generate.
type Handle interface {
	Generate(ctx context.Context, prompt string, params SamplingParams) ([]string, error)
	Close() error
}

// Runtime trains models and loads them for generation. Train blocks
// until the run finishes and reports progress at epoch boundaries; it
// must observe ctx so a cancelled job stops at the next boundary.
type Runtime interface {
	Train(ctx context.Context, spec TrainSpec, onEpoch func(EpochProgress)) (*TrainResult, error)
	Load(ctx context.Context, modelPath, tokenizerPath string) (Handle, error)
}
