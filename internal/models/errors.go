package models

import "errors"

// Stable error kinds. Callers match with errors.Is and map each kind to
// their own user-facing response; wrapped causes stay attached.
var (
	// ErrJobConflict is returned when a training job is requested while
	// another one is still running. The new job is never created.
	ErrJobConflict = errors.New("another training job is already running")

	// ErrNoTrainingData fails a job whose scope has zero examples,
	// before any runtime resources are allocated.
	ErrNoTrainingData = errors.New("no training data for requested scope")

	// ErrModelNotFound means artifact resolution exhausted all fallback
	// tiers, including the packaged default.
	ErrModelNotFound = errors.New("no model available")

	// ErrNoDataset means no examples match the requested stats scope.
	ErrNoDataset = errors.New("dataset not found")

	// ErrJobNotFound means the requested job id does not exist.
	ErrJobNotFound = errors.New("training job not found")

	// ErrJobNotRunning means a cancel was requested for a job that is
	// not the currently active one.
	ErrJobNotRunning = errors.New("training job is not running")

	// ErrGenerationFailed wraps a model-runtime failure during
	// generation. It is never masked as ErrModelNotFound.
	ErrGenerationFailed = errors.New("text generation failed")

	// ErrTrainingCancelled marks a job cancelled at an epoch boundary.
	ErrTrainingCancelled = errors.New("training cancelled")
)
