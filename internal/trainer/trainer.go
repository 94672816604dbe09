// Package trainer owns the training job lifecycle: the
// pending -> running -> {completed | failed} state machine, the
// single-active-job constraint, and the artifact produced on success.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
	"github.com/BadrRibzat/bookgen-ai/internal/runtime"
)

// Training defaults applied when a request leaves hyperparameters
// unset.
const (
	DefaultBaseModel    = "gpt2"
	DefaultEpochs       = 3
	DefaultBatchSize    = 4
	DefaultLearningRate = 5e-5
	DefaultMaxLength    = 512

	trainingSeed = 42
)

// Trainer runs fine-tuning jobs. At most one job is active at a time;
// the slot is acquired before any background work starts and released
// unconditionally when that work ends.
type Trainer struct {
	jobs      *repository.JobRepository
	examples  *repository.ExampleRepository
	artifacts *repository.ArtifactRepository
	runtime   runtime.Runtime
	modelsDir string
	logger    *zap.Logger

	slot jobSlot
}

// NewTrainer creates a new trainer.
func NewTrainer(
	jobs *repository.JobRepository,
	examples *repository.ExampleRepository,
	artifacts *repository.ArtifactRepository,
	rt runtime.Runtime,
	modelsDir string,
	logger *zap.Logger,
) *Trainer {
	return &Trainer{
		jobs:      jobs,
		examples:  examples,
		artifacts: artifacts,
		runtime:   rt,
		modelsDir: modelsDir,
		logger:    logger,
	}
}

// StartJob creates a training job for the request's scope and launches
// it in the background, returning the job id immediately. A request
// while another job is active fails with models.ErrJobConflict and
// creates no job record.
func (t *Trainer) StartJob(req models.TrainRequest) (string, error) {
	applyDefaults(&req)

	jobID := fmt.Sprintf("train_%s_%d_%s", req.DomainID, time.Now().UTC().Unix(), uuid.New().String()[:8])

	jobCtx, cancel := context.WithCancel(context.Background())
	if !t.slot.acquire(jobID, cancel) {
		cancel()
		return "", models.ErrJobConflict
	}

	domainName, nicheName, err := t.examples.GetScopeNames(req.DomainID, req.NicheID)
	if err != nil {
		t.slot.release(jobID)
		cancel()
		return "", err
	}

	name := req.JobName
	if name == "" {
		name = fmt.Sprintf("Training for %s", req.DomainID)
	}

	job := &models.TrainingJob{
		JobID:        jobID,
		Name:         name,
		DomainID:     req.DomainID,
		DomainName:   domainName,
		NicheID:      req.NicheID,
		NicheName:    nicheName,
		ModelName:    req.ModelName,
		Epochs:       req.Epochs,
		BatchSize:    req.BatchSize,
		LearningRate: req.LearningRate,
		MaxLength:    req.MaxLength,
		Status:       models.JobStatusPending,
	}

	if err := t.jobs.CreateJob(job); err != nil {
		t.slot.release(jobID)
		cancel()
		return "", err
	}

	go t.run(jobCtx, job)

	return jobID, nil
}

// CancelJob requests cancellation of the currently running job. The
// runtime observes it at the next epoch boundary.
func (t *Trainer) CancelJob(jobID string) error {
	if _, err := t.jobs.GetJob(jobID); err != nil {
		return err
	}
	if !t.slot.cancel(jobID) {
		return models.ErrJobNotRunning
	}
	t.logger.Info("Cancellation requested", zap.String("job_id", jobID))
	return nil
}

// ActiveJobID returns the id of the currently running job, empty when
// the trainer is idle.
func (t *Trainer) ActiveJobID() string {
	return t.slot.active()
}

// GetJob returns the most recently persisted state of a job, including
// mid-run progress.
func (t *Trainer) GetJob(jobID string) (*models.TrainingJob, error) {
	return t.jobs.GetJob(jobID)
}

// ListJobs returns jobs newest first.
func (t *Trainer) ListJobs(domainID *string, limit int) ([]*models.TrainingJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return t.jobs.ListJobs(domainID, limit)
}

// run drives one job to a terminal state. The job slot is released on
// every exit path so a failed run never wedges the trainer.
func (t *Trainer) run(ctx context.Context, job *models.TrainingJob) {
	defer t.slot.release(job.JobID)

	examples, err := t.examples.ListByScopeByQuality(job.DomainID, job.NicheID)
	if err != nil {
		t.failJob(job, err)
		return
	}
	if len(examples) == 0 {
		// Fail fast, straight from pending, before any runtime work.
		t.failJob(job, fmt.Errorf("%w: domain %s", models.ErrNoTrainingData, job.DomainID))
		return
	}

	texts := make([]string, len(examples))
	for i, e := range examples {
		texts[i] = e.Prompt + "\n\n" + e.Completion
	}

	// Deterministic 80/20 split after the quality sort, so the best
	// examples are concentrated in the training set.
	splitIdx := len(texts) * 80 / 100
	trainTexts := texts[:splitIdx]
	evalTexts := texts[splitIdx:]

	job.TotalExamples = len(texts)
	job.TrainingExamples = len(trainTexts)
	job.ValidationExamples = len(evalTexts)
	job.Status = models.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	if err := t.jobs.UpdateJob(job); err != nil {
		t.failJob(job, err)
		return
	}

	t.logger.Info("Training started",
		zap.String("job_id", job.JobID),
		zap.String("domain_id", job.DomainID),
		zap.Int("training_examples", len(trainTexts)),
		zap.Int("validation_examples", len(evalTexts)))

	spec := runtime.TrainSpec{
		TrainTexts:   trainTexts,
		EvalTexts:    evalTexts,
		BaseModel:    job.ModelName,
		Epochs:       job.Epochs,
		BatchSize:    job.BatchSize,
		LearningRate: job.LearningRate,
		MaxLength:    job.MaxLength,
		Seed:         trainingSeed,
		OutputDir:    filepath.Join(t.modelsDir, job.JobID+"_model"),
	}

	result, err := t.runtime.Train(ctx, spec, func(p runtime.EpochProgress) {
		// Progress never rewinds within a job.
		if p.Epoch <= job.CurrentEpoch {
			return
		}
		job.CurrentEpoch = p.Epoch
		job.Progress = float64(p.Epoch) / float64(job.Epochs) * 100
		if p.TrainLoss != nil {
			job.FinalLoss = p.TrainLoss
		}
		if p.EvalLoss != nil {
			job.ValidationLoss = p.EvalLoss
		}
		if uerr := t.jobs.UpdateProgress(job.JobID, job.CurrentEpoch, job.Progress, job.FinalLoss, job.ValidationLoss); uerr != nil {
			t.logger.Error("Failed to persist progress", zap.String("job_id", job.JobID), zap.Error(uerr))
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = models.ErrTrainingCancelled
		}
		t.failJob(job, err)
		return
	}

	job.FinalLoss = result.FinalLoss
	job.ValidationLoss = result.ValidationLoss
	job.ModelPath = &result.ModelPath
	job.TokenizerPath = &result.TokenizerPath
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	completed := time.Now().UTC()
	job.CompletedAt = &completed
	duration := int64(completed.Sub(*job.StartedAt).Seconds())
	job.DurationSeconds = &duration

	artifact := t.buildArtifact(job, result)
	if err := t.artifacts.InsertArtifact(artifact); err != nil {
		// Artifact and job record must not diverge; a completed job
		// without its artifact would be an invalid provenance link.
		t.failJob(job, fmt.Errorf("failed to catalog artifact: %w", err))
		return
	}

	if err := t.jobs.UpdateJob(job); err != nil {
		t.logger.Error("Failed to persist completed job", zap.String("job_id", job.JobID), zap.Error(err))
		return
	}

	t.logger.Info("Training job completed",
		zap.String("job_id", job.JobID),
		zap.String("model_id", artifact.ModelID),
		zap.Int64("duration_seconds", duration))
}

func (t *Trainer) failJob(job *models.TrainingJob, cause error) {
	msg := cause.Error()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	completed := time.Now().UTC()
	job.CompletedAt = &completed

	if err := t.jobs.UpdateJob(job); err != nil {
		t.logger.Error("Failed to persist failed job", zap.String("job_id", job.JobID), zap.Error(err))
	}

	t.logger.Error("Training job failed", zap.String("job_id", job.JobID), zap.Error(cause))
}

func (t *Trainer) buildArtifact(job *models.TrainingJob, result *runtime.TrainResult) *models.ModelArtifact {
	displayName := job.DomainName
	if job.NicheName != nil {
		displayName = fmt.Sprintf("%s / %s", job.DomainName, *job.NicheName)
	}

	return &models.ModelArtifact{
		ModelID:          fmt.Sprintf("model_%s_%d", job.DomainID, time.Now().UTC().Unix()),
		Name:             fmt.Sprintf("Fine-tuned %s for %s", job.ModelName, displayName),
		Version:          "1.0",
		DomainID:         job.DomainID,
		DomainName:       job.DomainName,
		NicheID:          job.NicheID,
		NicheName:        job.NicheName,
		BaseModel:        job.ModelName,
		TrainingJobID:    job.JobID,
		TrainingExamples: job.TrainingExamples,
		TrainingEpochs:   job.Epochs,
		FinalLoss:        result.FinalLoss,
		ValidationLoss:   result.ValidationLoss,
		ModelPath:        result.ModelPath,
		TokenizerPath:    result.TokenizerPath,
		IsActive:         true,
	}
}

func applyDefaults(req *models.TrainRequest) {
	if req.ModelName == "" {
		req.ModelName = DefaultBaseModel
	}
	if req.Epochs <= 0 {
		req.Epochs = DefaultEpochs
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.LearningRate <= 0 {
		req.LearningRate = DefaultLearningRate
	}
	if req.MaxLength <= 0 {
		req.MaxLength = DefaultMaxLength
	}
	if req.NicheID != nil && strings.TrimSpace(*req.NicheID) == "" {
		req.NicheID = nil
	}
}
