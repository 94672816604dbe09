package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
)

// JobRepository handles persistence for training jobs. Progress writes
// are durable so a status query observes them mid-run.
type JobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobColumns = `id, job_id, name, domain_id, domain_name, niche_id, niche_name,
	model_name, epochs, batch_size, learning_rate, max_length,
	total_examples, training_examples, validation_examples,
	status, progress, current_epoch, final_loss, validation_loss,
	model_path, tokenizer_path, started_at, completed_at, duration_seconds,
	error_message, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.TrainingJob, error) {
	j := &models.TrainingJob{}
	err := row.Scan(
		&j.ID, &j.JobID, &j.Name, &j.DomainID, &j.DomainName, &j.NicheID, &j.NicheName,
		&j.ModelName, &j.Epochs, &j.BatchSize, &j.LearningRate, &j.MaxLength,
		&j.TotalExamples, &j.TrainingExamples, &j.ValidationExamples,
		&j.Status, &j.Progress, &j.CurrentEpoch, &j.FinalLoss, &j.ValidationLoss,
		&j.ModelPath, &j.TokenizerPath, &j.StartedAt, &j.CompletedAt, &j.DurationSeconds,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CreateJob inserts a new pending job record.
func (r *JobRepository) CreateJob(job *models.TrainingJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	res, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO training_jobs (
			job_id, name, domain_id, domain_name, niche_id, niche_name,
			model_name, epochs, batch_size, learning_rate, max_length,
			total_examples, training_examples, validation_examples,
			status, progress, current_epoch, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		job.JobID, job.Name, job.DomainID, job.DomainName, job.NicheID, job.NicheName,
		job.ModelName, job.Epochs, job.BatchSize, job.LearningRate, job.MaxLength,
		job.TotalExamples, job.TrainingExamples, job.ValidationExamples,
		job.Status, job.Progress, job.CurrentEpoch, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := res.LastInsertId()
	if err == nil {
		job.ID = id
	}
	return nil
}

// UpdateJob writes the full mutable portion of a job record.
func (r *JobRepository) UpdateJob(job *models.TrainingJob) error {
	job.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(r.db.Rebind(`
		UPDATE training_jobs
		SET total_examples = ?, training_examples = ?, validation_examples = ?,
		    status = ?, progress = ?, current_epoch = ?,
		    final_loss = ?, validation_loss = ?,
		    model_path = ?, tokenizer_path = ?,
		    started_at = ?, completed_at = ?, duration_seconds = ?,
		    error_message = ?, updated_at = ?
		WHERE job_id = ?
	`),
		job.TotalExamples, job.TrainingExamples, job.ValidationExamples,
		job.Status, job.Progress, job.CurrentEpoch,
		job.FinalLoss, job.ValidationLoss,
		job.ModelPath, job.TokenizerPath,
		job.StartedAt, job.CompletedAt, job.DurationSeconds,
		job.ErrorMessage, job.UpdatedAt,
		job.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// UpdateProgress persists the epoch-boundary progress fields only.
func (r *JobRepository) UpdateProgress(jobID string, currentEpoch int, progress float64, finalLoss, validationLoss *float64) error {
	_, err := r.db.Exec(r.db.Rebind(`
		UPDATE training_jobs
		SET current_epoch = ?, progress = ?, final_loss = ?, validation_loss = ?, updated_at = ?
		WHERE job_id = ?
	`), currentEpoch, progress, finalLoss, validationLoss, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// GetJob retrieves a job by its public id.
func (r *JobRepository) GetJob(jobID string) (*models.TrainingJob, error) {
	row := r.db.QueryRow(r.db.Rebind(`
		SELECT `+jobColumns+` FROM training_jobs WHERE job_id = ?
	`), jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by domain.
func (r *JobRepository) ListJobs(domainID *string, limit int) ([]*models.TrainingJob, error) {
	where := ""
	args := []interface{}{}
	if domainID != nil {
		where = "WHERE domain_id = ?"
		args = append(args, *domainID)
	}
	args = append(args, limit)

	query := r.db.Rebind(`
		SELECT ` + jobColumns + ` FROM training_jobs ` + where + `
		ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
