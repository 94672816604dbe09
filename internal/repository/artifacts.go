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

// ArtifactRepository handles persistence for trained model artifacts.
type ArtifactRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(db *sqlx.DB, logger *zap.Logger) *ArtifactRepository {
	return &ArtifactRepository{db: db, logger: logger}
}

const artifactColumns = `id, model_id, name, version, domain_id, domain_name, niche_id, niche_name,
	base_model, training_job_id, training_examples, training_epochs,
	final_loss, validation_loss, model_path, tokenizer_path,
	generation_count, avg_generation_time, last_used,
	is_active, is_default, created_at, updated_at`

func scanArtifact(row interface{ Scan(...interface{}) error }) (*models.ModelArtifact, error) {
	a := &models.ModelArtifact{}
	err := row.Scan(
		&a.ID, &a.ModelID, &a.Name, &a.Version, &a.DomainID, &a.DomainName, &a.NicheID, &a.NicheName,
		&a.BaseModel, &a.TrainingJobID, &a.TrainingExamples, &a.TrainingEpochs,
		&a.FinalLoss, &a.ValidationLoss, &a.ModelPath, &a.TokenizerPath,
		&a.GenerationCount, &a.AvgGenerationTime, &a.LastUsed,
		&a.IsActive, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// InsertArtifact catalogs a newly trained model.
func (r *ArtifactRepository) InsertArtifact(a *models.ModelArtifact) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO model_artifacts (
			model_id, name, version, domain_id, domain_name, niche_id, niche_name,
			base_model, training_job_id, training_examples, training_epochs,
			final_loss, validation_loss, model_path, tokenizer_path,
			generation_count, avg_generation_time,
			is_active, is_default, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		a.ModelID, a.Name, a.Version, a.DomainID, a.DomainName, a.NicheID, a.NicheName,
		a.BaseModel, a.TrainingJobID, a.TrainingExamples, a.TrainingEpochs,
		a.FinalLoss, a.ValidationLoss, a.ModelPath, a.TokenizerPath,
		a.GenerationCount, a.AvgGenerationTime,
		a.IsActive, a.IsDefault, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	id, err := res.LastInsertId()
	if err == nil {
		a.ID = id
	}
	return nil
}

// FindBest returns the active artifact with the lowest final loss for
// the exact scope. nicheID nil matches only domain-level artifacts
// (niche_id IS NULL), never niche-scoped ones.
func (r *ArtifactRepository) FindBest(domainID string, nicheID *string) (*models.ModelArtifact, error) {
	where := "WHERE domain_id = ? AND niche_id IS NULL AND is_active"
	args := []interface{}{domainID}
	if nicheID != nil {
		where = "WHERE domain_id = ? AND niche_id = ? AND is_active"
		args = append(args, *nicheID)
	}

	row := r.db.QueryRow(r.db.Rebind(`
		SELECT `+artifactColumns+` FROM model_artifacts `+where+`
		ORDER BY (final_loss IS NULL), final_loss ASC, created_at DESC LIMIT 1
	`), args...)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact: %w", err)
	}
	return a, nil
}

// GetArtifact retrieves an artifact by its public model id.
func (r *ArtifactRepository) GetArtifact(modelID string) (*models.ModelArtifact, error) {
	row := r.db.QueryRow(r.db.Rebind(`
		SELECT `+artifactColumns+` FROM model_artifacts WHERE model_id = ?
	`), modelID)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns active artifacts newest first, optionally
// filtered by domain.
func (r *ArtifactRepository) ListArtifacts(domainID *string) ([]*models.ModelArtifact, error) {
	where := "WHERE is_active"
	args := []interface{}{}
	if domainID != nil {
		where += " AND domain_id = ?"
		args = append(args, *domainID)
	}

	query := r.db.Rebind(`
		SELECT ` + artifactColumns + ` FROM model_artifacts ` + where + `
		ORDER BY created_at DESC`)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.ModelArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// DeactivateArtifact soft-deactivates an artifact so resolution skips
// it. Artifacts are never deleted.
func (r *ArtifactRepository) DeactivateArtifact(modelID string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE model_artifacts SET is_active = FALSE, updated_at = ? WHERE model_id = ?
	`), time.Now().UTC(), modelID)
	if err != nil {
		return fmt.Errorf("failed to deactivate artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrModelNotFound
	}
	return nil
}

// UpdateUsage persists usage counters for an artifact. Returns the
// number of rows matched so callers can treat a missing artifact as a
// no-op.
func (r *ArtifactRepository) UpdateUsage(modelID string, generationCount int64, avgGenerationTime float64, lastUsed time.Time) (int64, error) {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE model_artifacts
		SET generation_count = ?, avg_generation_time = ?, last_used = ?, updated_at = ?
		WHERE model_id = ?
	`), generationCount, avgGenerationTime, lastUsed, time.Now().UTC(), modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to update artifact usage: %w", err)
	}
	return res.RowsAffected()
}
