package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
)

// ExampleRepository handles storage for training examples and the
// per-scope dataset aggregates derived from them.
type ExampleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewExampleRepository creates a new example repository.
func NewExampleRepository(db *sqlx.DB, logger *zap.Logger) *ExampleRepository {
	return &ExampleRepository{db: db, logger: logger}
}

const exampleColumns = `id, prompt, completion, content_hash, domain_id, domain_name,
	niche_id, niche_name, content_type, chapter_type, target_audience, language,
	quality_score, word_count, readability_score, training_weight,
	is_validated, validation_notes, source_file, source_url, tags,
	created_at, updated_at`

func scanExample(rows interface{ Scan(...interface{}) error }) (*models.TrainingExample, error) {
	e := &models.TrainingExample{}
	err := rows.Scan(
		&e.ID, &e.Prompt, &e.Completion, &e.ContentHash, &e.DomainID, &e.DomainName,
		&e.NicheID, &e.NicheName, &e.ContentType, &e.ChapterType, &e.TargetAudience, &e.Language,
		&e.QualityScore, &e.WordCount, &e.ReadabilityScore, &e.TrainingWeight,
		&e.IsValidated, &e.ValidationNotes, &e.SourceFile, &e.SourceURL, &e.Tags,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// InsertBatch inserts a batch of examples inside one transaction. A
// uniqueness conflict on the content hash means the example is already
// imported; it is reported as a duplicate, not an error.
func (r *ExampleRepository) InsertBatch(examples []*models.TrainingExample) (inserted, duplicates int, err error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	query := r.db.Rebind(`
		INSERT INTO training_examples (
			prompt, completion, content_hash, domain_id, domain_name,
			niche_id, niche_name, content_type, chapter_type, target_audience, language,
			quality_score, word_count, readability_score, training_weight,
			is_validated, validation_notes, source_file, source_url, tags,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)

	for _, e := range examples {
		res, execErr := tx.Exec(query,
			e.Prompt, e.Completion, e.ContentHash, e.DomainID, e.DomainName,
			e.NicheID, e.NicheName, e.ContentType, e.ChapterType, e.TargetAudience, e.Language,
			e.QualityScore, e.WordCount, e.ReadabilityScore, e.TrainingWeight,
			e.IsValidated, e.ValidationNotes, e.SourceFile, e.SourceURL, e.Tags,
			e.CreatedAt, e.UpdatedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("failed to insert example: %w", execErr)
			return 0, 0, err
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("failed to read rows affected: %w", raErr)
			return 0, 0, err
		}
		if affected == 0 {
			duplicates++
		} else {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return inserted, duplicates, nil
}

// RecomputeDatasetStats rebuilds the aggregate row for one
// (domain, niche) scope from the underlying examples. Called after
// every import so stats are read-after-write consistent.
func (r *ExampleRepository) RecomputeDatasetStats(domainID string, nicheID *string, domainName string, nicheName *string) error {
	where := "WHERE domain_id = ?"
	args := []interface{}{domainID}
	if nicheID != nil {
		where += " AND niche_id = ?"
		args = append(args, *nicheID)
	}

	var (
		total     int
		validated int
		avgQ      float64
		words     int
	)
	query := r.db.Rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_validated THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(quality_score), 0),
		       COALESCE(SUM(word_count), 0)
		FROM training_examples ` + where)
	if err := r.db.QueryRow(query, args...).Scan(&total, &validated, &avgQ, &words); err != nil {
		return fmt.Errorf("failed to aggregate examples: %w", err)
	}

	dsWhere := "WHERE domain_id = ? AND niche_id IS NULL"
	dsArgs := []interface{}{domainID}
	if nicheID != nil {
		dsWhere = "WHERE domain_id = ? AND niche_id = ?"
		dsArgs = append(dsArgs, *nicheID)
	}

	if total == 0 {
		// Scope was cleared; the aggregate row goes with it.
		_, err := r.db.Exec(r.db.Rebind("DELETE FROM training_datasets "+dsWhere), dsArgs...)
		return err
	}

	now := time.Now().UTC()
	ready := total >= models.ReadyForTrainingThreshold

	updateArgs := append([]interface{}{total, validated, avgQ, words, ready, now}, dsArgs...)
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE training_datasets
		SET total_examples = ?, validated_examples = ?, avg_quality_score = ?,
		    total_word_count = ?, is_ready_for_training = ?, updated_at = ?
		`+dsWhere), updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update dataset stats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = r.db.Exec(r.db.Rebind(`
		INSERT INTO training_datasets (
			domain_id, domain_name, niche_id, niche_name,
			total_examples, validated_examples, avg_quality_score, total_word_count,
			is_ready_for_training, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), domainID, domainName, nicheID, nicheName, total, validated, avgQ, words, ready, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert dataset stats: %w", err)
	}
	return nil
}

// GetDatasetStats returns the full statistics view for one scope,
// including content-type breakdowns and the quality histogram. Returns
// models.ErrNoDataset when no examples match.
func (r *ExampleRepository) GetDatasetStats(domainID string, nicheID *string) (*models.DatasetStats, error) {
	where := "WHERE domain_id = ?"
	args := []interface{}{domainID}
	if nicheID != nil {
		where += " AND niche_id = ?"
		args = append(args, *nicheID)
	}

	stats := &models.DatasetStats{
		DomainID: domainID,
		NicheID:  nicheID,
	}

	overview := r.db.Rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_validated THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(quality_score), 0),
		       COALESCE(SUM(word_count), 0),
		       COALESCE(AVG(word_count), 0)
		FROM training_examples ` + where)
	err := r.db.QueryRow(overview, args...).Scan(
		&stats.TotalExamples, &stats.ValidatedExamples, &stats.AvgQualityScore,
		&stats.TotalWordCount, &stats.AvgWordCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset overview: %w", err)
	}
	if stats.TotalExamples == 0 {
		return nil, models.ErrNoDataset
	}
	stats.IsReadyForTraining = stats.TotalExamples >= models.ReadyForTrainingThreshold

	var nicheName *string
	nameQuery := r.db.Rebind("SELECT domain_name, niche_name FROM training_examples " + where + " LIMIT 1")
	if err := r.db.QueryRow(nameQuery, args...).Scan(&stats.DomainName, &nicheName); err != nil {
		return nil, fmt.Errorf("failed to resolve scope names: %w", err)
	}
	if nicheID != nil {
		stats.NicheName = nicheName
	}

	var berr error
	stats.ContentTypes, berr = r.countBy("content_type", where, args)
	if berr != nil {
		return nil, berr
	}
	stats.ChapterTypes, berr = r.countBy("chapter_type", where, args)
	if berr != nil {
		return nil, berr
	}
	stats.TargetAudiences, berr = r.countBy("target_audience", where, args)
	if berr != nil {
		return nil, berr
	}

	var low, medium, high, excellent int
	hist := r.db.Rebind(`
		SELECT COALESCE(SUM(CASE WHEN quality_score < 0.3 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN quality_score >= 0.3 AND quality_score < 0.6 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN quality_score >= 0.6 AND quality_score < 0.8 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN quality_score >= 0.8 THEN 1 ELSE 0 END), 0)
		FROM training_examples ` + where)
	if err := r.db.QueryRow(hist, args...).Scan(&low, &medium, &high, &excellent); err != nil {
		return nil, fmt.Errorf("failed to query quality distribution: %w", err)
	}
	stats.QualityDistribution = map[string]int{
		"Low (0-0.3)":         low,
		"Medium (0.3-0.6)":    medium,
		"High (0.6-0.8)":      high,
		"Excellent (0.8-1.0)": excellent,
	}

	return stats, nil
}

func (r *ExampleRepository) countBy(column, where string, args []interface{}) (map[string]int, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s, COUNT(*) FROM training_examples %s AND %s IS NOT NULL GROUP BY %s
	`, column, where, column, column))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s breakdown: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// ListByScopeByQuality returns all examples for a scope ordered by
// descending quality score. Used to build training sets.
func (r *ExampleRepository) ListByScopeByQuality(domainID string, nicheID *string) ([]*models.TrainingExample, error) {
	where := "WHERE domain_id = ?"
	args := []interface{}{domainID}
	if nicheID != nil {
		where += " AND niche_id = ?"
		args = append(args, *nicheID)
	}

	query := r.db.Rebind(`
		SELECT ` + exampleColumns + ` FROM training_examples ` + where + `
		ORDER BY quality_score DESC, id ASC`)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var examples []*models.TrainingExample
	for rows.Next() {
		e, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}

// ListExamples returns examples, newest first, optionally filtered by
// domain. A limit of zero or less means no limit; the export endpoint
// relies on that.
func (r *ExampleRepository) ListExamples(domainID *string, limit int) ([]*models.TrainingExample, error) {
	where := ""
	args := []interface{}{}
	if domainID != nil {
		where = "WHERE domain_id = ?"
		args = append(args, *domainID)
	}

	limitClause := ""
	if limit > 0 {
		limitClause = " LIMIT ?"
		args = append(args, limit)
	}

	query := r.db.Rebind(`
		SELECT ` + exampleColumns + ` FROM training_examples ` + where + `
		ORDER BY created_at DESC, id DESC` + limitClause)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var examples []*models.TrainingExample
	for rows.Next() {
		e, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}

// ListDomains lists every domain that has training data, with its
// niches, counts and quality averages.
func (r *ExampleRepository) ListDomains() ([]models.DomainSummary, error) {
	rows, err := r.db.Query(`
		SELECT domain_id, domain_name, COUNT(*), AVG(quality_score), MAX(updated_at)
		FROM training_examples
		GROUP BY domain_id, domain_name
		ORDER BY domain_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query domains: %w", err)
	}
	defer rows.Close()

	var domains []models.DomainSummary
	index := make(map[string]int)
	for rows.Next() {
		var d models.DomainSummary
		// MAX() is an expression column, so the sqlite driver hands the
		// timestamp back as text.
		var lastUpdated string
		if err := rows.Scan(&d.DomainID, &d.DomainName, &d.TotalExamples, &d.AvgQuality, &lastUpdated); err != nil {
			return nil, err
		}
		d.LastUpdated = parseStoredTime(lastUpdated)
		d.Niches = []models.NicheEntry{}
		index[d.DomainID] = len(domains)
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nicheRows, err := r.db.Query(`
		SELECT domain_id, niche_id, COALESCE(niche_name, niche_id)
		FROM training_examples
		WHERE niche_id IS NOT NULL
		GROUP BY domain_id, niche_id, niche_name
		ORDER BY niche_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query niches: %w", err)
	}
	defer nicheRows.Close()

	for nicheRows.Next() {
		var domainID string
		var entry models.NicheEntry
		if err := nicheRows.Scan(&domainID, &entry.NicheID, &entry.NicheName); err != nil {
			return nil, err
		}
		if i, ok := index[domainID]; ok {
			domains[i].Niches = append(domains[i].Niches, entry)
		}
	}
	return domains, nicheRows.Err()
}

func parseStoredTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ValidateExample marks one example as manually reviewed. This is the
// only mutation examples support after import.
func (r *ExampleRepository) ValidateExample(id int64, notes *string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE training_examples
		SET is_validated = TRUE, validation_notes = ?, updated_at = ?
		WHERE id = ?
	`), notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to validate example: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearExamples bulk-deletes examples, optionally scoped by domain
// and/or niche, and returns the number removed. The two filters apply
// independently; a niche filter without a domain clears that niche
// across every domain, never the whole table. The only hard delete in
// the system.
func (r *ExampleRepository) ClearExamples(domainID, nicheID *string) (int64, error) {
	query := "DELETE FROM training_examples"
	conditions := []string{}
	args := []interface{}{}
	if domainID != nil {
		conditions = append(conditions, "domain_id = ?")
		args = append(args, *domainID)
	}
	if nicheID != nil {
		conditions = append(conditions, "niche_id = ?")
		args = append(args, *nicheID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	res, err := r.db.Exec(r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear examples: %w", err)
	}
	return res.RowsAffected()
}

// PruneEmptyDatasets removes aggregate rows whose scope no longer has
// any examples, so a bulk clear cannot leave stale dataset stats
// behind.
func (r *ExampleRepository) PruneEmptyDatasets() error {
	_, err := r.db.Exec(`
		DELETE FROM training_datasets WHERE NOT EXISTS (
			SELECT 1 FROM training_examples e
			WHERE e.domain_id = training_datasets.domain_id
			  AND COALESCE(e.niche_id, '') = COALESCE(training_datasets.niche_id, '')
		)`)
	if err != nil {
		return fmt.Errorf("failed to prune dataset stats: %w", err)
	}
	return nil
}

// GetScopeNames resolves the display names recorded for a scope from
// its first example.
func (r *ExampleRepository) GetScopeNames(domainID string, nicheID *string) (string, *string, error) {
	where := "WHERE domain_id = ?"
	args := []interface{}{domainID}
	if nicheID != nil {
		where += " AND niche_id = ?"
		args = append(args, *nicheID)
	}

	var domainName string
	var nicheName *string
	query := r.db.Rebind("SELECT domain_name, niche_name FROM training_examples " + where + " LIMIT 1")
	err := r.db.QueryRow(query, args...).Scan(&domainName, &nicheName)
	if errors.Is(err, sql.ErrNoRows) {
		return domainID, nicheID, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve scope names: %w", err)
	}
	return domainName, nicheName, nil
}
