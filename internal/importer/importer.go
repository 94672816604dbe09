// Package importer normalizes raw records into training examples,
// deduplicates them, and keeps the per-scope dataset aggregates
// consistent with the stored example set.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/quality"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
)

// batchSize bounds how many examples go into one insert transaction.
const batchSize = 100

// Importer is the training data store's write side.
type Importer struct {
	examples *repository.ExampleRepository
	logger   *zap.Logger
}

// NewImporter creates a new importer.
func NewImporter(examples *repository.ExampleRepository, logger *zap.Logger) *Importer {
	return &Importer{examples: examples, logger: logger}
}

// Scope identifies the (domain, niche) bucket a batch belongs to.
type Scope struct {
	DomainID    string
	DomainName  string
	NicheID     *string
	NicheName   *string
	ContentType string
}

// Import validates, scores and stores a batch of records. Malformed
// records are skipped and counted; they never abort the batch. The
// scope's dataset aggregate is recomputed before returning, so a stats
// query immediately after an import sees the new totals.
func (im *Importer) Import(records []models.RecordInput, scope Scope, sourceFile *string) (*models.ImportResult, error) {
	if scope.ContentType == "" {
		scope.ContentType = "manual"
	}

	result := &models.ImportResult{Errors: []string{}}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := make([]*models.TrainingExample, 0, end-start)
		for i, record := range records[start:end] {
			example, err := im.buildExample(record, scope, sourceFile)
			if err != nil {
				result.SkippedCount++
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", start+i, err))
				continue
			}
			batch = append(batch, example)
		}

		if len(batch) == 0 {
			continue
		}

		inserted, duplicates, err := im.examples.InsertBatch(batch)
		if err != nil {
			return nil, err
		}
		result.ImportedCount += inserted
		// Already-imported content counts as skipped, not as an error.
		result.SkippedCount += duplicates
	}

	if err := im.examples.RecomputeDatasetStats(scope.DomainID, scope.NicheID, scope.DomainName, scope.NicheName); err != nil {
		return nil, fmt.Errorf("failed to recompute dataset stats: %w", err)
	}

	im.logger.Info("Import completed",
		zap.String("domain_id", scope.DomainID),
		zap.Int("imported", result.ImportedCount),
		zap.Int("skipped", result.SkippedCount))

	return result, nil
}

// ImportFile imports one JSON file containing an array of records.
func (im *Importer) ImportFile(path string, scope Scope) (*models.ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []models.RecordInput
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	source := path
	return im.Import(records, scope, &source)
}

// ImportDirectory applies ImportFile to every matching file. One
// failing file never aborts the rest; its error is recorded in its own
// result entry.
func (im *Importer) ImportDirectory(dir, pattern string, scope Scope) (map[string]*models.ImportResult, error) {
	if pattern == "" {
		pattern = "*.json"
	}

	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern: %w", err)
	}
	if len(files) == 0 {
		im.logger.Warn("No files matched for directory import", zap.String("dir", dir), zap.String("pattern", pattern))
	}

	results := make(map[string]*models.ImportResult, len(files))
	for _, file := range files {
		result, err := im.ImportFile(file, scope)
		if err != nil {
			im.logger.Error("Failed to import file", zap.String("file", file), zap.Error(err))
			results[filepath.Base(file)] = &models.ImportResult{Errors: []string{err.Error()}}
			continue
		}
		results[filepath.Base(file)] = result
	}
	return results, nil
}

// AddExample stores a single record, computing its quality metrics
// server-side. Returns the stored example.
func (im *Importer) AddExample(record models.RecordInput, scope Scope) (*models.TrainingExample, error) {
	if scope.ContentType == "" {
		scope.ContentType = "manual"
	}

	example, err := im.buildExample(record, scope, nil)
	if err != nil {
		return nil, err
	}

	inserted, _, err := im.examples.InsertBatch([]*models.TrainingExample{example})
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		return nil, fmt.Errorf("example already imported for this scope")
	}

	if err := im.examples.RecomputeDatasetStats(scope.DomainID, scope.NicheID, scope.DomainName, scope.NicheName); err != nil {
		return nil, fmt.Errorf("failed to recompute dataset stats: %w", err)
	}
	return example, nil
}

// GetDatasetStats exposes the read side for the stats endpoint.
func (im *Importer) GetDatasetStats(domainID string, nicheID *string) (*models.DatasetStats, error) {
	return im.examples.GetDatasetStats(domainID, nicheID)
}

// ListDomains lists all domains with training data.
func (im *Importer) ListDomains() ([]models.DomainSummary, error) {
	return im.examples.ListDomains()
}

// ValidateExample records a manual review of one example.
func (im *Importer) ValidateExample(id int64, notes *string) error {
	return im.examples.ValidateExample(id, notes)
}

// ClearExamples bulk-deletes examples matching the domain and/or niche
// filters. Every cleared scope ends up empty, so the matching aggregate
// rows are pruned rather than recomputed; scopes outside the filter are
// untouched either way.
func (im *Importer) ClearExamples(domainID, nicheID *string) (int64, error) {
	deleted, err := im.examples.ClearExamples(domainID, nicheID)
	if err != nil {
		return 0, err
	}
	if err := im.examples.PruneEmptyDatasets(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// buildExample validates one raw record and produces the persistable
// example with its scores computed.
func (im *Importer) buildExample(record models.RecordInput, scope Scope, sourceFile *string) (*models.TrainingExample, error) {
	prompt := strings.TrimSpace(record.Prompt)
	completion := strings.TrimSpace(record.Completion)

	if prompt == "" || completion == "" {
		return nil, fmt.Errorf("missing prompt or completion")
	}
	if len(prompt) < models.MinPromptLength || len(completion) < models.MinCompletionLength {
		return nil, fmt.Errorf("content too short (prompt >= %d chars, completion >= %d chars)",
			models.MinPromptLength, models.MinCompletionLength)
	}
	if len(prompt) > models.MaxPromptLength || len(completion) > models.MaxCompletionLength {
		return nil, fmt.Errorf("content too long (prompt <= %d chars, completion <= %d chars)",
			models.MaxPromptLength, models.MaxCompletionLength)
	}

	qualityScore := quality.Score(prompt, completion)
	if record.QualityScore != nil {
		if *record.QualityScore < 0 || *record.QualityScore > 1 {
			return nil, fmt.Errorf("quality_score must be between 0 and 1")
		}
		qualityScore = *record.QualityScore
	}

	trainingWeight := 1.0
	if record.TrainingWeight != nil {
		if *record.TrainingWeight < 0 || *record.TrainingWeight > 10 {
			return nil, fmt.Errorf("training_weight must be between 0 and 10")
		}
		trainingWeight = *record.TrainingWeight
	}

	language := record.Language
	if language == "" {
		language = "en"
	}

	hash := sha256.Sum256([]byte(prompt + completion))
	now := time.Now().UTC()

	return &models.TrainingExample{
		Prompt:           prompt,
		Completion:       completion,
		ContentHash:      hex.EncodeToString(hash[:])[:16],
		DomainID:         scope.DomainID,
		DomainName:       scope.DomainName,
		NicheID:          scope.NicheID,
		NicheName:        scope.NicheName,
		ContentType:      scope.ContentType,
		ChapterType:      record.ChapterType,
		TargetAudience:   record.TargetAudience,
		Language:         language,
		QualityScore:     qualityScore,
		WordCount:        quality.WordCount(completion),
		ReadabilityScore: quality.Readability(completion),
		TrainingWeight:   trainingWeight,
		IsValidated:      record.IsValidated,
		ValidationNotes:  record.ValidationNotes,
		SourceFile:       sourceFile,
		SourceURL:        record.SourceURL,
		Tags:             strings.Join(record.Tags, ","),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
