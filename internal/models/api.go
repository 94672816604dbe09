package models

import "time"

// RecordInput is one raw record as it arrives from an import request or
// a JSON file. Unknown shapes are rejected here, at the boundary.
type RecordInput struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`

	QualityScore    *float64 `json:"quality_score,omitempty"`
	TrainingWeight  *float64 `json:"training_weight,omitempty"`
	ChapterType     *string  `json:"chapter_type,omitempty"`
	TargetAudience  *string  `json:"target_audience,omitempty"`
	Language        string   `json:"language,omitempty"`
	IsValidated     bool     `json:"is_validated,omitempty"`
	ValidationNotes *string  `json:"validation_notes,omitempty"`
	SourceURL       *string  `json:"source_url,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// ImportRequest carries a batch of records plus the scope they belong to.
type ImportRequest struct {
	Records     []RecordInput `json:"records" binding:"required,min=1"`
	DomainID    string        `json:"domain_id" binding:"required"`
	DomainName  string        `json:"domain_name" binding:"required"`
	NicheID     *string       `json:"niche_id,omitempty"`
	NicheName   *string       `json:"niche_name,omitempty"`
	ContentType string        `json:"content_type"`
}

// ImportResult reports partial-failure import semantics: malformed
// records are counted and described, never abort the batch.
type ImportResult struct {
	ImportedCount int      `json:"imported_count"`
	SkippedCount  int      `json:"skipped_count"`
	Errors        []string `json:"errors"`
}

// DatasetStats is the full statistics view for one (domain, niche)
// scope, including the four-band quality histogram.
type DatasetStats struct {
	DomainID   string  `json:"domain_id"`
	DomainName string  `json:"domain_name"`
	NicheID    *string `json:"niche_id,omitempty"`
	NicheName  *string `json:"niche_name,omitempty"`

	TotalExamples      int     `json:"total_examples"`
	ValidatedExamples  int     `json:"validated_examples"`
	AvgQualityScore    float64 `json:"avg_quality_score"`
	TotalWordCount     int     `json:"total_word_count"`
	AvgWordCount       float64 `json:"avg_word_count"`
	IsReadyForTraining bool    `json:"is_ready_for_training"`

	ContentTypes        map[string]int `json:"content_types"`
	ChapterTypes        map[string]int `json:"chapter_types"`
	TargetAudiences     map[string]int `json:"target_audiences"`
	QualityDistribution map[string]int `json:"quality_distribution"`
}

// DomainSummary is one row of the domain listing.
type DomainSummary struct {
	DomainID      string       `json:"domain_id"`
	DomainName    string       `json:"domain_name"`
	TotalExamples int          `json:"total_examples"`
	AvgQuality    float64      `json:"avg_quality"`
	Niches        []NicheEntry `json:"niches"`
	LastUpdated   time.Time    `json:"last_updated"`
}

// NicheEntry names one niche nested under a domain.
type NicheEntry struct {
	NicheID   string `json:"niche_id"`
	NicheName string `json:"niche_name"`
}

// TrainRequest starts a fine-tuning job for a (domain, niche) scope.
type TrainRequest struct {
	DomainID     string  `json:"domain_id" binding:"required"`
	NicheID      *string `json:"niche_id,omitempty"`
	JobName      string  `json:"job_name,omitempty"`
	ModelName    string  `json:"model_name,omitempty"`
	Epochs       int     `json:"epochs,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	MaxLength    int     `json:"max_length,omitempty"`
}

// GenerateRequest carries a single text-generation call.
type GenerateRequest struct {
	Prompt             string  `json:"prompt" binding:"required"`
	DomainID           string  `json:"domain_id" binding:"required"`
	NicheID            *string `json:"niche_id,omitempty"`
	MaxLength          int     `json:"max_length,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	TopP               float64 `json:"top_p,omitempty"`
	TopK               int     `json:"top_k,omitempty"`
	RepetitionPenalty  float64 `json:"repetition_penalty,omitempty"`
	NumReturnSequences int     `json:"num_return_sequences,omitempty"`
}

// GenerateResponse returns the generated sequences plus metadata about
// the artifact that served them.
type GenerateResponse struct {
	GeneratedText  []string               `json:"generated_text"`
	Prompt         string                 `json:"prompt"`
	DomainID       string                 `json:"domain_id"`
	NicheID        *string                `json:"niche_id,omitempty"`
	ModelUsed      string                 `json:"model_used"`
	GenerationTime float64                `json:"generation_time"`
	Metadata       map[string]interface{} `json:"metadata"`
}
