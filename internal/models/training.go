package models

import "time"

// Minimum content lengths enforced at the import boundary. Records
// shorter than this are skipped, never stored.
const (
	MinPromptLength     = 10
	MaxPromptLength     = 2048
	MinCompletionLength = 50
	MaxCompletionLength = 8192
)

// ReadyForTrainingThreshold is the minimum number of examples a
// (domain, niche) dataset needs before training is worthwhile.
const ReadyForTrainingThreshold = 50

// TrainingExample is a single prompt/completion pair scoped to a domain
// and optional niche. Quality metrics are computed before persistence.
type TrainingExample struct {
	ID          int64   `json:"id" db:"id"`
	Prompt      string  `json:"prompt" db:"prompt"`
	Completion  string  `json:"completion" db:"completion"`
	ContentHash string  `json:"-" db:"content_hash"`
	DomainID    string  `json:"domain_id" db:"domain_id"`
	DomainName  string  `json:"domain_name" db:"domain_name"`
	NicheID     *string `json:"niche_id,omitempty" db:"niche_id"`
	NicheName   *string `json:"niche_name,omitempty" db:"niche_name"`

	ContentType    string  `json:"content_type" db:"content_type"`
	ChapterType    *string `json:"chapter_type,omitempty" db:"chapter_type"`
	TargetAudience *string `json:"target_audience,omitempty" db:"target_audience"`
	Language       string  `json:"language" db:"language"`

	QualityScore     float64 `json:"quality_score" db:"quality_score"`
	WordCount        int     `json:"word_count" db:"word_count"`
	ReadabilityScore float64 `json:"readability_score" db:"readability_score"`
	TrainingWeight   float64 `json:"training_weight" db:"training_weight"`

	IsValidated     bool    `json:"is_validated" db:"is_validated"`
	ValidationNotes *string `json:"validation_notes,omitempty" db:"validation_notes"`

	SourceFile *string `json:"source_file,omitempty" db:"source_file"`
	SourceURL  *string `json:"source_url,omitempty" db:"source_url"`
	Tags       string  `json:"tags,omitempty" db:"tags"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TrainingDataset is the aggregate record for one (domain, niche)
// scope. It is fully recomputed after every import call.
type TrainingDataset struct {
	ID         int64   `json:"id" db:"id"`
	DomainID   string  `json:"domain_id" db:"domain_id"`
	DomainName string  `json:"domain_name" db:"domain_name"`
	NicheID    *string `json:"niche_id,omitempty" db:"niche_id"`
	NicheName  *string `json:"niche_name,omitempty" db:"niche_name"`

	TotalExamples      int     `json:"total_examples" db:"total_examples"`
	ValidatedExamples  int     `json:"validated_examples" db:"validated_examples"`
	AvgQualityScore    float64 `json:"avg_quality_score" db:"avg_quality_score"`
	TotalWordCount     int     `json:"total_word_count" db:"total_word_count"`
	IsReadyForTraining bool    `json:"is_ready_for_training" db:"is_ready_for_training"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Job status values. Once a job leaves "pending" its record is
// append-only; "completed" and "failed" are terminal.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// TrainingJob tracks one fine-tuning run. Owned exclusively by the
// trainer; at most one job is running system-wide.
type TrainingJob struct {
	ID         int64   `json:"-" db:"id"`
	JobID      string  `json:"job_id" db:"job_id"`
	Name       string  `json:"name" db:"name"`
	DomainID   string  `json:"domain_id" db:"domain_id"`
	DomainName string  `json:"domain_name" db:"domain_name"`
	NicheID    *string `json:"niche_id,omitempty" db:"niche_id"`
	NicheName  *string `json:"niche_name,omitempty" db:"niche_name"`

	ModelName    string  `json:"model_name" db:"model_name"`
	Epochs       int     `json:"epochs" db:"epochs"`
	BatchSize    int     `json:"batch_size" db:"batch_size"`
	LearningRate float64 `json:"learning_rate" db:"learning_rate"`
	MaxLength    int     `json:"max_length" db:"max_length"`

	TotalExamples      int `json:"total_examples" db:"total_examples"`
	TrainingExamples   int `json:"training_examples" db:"training_examples"`
	ValidationExamples int `json:"validation_examples" db:"validation_examples"`

	Status       string  `json:"status" db:"status"`
	Progress     float64 `json:"progress" db:"progress"`
	CurrentEpoch int     `json:"current_epoch" db:"current_epoch"`

	FinalLoss      *float64 `json:"final_loss,omitempty" db:"final_loss"`
	ValidationLoss *float64 `json:"validation_loss,omitempty" db:"validation_loss"`

	ModelPath     *string `json:"model_path,omitempty" db:"model_path"`
	TokenizerPath *string `json:"tokenizer_path,omitempty" db:"tokenizer_path"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty" db:"duration_seconds"`
	ErrorMessage    *string    `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ModelArtifact is the catalog record for one trained model. Artifacts
// are soft-deactivated, never deleted.
type ModelArtifact struct {
	ID         int64   `json:"-" db:"id"`
	ModelID    string  `json:"model_id" db:"model_id"`
	Name       string  `json:"name" db:"name"`
	Version    string  `json:"version" db:"version"`
	DomainID   string  `json:"domain_id" db:"domain_id"`
	DomainName string  `json:"domain_name" db:"domain_name"`
	NicheID    *string `json:"niche_id,omitempty" db:"niche_id"`
	NicheName  *string `json:"niche_name,omitempty" db:"niche_name"`

	BaseModel     string `json:"base_model" db:"base_model"`
	TrainingJobID string `json:"training_job_id" db:"training_job_id"`

	TrainingExamples int      `json:"training_examples" db:"training_examples"`
	TrainingEpochs   int      `json:"training_epochs" db:"training_epochs"`
	FinalLoss        *float64 `json:"final_loss,omitempty" db:"final_loss"`
	ValidationLoss   *float64 `json:"validation_loss,omitempty" db:"validation_loss"`

	ModelPath     string `json:"model_path" db:"model_path"`
	TokenizerPath string `json:"tokenizer_path" db:"tokenizer_path"`

	GenerationCount   int64      `json:"generation_count" db:"generation_count"`
	AvgGenerationTime float64    `json:"avg_generation_time" db:"avg_generation_time"`
	LastUsed          *time.Time `json:"last_used,omitempty" db:"last_used"`

	IsActive  bool `json:"is_active" db:"is_active"`
	IsDefault bool `json:"is_default" db:"is_default"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
