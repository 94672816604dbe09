package repository

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // Required for file source
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// NewSQLiteDB opens (and creates if needed) a SQLite database and runs
// the schema migration in-place.
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// :memory: databases shared across the pool.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("SQLite database initialized", zap.String("path", path))
	return db, nil
}

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!")
	return db, nil
}

// MigrateDB runs database migrations for the PostgreSQL backend.
func MigrateDB(db *sqlx.DB, logger *zap.Logger) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		logger.Fatal("Couldn't get database instance for running migrations", zap.Error(err))
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "bookgen_llm", driver)
	if err != nil {
		logger.Fatal("Couldn't create migrate instance", zap.Error(err))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Couldn't run database migration", zap.Error(err))
	}

	logger.Info("Database migration was run successfully")
}

func migrateSQLite(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_examples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL,
		completion TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		domain_name TEXT NOT NULL,
		niche_id TEXT,
		niche_name TEXT,
		content_type TEXT NOT NULL DEFAULT 'manual',
		chapter_type TEXT,
		target_audience TEXT,
		language TEXT NOT NULL DEFAULT 'en',
		quality_score REAL NOT NULL DEFAULT 0.5,
		word_count INTEGER NOT NULL DEFAULT 0,
		readability_score REAL NOT NULL DEFAULT 50,
		training_weight REAL NOT NULL DEFAULT 1.0,
		is_validated BOOLEAN NOT NULL DEFAULT 0,
		validation_notes TEXT,
		source_file TEXT,
		source_url TEXT,
		tags TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_examples_content
		ON training_examples(domain_id, COALESCE(niche_id, ''), content_hash);
	CREATE INDEX IF NOT EXISTS idx_examples_scope
		ON training_examples(domain_id, niche_id, quality_score);
	CREATE INDEX IF NOT EXISTS idx_examples_validated
		ON training_examples(is_validated);

	CREATE TABLE IF NOT EXISTS training_datasets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain_id TEXT NOT NULL,
		domain_name TEXT NOT NULL,
		niche_id TEXT,
		niche_name TEXT,
		total_examples INTEGER NOT NULL DEFAULT 0,
		validated_examples INTEGER NOT NULL DEFAULT 0,
		avg_quality_score REAL NOT NULL DEFAULT 0,
		total_word_count INTEGER NOT NULL DEFAULT 0,
		is_ready_for_training BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_datasets_scope
		ON training_datasets(domain_id, COALESCE(niche_id, ''));

	CREATE TABLE IF NOT EXISTS training_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		domain_name TEXT NOT NULL,
		niche_id TEXT,
		niche_name TEXT,
		model_name TEXT NOT NULL,
		epochs INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		learning_rate REAL NOT NULL,
		max_length INTEGER NOT NULL,
		total_examples INTEGER NOT NULL DEFAULT 0,
		training_examples INTEGER NOT NULL DEFAULT 0,
		validation_examples INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		current_epoch INTEGER NOT NULL DEFAULT 0,
		final_loss REAL,
		validation_loss REAL,
		model_path TEXT,
		tokenizer_path TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		duration_seconds INTEGER,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_scope ON training_jobs(domain_id, niche_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON training_jobs(status);

	CREATE TABLE IF NOT EXISTS model_artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		domain_name TEXT NOT NULL,
		niche_id TEXT,
		niche_name TEXT,
		base_model TEXT NOT NULL,
		training_job_id TEXT NOT NULL,
		training_examples INTEGER NOT NULL DEFAULT 0,
		training_epochs INTEGER NOT NULL DEFAULT 0,
		final_loss REAL,
		validation_loss REAL,
		model_path TEXT NOT NULL,
		tokenizer_path TEXT NOT NULL,
		generation_count INTEGER NOT NULL DEFAULT 0,
		avg_generation_time REAL NOT NULL DEFAULT 0,
		last_used DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_scope ON model_artifacts(domain_id, niche_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_active ON model_artifacts(is_active);
	`

	_, err := db.Exec(schema)
	return err
}
