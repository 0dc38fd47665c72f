package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared across storage implementations.
var (
	// ErrNotFound is returned by point lookups that matched zero rows.
	// Not a failure: a valid, empty result.
	ErrNotFound = errors.New("record not found")

	// ErrLoad means the backing store is missing or unreadable.
	// Fatal to the run that needed it.
	ErrLoad = errors.New("failed to load record store")

	// ErrSchema means required columns are absent or malformed.
	// Fatal to the stage that required them.
	ErrSchema = errors.New("schema validation failed")
)

// RecordStore loads and saves raw beneficiary datasets. The engine treats
// ingestion as an external collaborator; the store's only obligations are
// Load, Save and the two failure modes above.
type RecordStore interface {
	// Load reads the full dataset. Fails with ErrLoad when the backing file
	// is missing or unreadable, ErrSchema when required columns are absent.
	Load() (Batch, error)

	// Save persists the dataset, creating parent directories as needed.
	Save(batch Batch) error
}

// PipelineRun records one execution of the scoring pipeline.
type PipelineRun struct {
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	Status         string        `json:"status"`
	RecordCount    int           `json:"recordCount"`
	OutlierCount   int           `json:"outlierCount"`
	HighRiskCount  int           `json:"highRiskCount"`
	DuplicateCount int           `json:"duplicateCount"`
	Duration       time.Duration `json:"-"`
}

// Run status values.
const (
	RunSucceeded = "succeeded"
	RunDegraded  = "degraded"
	RunFailed    = "failed"
)

// ScoreRepository persists pipeline output and serves the read-only query
// layer. Replace operations swap an entire run's output atomically so a
// concurrent reader never observes a half-written table; readers may see
// the previous run's rows while a new run is being written.
type ScoreRepository interface {
	// ReplaceScores atomically replaces the scored record table with the
	// output of a run.
	ReplaceScores(ctx context.Context, records []Record) error

	// ReplaceDuplicatePairs atomically replaces the duplicate pair table.
	ReplaceDuplicatePairs(ctx context.Context, pairs []DuplicatePair) error

	// RecordRun appends run metadata for observability.
	RecordRun(ctx context.Context, run *PipelineRun) error

	// ListAnomalies returns records with anomaly = -1 in stored order,
	// optionally filtered by minimum risk score, capped at limit.
	ListAnomalies(ctx context.Context, minRisk *float64, limit int) ([]Record, error)

	// ListHighRisk returns records with risk_score >= threshold, sorted
	// by descending risk score, capped at limit.
	ListHighRisk(ctx context.Context, threshold float64, limit int) ([]Record, error)

	// GetBeneficiary returns the record for an id, or ErrNotFound.
	GetBeneficiary(ctx context.Context, beneficiaryID int) (*Record, error)

	// ListDuplicatePairs returns pairs ordered by descending similarity,
	// capped at limit.
	ListDuplicatePairs(ctx context.Context, limit int) ([]DuplicatePair, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
