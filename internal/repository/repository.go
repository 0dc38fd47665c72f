// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidInput marks rejected arguments such as non-positive limits.
var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.ScoreRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers. Replace operations run in
// a single transaction, so readers either see the previous run's rows or
// the new run's rows, never a mix.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.ScoreRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceScores atomically swaps the scores table for a new run's output.
func (r *SQLRepository) ReplaceScores(ctx context.Context, records []domain.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace scores: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores`); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}

	query := `
		INSERT INTO scores (
			beneficiary_id, position, name, phone, address, bank_account,
			scheme, amount, district, date,
			same_bank_count, same_address_count, anomaly, risk_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if _, err := stmt.ExecContext(ctx,
			rec.BeneficiaryID, i, rec.Name, rec.Phone, rec.Address, rec.BankAccount,
			rec.Scheme, rec.Amount, rec.District, rec.Date,
			rec.SameBankCount, rec.SameAddressCount, rec.Anomaly, rec.RiskScore,
		); err != nil {
			return fmt.Errorf("insert score for %d: %w", rec.BeneficiaryID, err)
		}
	}

	return tx.Commit()
}

// ReplaceDuplicatePairs atomically swaps the duplicate pair table.
func (r *SQLRepository) ReplaceDuplicatePairs(ctx context.Context, pairs []domain.DuplicatePair) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace pairs: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM duplicate_pairs`); err != nil {
		return fmt.Errorf("clear pairs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(
		`INSERT INTO duplicate_pairs (id_a, id_b, similarity) VALUES (?, ?, ?)`,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.IDA, p.IDB, p.Similarity); err != nil {
			return fmt.Errorf("insert pair (%d,%d): %w", p.IDA, p.IDB, err)
		}
	}

	return tx.Commit()
}

// RecordRun appends a pipeline run record.
func (r *SQLRepository) RecordRun(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			id, started_at, finished_at, status,
			record_count, outlier_count, high_risk_count, duplicate_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, run.StartedAt, run.FinishedAt, run.Status,
		run.RecordCount, run.OutlierCount, run.HighRiskCount, run.DuplicateCount,
	)
	return err
}

// ListAnomalies returns flagged records in stored order, optionally
// filtered by minimum risk score.
func (r *SQLRepository) ListAnomalies(ctx context.Context, minRisk *float64, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT ` + scoreColumns + `
		FROM scores
		WHERE anomaly = ?
	`
	args := []any{domain.AnomalyOutlier}

	if minRisk != nil {
		query += ` AND risk_score >= ?`
		args = append(args, *minRisk)
	}
	query += ` ORDER BY position LIMIT ?`
	args = append(args, limit)

	return r.queryRecords(ctx, query, args...)
}

// ListHighRisk returns records at or above the threshold, highest risk
// first.
func (r *SQLRepository) ListHighRisk(ctx context.Context, threshold float64, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT ` + scoreColumns + `
		FROM scores
		WHERE risk_score >= ?
		ORDER BY risk_score DESC, position
		LIMIT ?
	`
	return r.queryRecords(ctx, query, threshold, limit)
}

// GetBeneficiary retrieves a single record by id.
func (r *SQLRepository) GetBeneficiary(ctx context.Context, beneficiaryID int) (*domain.Record, error) {
	query := `
		SELECT ` + scoreColumns + `
		FROM scores
		WHERE beneficiary_id = ?
	`

	var rec domain.Record
	err := r.db.QueryRowContext(ctx, r.rebind(query), beneficiaryID).Scan(scanTargets(&rec)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDuplicatePairs returns pairs by descending similarity.
func (r *SQLRepository) ListDuplicatePairs(ctx context.Context, limit int) ([]domain.DuplicatePair, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT id_a, id_b, similarity
		FROM duplicate_pairs
		ORDER BY similarity DESC, id_a, id_b
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([]domain.DuplicatePair, 0)
	for rows.Next() {
		var p domain.DuplicatePair
		if err := rows.Scan(&p.IDA, &p.IDB, &p.Similarity); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const scoreColumns = `beneficiary_id, name, phone, address, bank_account,
		scheme, amount, district, date,
		same_bank_count, same_address_count, anomaly, risk_score`

func scanTargets(rec *domain.Record) []any {
	return []any{
		&rec.BeneficiaryID, &rec.Name, &rec.Phone, &rec.Address, &rec.BankAccount,
		&rec.Scheme, &rec.Amount, &rec.District, &rec.Date,
		&rec.SameBankCount, &rec.SameAddressCount, &rec.Anomaly, &rec.RiskScore,
	}
}

func (r *SQLRepository) queryRecords(ctx context.Context, query string, args ...any) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(scanTargets(&rec)...); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
