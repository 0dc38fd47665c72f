package repository

// Schema definitions for the Kestrel score store.
// Compatible with both SQLite and PostgreSQL.

// schemaScores holds the full risk output table: raw columns, derived
// features, the anomaly flag (-1 outlier, 1 normal) and the risk score.
// position preserves batch order so "stored order" listings are stable
// across drivers.
const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    beneficiary_id INTEGER PRIMARY KEY,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    phone TEXT NOT NULL,
    address TEXT NOT NULL,
    bank_account BIGINT NOT NULL,
    scheme TEXT NOT NULL,
    amount BIGINT NOT NULL,
    district TEXT NOT NULL,
    date TEXT NOT NULL,
    same_bank_count INTEGER NOT NULL,
    same_address_count INTEGER NOT NULL,
    anomaly INTEGER NOT NULL,
    risk_score REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_anomaly ON scores(anomaly);
CREATE INDEX IF NOT EXISTS idx_scores_risk ON scores(risk_score);
CREATE INDEX IF NOT EXISTS idx_scores_position ON scores(position);
`

const schemaDuplicatePairs = `
CREATE TABLE IF NOT EXISTS duplicate_pairs (
    id_a INTEGER NOT NULL,
    id_b INTEGER NOT NULL,
    similarity INTEGER NOT NULL,
    PRIMARY KEY (id_a, id_b)
);

CREATE INDEX IF NOT EXISTS idx_duplicate_pairs_similarity ON duplicate_pairs(similarity);
`

const schemaPipelineRuns = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    outlier_count INTEGER NOT NULL,
    high_risk_count INTEGER NOT NULL,
    duplicate_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScores,
		schemaDuplicatePairs,
		schemaPipelineRuns,
	}
}
