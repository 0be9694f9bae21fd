package ledger

// SchemaVersion is the current ledger schema version.
const SchemaVersion = 1

// Schema creates the ledger tables. Runs and results are insert-only.
const Schema = `
-- One row per evaluation job
CREATE TABLE IF NOT EXISTS runs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    scope TEXT NOT NULL,
    rule_ids TEXT NOT NULL,
    counts TEXT NOT NULL,
    usage TEXT NOT NULL
);

-- One row per (job, rule, subject); payload is the full result as JSON
CREATE TABLE IF NOT EXISTS results (
    job_id TEXT NOT NULL REFERENCES runs(job_id),
    position INTEGER NOT NULL,
    rule_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    violated INTEGER,
    evaluation_method TEXT NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (job_id, rule_id, subject_id)
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_subject_id ON results(subject_id);
CREATE INDEX IF NOT EXISTS idx_results_rule_id ON results(rule_id);
CREATE INDEX IF NOT EXISTS idx_results_violated ON results(violated);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
