package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/ledger.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, creating the parent directory and
// schema if needed.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "ledger.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." && !strings.HasPrefix(config.Path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Append implements Storage. The run and its results are written in one
// transaction.
func (s *SQLiteStorage) Append(ctx context.Context, record *RunRecord) error {
	if err := validateRecord(record); err != nil {
		return NewStorageError("sqlite", "append", err)
	}

	scope, _ := json.Marshal(record.Scope)
	ruleIDs, _ := json.Marshal(record.RuleIDs)
	counts, _ := json.Marshal(record.Counts)
	usageJSON, _ := json.Marshal(record.Usage)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE job_id = ?`, record.JobID).Scan(&exists)
	switch {
	case err == nil:
		return ErrDuplicate
	case !errors.Is(err, sql.ErrNoRows):
		return NewStorageError("sqlite", "append", err)
	}

	var errVal any
	if record.Error != "" {
		errVal = record.Error
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (job_id, created_at, completed_at, status, error, scope, rule_ids, counts, usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.JobID,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.CompletedAt.UTC().Format(time.RFC3339Nano),
		record.Status, errVal,
		string(scope), string(ruleIDs), string(counts), string(usageJSON),
	)
	if err != nil {
		return NewStorageError("sqlite", "append", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return NewStorageError("sqlite", "append", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (job_id, position, rule_id, subject_id, severity, violated, evaluation_method, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return NewStorageError("sqlite", "prepare", err)
	}
	defer stmt.Close()

	for i, r := range record.Results {
		payload, err := json.Marshal(r)
		if err != nil {
			return NewStorageError("sqlite", "marshal_result", err)
		}
		var violated any
		if r.Violated != nil {
			violated = *r.Violated
		}
		if _, err := stmt.ExecContext(ctx, record.JobID, i, r.RuleID, r.SubjectID, string(r.Severity), violated, string(r.EvaluationMethod), string(payload)); err != nil {
			return NewStorageError("sqlite", "append_result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError("sqlite", "commit", err)
	}
	record.Seq = seq
	return nil
}

// Get implements Storage.
func (s *SQLiteStorage) Get(ctx context.Context, jobID string) (*RunRecord, error) {
	return s.load(ctx, jobID)
}

// List implements Storage.
func (s *SQLiteStorage) List(ctx context.Context, query ListQuery) ([]*RunRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		where []string
		args  []any
	)
	if query.SubjectID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM results r WHERE r.job_id = runs.job_id AND r.subject_id = ?)")
		args = append(args, query.SubjectID)
	}
	if query.RuleID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM results r WHERE r.job_id = runs.job_id AND r.rule_id = ?)")
		args = append(args, query.RuleID)
	}

	q := "SELECT job_id FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY seq DESC LIMIT %d", limit)

	ids, err := s.jobIDs(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*RunRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Scan implements Storage.
func (s *SQLiteStorage) Scan(ctx context.Context, fn func(*RunRecord) error) error {
	ids, err := s.jobIDs(ctx, "SELECT job_id FROM runs ORDER BY seq ASC")
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStorage) jobIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "rows", err)
	}
	return ids, nil
}

func (s *SQLiteStorage) load(ctx context.Context, jobID string) (*RunRecord, error) {
	var (
		rec                            RunRecord
		createdAt, completedAt         string
		errVal                         sql.NullString
		scope, ruleIDs, counts, usages string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, job_id, created_at, completed_at, status, error, scope, rule_ids, counts, usage
		FROM runs WHERE job_id = ?`, jobID,
	).Scan(&rec.Seq, &rec.JobID, &createdAt, &completedAt, &rec.Status, &errVal, &scope, &ruleIDs, &counts, &usages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get", err)
	}

	rec.Error = errVal.String
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, NewStorageError("sqlite", "parse_created_at", err)
	}
	if rec.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
		return nil, NewStorageError("sqlite", "parse_completed_at", err)
	}
	for _, col := range []struct {
		raw string
		dst any
	}{
		{scope, &rec.Scope},
		{ruleIDs, &rec.RuleIDs},
		{counts, &rec.Counts},
		{usages, &rec.Usage},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, NewStorageError("sqlite", "unmarshal", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM results WHERE job_id = ? ORDER BY position`, jobID)
	if err != nil {
		return nil, NewStorageError("sqlite", "get_results", err)
	}
	defer rows.Close()

	rec.Results = []*engine.RuleResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, NewStorageError("sqlite", "scan_result", err)
		}
		var r engine.RuleResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, NewStorageError("sqlite", "unmarshal_result", err)
		}
		rec.Results = append(rec.Results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "rows", err)
	}
	return &rec, nil
}
