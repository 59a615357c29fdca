package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/devpulse-io/devpulse/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens and migrates a SQLite database at dbPath
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collection_runs (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		window_since TIMESTAMP NOT NULL,
		window_until TIMESTAMP NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		reliable INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_org_started ON collection_runs(org, started_at);

	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		org TEXT NOT NULL,
		repo TEXT NOT NULL,
		actor TEXT NOT NULL,
		environment TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_org_timestamp ON records(org, timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_org_kind_timestamp ON records(org, kind, timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_actor ON records(actor);

	CREATE TABLE IF NOT EXISTS working_sets (
		key TEXT PRIMARY KEY,
		units TEXT NOT NULL,
		resolved_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun stores the run trace and its records in one transaction
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.CollectionRun, records domain.RecordBundle) error {
	rows, err := storage.FlattenBundle(run.ID, records)
	if err != nil {
		return apperrors.NewStorageError("flattening record bundle", err)
	}
	statusJSON, err := json.Marshal(run.Status)
	if err != nil {
		return apperrors.NewStorageError("encoding run status", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("opening transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	reliable := 0
	if run.Reliable {
		reliable = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO collection_runs (id, org, window_since, window_until, started_at, finished_at, status, reliable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Org,
		run.Window.Since,
		run.Window.Until,
		run.StartedAt,
		run.FinishedAt,
		string(statusJSON),
		reliable,
	)
	if err != nil {
		return apperrors.NewStorageError("saving collection run", err)
	}

	// Re-saving a run replaces its records rather than duplicating them
	if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, run.ID); err != nil {
		return apperrors.NewStorageError("clearing previous records", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (run_id, kind, org, repo, actor, environment, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.NewStorageError("preparing record insert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx,
			row.RunID,
			string(row.Kind),
			row.Org,
			row.Repo,
			row.Actor,
			row.Environment,
			row.Timestamp,
			string(row.Data),
		)
		if err != nil {
			return apperrors.NewStorageError("saving record", err)
		}
	}

	return tx.Commit()
}

// LatestRun retrieves the newest run for an organization
func (s *sqliteStorage) LatestRun(ctx context.Context, org string) (*domain.CollectionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org, window_since, window_until, started_at, finished_at, status, reliable
		FROM collection_runs
		WHERE org = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, org)

	var run domain.CollectionRun
	var statusJSON string
	var reliable int
	err := row.Scan(
		&run.ID,
		&run.Org,
		&run.Window.Since,
		&run.Window.Until,
		&run.StartedAt,
		&run.FinishedAt,
		&statusJSON,
		&reliable,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("collection run for %s", org))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("loading latest run", err)
	}

	if err := json.Unmarshal([]byte(statusJSON), &run.Status); err != nil {
		return nil, apperrors.NewStorageError("decoding run status", err)
	}
	run.Reliable = reliable == 1
	return &run, nil
}

// RecordsInWindow rebuilds a bundle from stored records. Corrupted
// rows are skipped, never fatal.
func (s *sqliteStorage) RecordsInWindow(ctx context.Context, org string, w domain.DateWindow) (domain.RecordBundle, error) {
	var bundle domain.RecordBundle

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, data FROM records
		WHERE org = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
	`, org, w.Since, w.Until)
	if err != nil {
		return bundle, apperrors.NewStorageError("querying records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return bundle, apperrors.NewStorageError("scanning record", err)
		}
		if err := storage.AppendRecord(&bundle, domain.RecordKind(kind), []byte(data)); err != nil {
			continue
		}
	}
	if err := rows.Err(); err != nil {
		return bundle, apperrors.NewStorageError("iterating records", err)
	}
	return bundle, nil
}

// GetWorkingSet retrieves a cached working set; misses and corrupted
// entries both come back as (nil, nil)
func (s *sqliteStorage) GetWorkingSet(ctx context.Context, key string) (*domain.CachedWorkingSet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, units, resolved_at FROM working_sets WHERE key = ?
	`, key)

	var ws domain.CachedWorkingSet
	var unitsJSON string
	err := row.Scan(&ws.Key, &unitsJSON, &ws.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("loading working set", err)
	}

	if err := json.Unmarshal([]byte(unitsJSON), &ws.Units); err != nil {
		return nil, nil
	}
	return &ws, nil
}

// PutWorkingSet stores a working set, overwriting any previous entry
func (s *sqliteStorage) PutWorkingSet(ctx context.Context, ws *domain.CachedWorkingSet) error {
	unitsJSON, err := json.Marshal(ws.Units)
	if err != nil {
		return apperrors.NewStorageError("encoding working set", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO working_sets (key, units, resolved_at)
		VALUES (?, ?, ?)
	`, ws.Key, string(unitsJSON), ws.ResolvedAt)
	if err != nil {
		return apperrors.NewStorageError("saving working set", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
