package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const runTable = "run_records"

const createRunTable = `CREATE TABLE IF NOT EXISTS run_records (
	run_date    TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	candidates  INTEGER NOT NULL,
	scored      INTEGER NOT NULL,
	record      TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`

// SQLStore persists run records into Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ResultStore = (*SQLStore)(nil)

// OpenSQLStore opens the database, checks connectivity and creates the
// run_records table when missing.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage dsn is empty")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY on concurrent appends
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store, err := NewSQLStore(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database using the placeholder style of driver.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	var format sq.PlaceholderFormat
	switch driver {
	case DriverPostgres:
		format = sq.Dollar
	case DriverSQLite:
		format = sq.Question
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	return &SQLStore{db: db, builder: sq.StatementBuilder.PlaceholderFormat(format)}, nil
}

// Migrate creates the schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRunTable); err != nil {
		return fmt.Errorf("create %s: %w", runTable, err)
	}
	return nil
}

// Append inserts the record; a second record for the same date is refused
// with ErrRunRecorded.
func (s *SQLStore) Append(ctx context.Context, rec domain.RunRecord) error {
	if err := validRunDate(rec.RunDate); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	query, args, err := s.builder.
		Insert(runTable).
		Columns("run_date", "run_id", "mode", "status", "candidates", "scored", "record", "finished_at").
		Values(rec.RunDate, rec.RunID, string(rec.Mode), string(rec.Status.Kind),
			len(rec.Candidates), len(rec.Scored), string(payload), rec.FinishedAt.UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT (run_date) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunRecorded, rec.RunDate)
	}
	return nil
}

// Load returns the record stored for runDate.
func (s *SQLStore) Load(ctx context.Context, runDate string) (domain.RunRecord, error) {
	query, args, err := s.builder.
		Select("record").
		From(runTable).
		Where(sq.Eq{"run_date": runDate}).
		ToSql()
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("build select: %w", err)
	}

	var payload string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runDate)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("select run record: %w", err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return rec, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
