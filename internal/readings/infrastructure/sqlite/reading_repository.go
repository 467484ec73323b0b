package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	readings "thermo-cloud/internal/readings/domain"
)

const defaultReadingsTable = "temperature_readings"

// ReadingRepository stores readings in a SQLite file.
type ReadingRepository struct {
	db    *sql.DB
	table string
	loc   *time.Location
	// go-sqlite3 allows one writer at a time; serialize here instead of relying on busy retries.
	writeMu sync.Mutex
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithLocation sets the storage time zone used for timestamp text.
func WithLocation(loc *time.Location) RepositoryOption {
	return func(repo *ReadingRepository) {
		if loc != nil {
			repo.loc = loc
		}
	}
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string, opts ...RepositoryOption) (*ReadingRepository, error) {
	if path == "" {
		return nil, errors.New("sqlite readings: empty path")
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	repo, err := NewReadingRepository(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewReadingRepository wraps an existing handle and creates the schema.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) (*ReadingRepository, error) {
	if db == nil {
		return nil, errors.New("sqlite readings: nil db")
	}
	repo := &ReadingRepository{db: db, table: defaultReadingsTable, loc: time.Local}
	for _, opt := range opts {
		opt(repo)
	}
	if err := repo.createTables(); err != nil {
		return nil, err
	}
	return repo, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
}

func (r *ReadingRepository) createTables() error {
	_, err := r.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			t1 REAL,
			t2 REAL,
			t3 REAL,
			sensor_status TEXT DEFAULT 'active'
		);
		CREATE INDEX IF NOT EXISTS idx_timestamp ON %[1]s(timestamp);
	`, r.table))
	if err != nil {
		return readings.StorageError("create tables", err)
	}
	return nil
}

// Insert writes one reading and returns its AUTOINCREMENT id.
func (r *ReadingRepository) Insert(ctx context.Context, reading readings.Reading) (int64, error) {
	status := reading.Status
	if status == "" {
		status = readings.StatusActive
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (timestamp, t1, t2, t3, sensor_status) VALUES (?, ?, ?, ?, ?)`, r.table),
		readings.FormatTimestamp(reading.Timestamp, r.loc),
		nullFloat(reading.T1),
		nullFloat(reading.T2),
		nullFloat(reading.T3),
		status,
	)
	if err != nil {
		return 0, readings.StorageError("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, readings.StorageError("insert id", err)
	}
	return id, nil
}

// QueryRange returns readings at or after since, newest first.
func (r *ReadingRepository) QueryRange(ctx context.Context, since time.Time, limit int) ([]readings.Reading, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, timestamp, t1, t2, t3, sensor_status FROM %s
		 WHERE timestamp >= ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, r.table),
		readings.FormatTimestamp(since, r.loc), limit,
	)
	if err != nil {
		return nil, readings.StorageError("query", err)
	}
	defer rows.Close()

	result := make([]readings.Reading, 0)
	for rows.Next() {
		var (
			reading readings.Reading
			rawTS   any
			t1      sql.NullFloat64
			t2      sql.NullFloat64
			t3      sql.NullFloat64
			status  sql.NullString
		)
		if err := rows.Scan(&reading.ID, &rawTS, &t1, &t2, &t3, &status); err != nil {
			return nil, readings.StorageError("scan", err)
		}
		ts, err := r.parseStoredTimestamp(rawTS)
		if err != nil {
			return nil, readings.StorageError("scan timestamp", err)
		}
		reading.Timestamp = ts
		reading.T1 = floatPtr(t1)
		reading.T2 = floatPtr(t2)
		reading.T3 = floatPtr(t3)
		reading.Status = readings.StatusActive
		if status.Valid && status.String != "" {
			reading.Status = status.String
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, readings.StorageError("rows", err)
	}
	return result, nil
}

// Count returns the total number of rows.
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count); err != nil {
		return 0, readings.StorageError("count", err)
	}
	return count, nil
}

// Close closes the database.
func (r *ReadingRepository) Close() error {
	return r.db.Close()
}

// parseStoredTimestamp accepts the text we write as well as driver-parsed DATETIME
// values from files created by older tooling; both carry storage wall-clock time.
func (r *ReadingRepository) parseStoredTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), 0, r.loc), nil
	case string:
		return parseText(v, r.loc)
	case []byte:
		return parseText(string(v), r.loc)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", raw)
	}
}

func parseText(value string, loc *time.Location) (time.Time, error) {
	if ts, ok := readings.ParseTimestamp(value, loc); ok {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
