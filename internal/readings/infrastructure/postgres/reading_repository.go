package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	readings "thermo-cloud/internal/readings/domain"
)

const defaultReadingsTable = "temperature_readings"

// ReadingRepository is a Postgres implementation for temperature readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
	loc   *time.Location
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

// WithLocation sets the storage time zone of the TIMESTAMP column.
func WithLocation(loc *time.Location) RepositoryOption {
	return func(repo *ReadingRepository) {
		if loc != nil {
			repo.loc = loc
		}
	}
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable, loc: time.Local}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the readings table and its timestamp index.
func (r *ReadingRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("readings repo: nil db")
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL DEFAULT LOCALTIMESTAMP(0),
	t1 DOUBLE PRECISION,
	t2 DOUBLE PRECISION,
	t3 DOUBLE PRECISION,
	sensor_status TEXT NOT NULL DEFAULT 'active'
)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp)`, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return readings.StorageError("ensure schema", err)
		}
	}
	return nil
}

// Insert writes one reading and returns the generated id.
func (r *ReadingRepository) Insert(ctx context.Context, reading readings.Reading) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("readings repo: nil db")
	}
	status := reading.Status
	if status == "" {
		status = readings.StatusActive
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	timestamp,
	t1,
	t2,
	t3,
	sensor_status
) VALUES (
	$1::timestamp, $2, $3, $4, $5
)
RETURNING id`, r.table)

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		query,
		readings.FormatTimestamp(reading.Timestamp, r.loc),
		nullFloat(reading.T1),
		nullFloat(reading.T2),
		nullFloat(reading.T3),
		status,
	).Scan(&id)
	if err != nil {
		return 0, readings.StorageError("insert", err)
	}
	return id, nil
}

// QueryRange returns readings at or after since, newest first.
func (r *ReadingRepository) QueryRange(ctx context.Context, since time.Time, limit int) ([]readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("readings repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, timestamp, t1, t2, t3, sensor_status
FROM %s
WHERE timestamp >= $1::timestamp
ORDER BY timestamp DESC, id DESC`, r.table)
	args := []any{readings.FormatTimestamp(since, r.loc)}
	if limit > 0 {
		query += "\nLIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, readings.StorageError("query", err)
	}
	defer rows.Close()

	result := make([]readings.Reading, 0)
	for rows.Next() {
		var (
			reading    readings.Reading
			ts         time.Time
			t1, t2, t3 sql.NullFloat64
		)
		if err := rows.Scan(&reading.ID, &ts, &t1, &t2, &t3, &reading.Status); err != nil {
			return nil, readings.StorageError("scan", err)
		}
		// TIMESTAMP carries no zone; the driver hands back wall-clock digits in UTC.
		reading.Timestamp = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, r.loc)
		reading.T1 = floatPtr(t1)
		reading.T2 = floatPtr(t2)
		reading.T3 = floatPtr(t3)
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, readings.StorageError("rows", err)
	}
	return result, nil
}

// Count returns the total number of rows.
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("readings repo: nil db")
	}
	var count int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count); err != nil {
		return 0, readings.StorageError("count", err)
	}
	return count, nil
}

// Close closes the underlying pool.
func (r *ReadingRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
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
