package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect converts a driver name from config to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// driverName returns the database/sql driver registered for d.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// conn pairs a handle with its dialect so repositories can rebind
// placeholders.
type conn struct {
	db      *sql.DB
	dialect Dialect
}

// rebind rewrites ? placeholders to $n for Postgres.
func (c *conn) rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// SQLStorage implements Storage on database/sql.
type SQLStorage struct {
	dialect Dialect
	dsn     string
	db      *sql.DB

	samples    *sqlSampleRepo
	thresholds *sqlThresholdRepo
	alerts     *sqlAlertRepo
	patients   *sqlPatientRepo
}

// New creates a storage for the given dialect and DSN. Call Open before use.
// For SQLite the DSN is a file path or ":memory:".
func New(dialect Dialect, dsn string) *SQLStorage {
	return &SQLStorage{dialect: dialect, dsn: dsn}
}

// NewWithDB wraps an already open handle.
func NewWithDB(db *sql.DB, dialect Dialect) *SQLStorage {
	s := &SQLStorage{dialect: dialect}
	s.attach(db)
	return s
}

func (s *SQLStorage) attach(db *sql.DB) {
	s.db = db
	c := &conn{db: db, dialect: s.dialect}
	s.samples = &sqlSampleRepo{conn: c}
	s.thresholds = &sqlThresholdRepo{conn: c}
	s.alerts = &sqlAlertRepo{conn: c}
	s.patients = &sqlPatientRepo{conn: c}
}

// Open initializes the database connection.
func (s *SQLStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open(s.dialect.driverName(), s.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if s.dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite is single-writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if s.dialect == DialectSQLite {
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return fmt.Errorf("execute %s: %w", pragma, err)
			}
		}
	}

	s.attach(db)
	return nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *SQLStorage) Dialect() Dialect {
	return s.dialect
}

// Migrate runs database migrations.
func (s *SQLStorage) Migrate() error {
	if s.db == nil {
		return fmt.Errorf("database is not open")
	}
	return runMigrations(&conn{db: s.db, dialect: s.dialect})
}

// Samples returns the sample repository.
func (s *SQLStorage) Samples() SampleRepository {
	return s.samples
}

// Thresholds returns the threshold config repository.
func (s *SQLStorage) Thresholds() ThresholdRepository {
	return s.thresholds
}

// Alerts returns the alert repository.
func (s *SQLStorage) Alerts() AlertRepository {
	return s.alerts
}

// Patients returns the patient repository.
func (s *SQLStorage) Patients() PatientRepository {
	return s.patients
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure in either dialect.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// observe records the latency of a storage operation.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StorageQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: models.FormatTime(*t), Valid: true}
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := models.ParseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTime parses a stored timestamp into dst.
func parseTime(src string, dst *time.Time) error {
	t, err := models.ParseTime(src)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", src, err)
	}
	*dst = t
	return nil
}
