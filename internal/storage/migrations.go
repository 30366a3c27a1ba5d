package storage

import (
	"fmt"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order. Timestamps are TEXT
// in models.TimeLayout so that ordering is lexical in both dialects.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS patients (
				patient_id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				age INTEGER NOT NULL DEFAULT 0,
				gender TEXT NOT NULL,
				room_number TEXT NOT NULL,
				patient_condition TEXT NOT NULL,
				status TEXT NOT NULL,
				admitted_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			-- Samples are append-only, keyed by (patient, timestamp)
			CREATE TABLE IF NOT EXISTS samples (
				patient_id TEXT NOT NULL,
				ts TEXT NOT NULL,
				device_id TEXT NOT NULL,
				heart_rate DOUBLE PRECISION NOT NULL,
				systolic_bp DOUBLE PRECISION NOT NULL,
				diastolic_bp DOUBLE PRECISION NOT NULL,
				temperature DOUBLE PRECISION NOT NULL,
				oxygen_saturation DOUBLE PRECISION NOT NULL,
				missing INTEGER NOT NULL DEFAULT 0,
				malformed INTEGER NOT NULL DEFAULT 0,
				room_number TEXT NOT NULL,
				patient_condition TEXT NOT NULL,
				sensor_battery_level DOUBLE PRECISION,
				signal_strength DOUBLE PRECISION,
				data_quality TEXT NOT NULL DEFAULT '',
				processed_at TEXT NOT NULL,
				PRIMARY KEY (patient_id, ts)
			);

			CREATE TABLE IF NOT EXISTS threshold_configs (
				patient_id TEXT NOT NULL,
				vital_type TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				threshold_min DOUBLE PRECISION,
				threshold_max DOUBLE PRECISION,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (patient_id, vital_type)
			);

			CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts);
			CREATE INDEX IF NOT EXISTS idx_samples_processed ON samples(processed_at);
		`,
	},
	{
		Version: 2,
		Name:    "alerts",
		Up: `
			CREATE TABLE IF NOT EXISTS alerts (
				patient_id TEXT NOT NULL,
				created_at TEXT NOT NULL,
				alert_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				message TEXT NOT NULL,
				vitals_json TEXT NOT NULL,
				room_number TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'SENT',
				acknowledged_at TEXT,
				expires_at TEXT NOT NULL,
				PRIMARY KEY (patient_id, created_at)
			);

			-- Secondary index: alert id to storage key
			CREATE TABLE IF NOT EXISTS alert_index (
				alert_id TEXT PRIMARY KEY,
				patient_id TEXT NOT NULL,
				created_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_expires ON alerts(expires_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(c *conn) error {
	// Create migrations table if not exists
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = c.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := c.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			c.rebind("INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)"),
			m.Version, m.Name, models.FormatTime(time.Now()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLStorage) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}
