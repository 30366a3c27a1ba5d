// Package storage provides the record store interfaces and their
// database/sql implementation.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// DB returns the underlying connection for health checks.
	DB() *sql.DB

	// Repository accessors
	Samples() SampleRepository
	Thresholds() ThresholdRepository
	Alerts() AlertRepository
	Patients() PatientRepository
}

// SampleRepository stores vital-sign samples append-only.
type SampleRepository interface {
	// Put inserts a sample. A sample with the same (patient, timestamp)
	// key yields models.ErrConflict and is not overwritten.
	Put(ctx context.Context, s *models.Sample) error
	Latest(ctx context.Context, patientID string) (*models.Sample, error)
	// Range returns samples in [start, end], most recent first.
	Range(ctx context.Context, patientID string, start, end time.Time, limit int) ([]*models.Sample, error)
	// Recent returns the newest samples of all patients since the given time.
	Recent(ctx context.Context, since time.Time, limit int) ([]*models.Sample, error)
	// DeleteBefore removes samples processed before the given time.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ThresholdRepository stores per-patient threshold configs.
type ThresholdRepository interface {
	// Put creates or replaces a config.
	Put(ctx context.Context, c *models.ThresholdConfig) error
	Get(ctx context.Context, patientID string, vital models.VitalType) (*models.ThresholdConfig, error)
	// Update replaces an existing config, or returns models.ErrNotFound.
	Update(ctx context.Context, c *models.ThresholdConfig) error
	Delete(ctx context.Context, patientID string, vital models.VitalType) error
	ListByPatient(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error)
	ListEnabled(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error)
}

// AlertFilter selects alerts for listing. Zero fields do not filter,
// except Since and Until which must be set.
type AlertFilter struct {
	PatientID string
	Since     time.Time
	Until     time.Time
	Kind      models.AlertKind
	Status    models.AlertStatus
	Limit     int
}

// AlertRepository stores alerts and the alert id index.
type AlertRepository interface {
	// Create writes the alert and its index row in one transaction.
	// An existing key yields models.ErrConflict.
	Create(ctx context.Context, a *models.Alert) error
	// Resolve maps an alert id to its storage key.
	Resolve(ctx context.Context, alertID string) (models.AlertKey, error)
	Get(ctx context.Context, key models.AlertKey) (*models.Alert, error)
	// Acknowledge transitions a SENT alert to ACKNOWLEDGED. It reports
	// false when no row changed.
	Acknowledge(ctx context.Context, key models.AlertKey, at time.Time) (bool, error)
	List(ctx context.Context, f AlertFilter) ([]*models.Alert, error)
	// DeleteExpired removes alerts whose expiry is before now,
	// together with their index rows.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PatientRepository stores patient records.
type PatientRepository interface {
	// Create inserts a patient. An existing id yields models.ErrConflict.
	Create(ctx context.Context, p *models.PatientInfo) error
	Get(ctx context.Context, id string) (*models.PatientInfo, error)
}
