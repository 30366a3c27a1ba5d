package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

const sampleColumns = `patient_id, ts, device_id, heart_rate, systolic_bp, diastolic_bp,
	temperature, oxygen_saturation, missing, malformed, room_number, patient_condition,
	sensor_battery_level, signal_strength, data_quality, processed_at`

type sqlSampleRepo struct {
	conn *conn
}

func (r *sqlSampleRepo) Put(ctx context.Context, s *models.Sample) error {
	defer observe("sample_put")()

	query := `INSERT INTO samples (` + sampleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.conn.db.ExecContext(ctx, r.conn.rebind(query),
		s.PatientID, models.FormatTime(s.Timestamp), s.DeviceID,
		s.HeartRate, s.SystolicBP, s.DiastolicBP, s.Temperature, s.OxygenSaturation,
		int(s.Missing), int(s.Malformed), s.RoomNumber, s.PatientCondition,
		nullFloat(s.SensorBatteryLevel), nullFloat(s.SignalStrength), s.DataQuality,
		models.FormatTime(s.ProcessedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert sample %s@%s: %w", s.PatientID, models.FormatTime(s.Timestamp), models.ErrConflict)
		}
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (r *sqlSampleRepo) Latest(ctx context.Context, patientID string) (*models.Sample, error) {
	defer observe("sample_latest")()

	query := `SELECT ` + sampleColumns + ` FROM samples
		WHERE patient_id = ? ORDER BY ts DESC LIMIT 1`
	s, err := scanSample(r.conn.db.QueryRowContext(ctx, r.conn.rebind(query), patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no samples for patient %s: %w", patientID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest sample: %w", err)
	}
	return s, nil
}

func (r *sqlSampleRepo) Range(ctx context.Context, patientID string, start, end time.Time, limit int) ([]*models.Sample, error) {
	defer observe("sample_range")()

	query := `SELECT ` + sampleColumns + ` FROM samples
		WHERE patient_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC LIMIT ?`
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query),
		patientID, models.FormatTime(start), models.FormatTime(end), limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (r *sqlSampleRepo) Recent(ctx context.Context, since time.Time, limit int) ([]*models.Sample, error) {
	defer observe("sample_recent")()

	query := `SELECT ` + sampleColumns + ` FROM samples
		WHERE ts >= ? ORDER BY ts DESC LIMIT ?`
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), models.FormatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (r *sqlSampleRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	defer observe("sample_delete_before")()

	result, err := r.conn.db.ExecContext(ctx,
		r.conn.rebind("DELETE FROM samples WHERE processed_at < ?"), models.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (*models.Sample, error) {
	var (
		s                 models.Sample
		ts, processedAt   string
		missing, malforms int
		battery, signal   sql.NullFloat64
	)
	err := row.Scan(
		&s.PatientID, &ts, &s.DeviceID,
		&s.HeartRate, &s.SystolicBP, &s.DiastolicBP, &s.Temperature, &s.OxygenSaturation,
		&missing, &malforms, &s.RoomNumber, &s.PatientCondition,
		&battery, &signal, &s.DataQuality, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := parseTime(ts, &s.Timestamp); err != nil {
		return nil, err
	}
	if err := parseTime(processedAt, &s.ProcessedAt); err != nil {
		return nil, err
	}
	s.Missing = models.VitalSet(missing)
	s.Malformed = models.VitalSet(malforms)
	s.SensorBatteryLevel = floatPtr(battery)
	s.SignalStrength = floatPtr(signal)
	return &s, nil
}

func scanSamples(rows *sql.Rows) ([]*models.Sample, error) {
	var samples []*models.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}
