package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

const thresholdColumns = `patient_id, vital_type, enabled, threshold_min, threshold_max, created_at, updated_at`

type sqlThresholdRepo struct {
	conn *conn
}

func (r *sqlThresholdRepo) Put(ctx context.Context, c *models.ThresholdConfig) error {
	defer observe("threshold_put")()

	query := `
		INSERT INTO threshold_configs (` + thresholdColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (patient_id, vital_type) DO UPDATE SET
			enabled = excluded.enabled,
			threshold_min = excluded.threshold_min,
			threshold_max = excluded.threshold_max,
			updated_at = excluded.updated_at
	`
	_, err := r.conn.db.ExecContext(ctx, r.conn.rebind(query),
		c.PatientID, string(c.VitalType), boolToInt(c.Enabled),
		nullFloat(c.Min), nullFloat(c.Max),
		models.FormatTime(c.CreatedAt), models.FormatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert threshold config: %w", err)
	}
	return nil
}

func (r *sqlThresholdRepo) Get(ctx context.Context, patientID string, vital models.VitalType) (*models.ThresholdConfig, error) {
	defer observe("threshold_get")()

	query := `SELECT ` + thresholdColumns + ` FROM threshold_configs
		WHERE patient_id = ? AND vital_type = ?`
	c, err := scanThreshold(r.conn.db.QueryRowContext(ctx, r.conn.rebind(query), patientID, string(vital)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("threshold config %s-%s: %w", patientID, vital, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get threshold config: %w", err)
	}
	return c, nil
}

func (r *sqlThresholdRepo) Update(ctx context.Context, c *models.ThresholdConfig) error {
	defer observe("threshold_update")()

	query := `
		UPDATE threshold_configs SET enabled = ?, threshold_min = ?, threshold_max = ?, updated_at = ?
		WHERE patient_id = ? AND vital_type = ?
	`
	result, err := r.conn.db.ExecContext(ctx, r.conn.rebind(query),
		boolToInt(c.Enabled), nullFloat(c.Min), nullFloat(c.Max), models.FormatTime(c.UpdatedAt),
		c.PatientID, string(c.VitalType),
	)
	if err != nil {
		return fmt.Errorf("update threshold config: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("threshold config %s: %w", c.ID(), models.ErrNotFound)
	}
	return nil
}

func (r *sqlThresholdRepo) Delete(ctx context.Context, patientID string, vital models.VitalType) error {
	defer observe("threshold_delete")()

	result, err := r.conn.db.ExecContext(ctx,
		r.conn.rebind("DELETE FROM threshold_configs WHERE patient_id = ? AND vital_type = ?"),
		patientID, string(vital),
	)
	if err != nil {
		return fmt.Errorf("delete threshold config: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("threshold config %s-%s: %w", patientID, vital, models.ErrNotFound)
	}
	return nil
}

func (r *sqlThresholdRepo) ListByPatient(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error) {
	defer observe("threshold_list")()

	query := `SELECT ` + thresholdColumns + ` FROM threshold_configs
		WHERE patient_id = ? ORDER BY vital_type`
	return r.query(ctx, query, patientID)
}

func (r *sqlThresholdRepo) ListEnabled(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error) {
	defer observe("threshold_list_enabled")()

	query := `SELECT ` + thresholdColumns + ` FROM threshold_configs
		WHERE patient_id = ? AND enabled = 1 ORDER BY vital_type`
	return r.query(ctx, query, patientID)
}

func (r *sqlThresholdRepo) query(ctx context.Context, query string, args ...any) ([]*models.ThresholdConfig, error) {
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query threshold configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.ThresholdConfig
	for rows.Next() {
		c, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan threshold config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threshold configs: %w", err)
	}
	return configs, nil
}

func scanThreshold(row rowScanner) (*models.ThresholdConfig, error) {
	var (
		c                    models.ThresholdConfig
		vital                string
		enabled              int
		min, max             sql.NullFloat64
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.PatientID, &vital, &enabled, &min, &max, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.VitalType = models.VitalType(vital)
	c.Enabled = enabled == 1
	c.Min = floatPtr(min)
	c.Max = floatPtr(max)
	if err := parseTime(createdAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTime(updatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
