package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

const alertColumns = `patient_id, created_at, alert_id, kind, message, vitals_json,
	room_number, status, acknowledged_at, expires_at`

type sqlAlertRepo struct {
	conn *conn
}

func (r *sqlAlertRepo) Create(ctx context.Context, a *models.Alert) error {
	defer observe("alert_create")()

	vitalsJSON, err := json.Marshal(a.Vitals)
	if err != nil {
		return fmt.Errorf("marshal vitals: %w", err)
	}
	createdAt := models.FormatTime(a.CreatedAt)

	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alert transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, r.conn.rebind(query),
		a.PatientID, createdAt, a.ID, string(a.Kind), a.Message, string(vitalsJSON),
		a.RoomNumber, string(a.Status), nullTime(a.AcknowledgedAt), models.FormatTime(a.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert alert %s@%s: %w", a.PatientID, createdAt, models.ErrConflict)
		}
		return fmt.Errorf("insert alert: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		r.conn.rebind("INSERT INTO alert_index (alert_id, patient_id, created_at) VALUES (?, ?, ?)"),
		a.ID, a.PatientID, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert alert index %s: %w", a.ID, models.ErrConflict)
		}
		return fmt.Errorf("insert alert index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert: %w", err)
	}
	return nil
}

func (r *sqlAlertRepo) Resolve(ctx context.Context, alertID string) (models.AlertKey, error) {
	defer observe("alert_resolve")()

	var (
		key       models.AlertKey
		createdAt string
	)
	err := r.conn.db.QueryRowContext(ctx,
		r.conn.rebind("SELECT patient_id, created_at FROM alert_index WHERE alert_id = ?"), alertID,
	).Scan(&key.PatientID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AlertKey{}, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	if err != nil {
		return models.AlertKey{}, fmt.Errorf("resolve alert id: %w", err)
	}
	if err := parseTime(createdAt, &key.CreatedAt); err != nil {
		return models.AlertKey{}, err
	}
	return key, nil
}

func (r *sqlAlertRepo) Get(ctx context.Context, key models.AlertKey) (*models.Alert, error) {
	defer observe("alert_get")()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE patient_id = ? AND created_at = ?`
	a, err := scanAlert(r.conn.db.QueryRowContext(ctx, r.conn.rebind(query),
		key.PatientID, models.FormatTime(key.CreatedAt)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s@%s: %w", key.PatientID, models.FormatTime(key.CreatedAt), models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *sqlAlertRepo) Acknowledge(ctx context.Context, key models.AlertKey, at time.Time) (bool, error) {
	defer observe("alert_acknowledge")()

	query := `
		UPDATE alerts SET status = ?, acknowledged_at = ?
		WHERE patient_id = ? AND created_at = ? AND status = ?
	`
	result, err := r.conn.db.ExecContext(ctx, r.conn.rebind(query),
		string(models.AlertStatusAcknowledged), models.FormatTime(at),
		key.PatientID, models.FormatTime(key.CreatedAt), string(models.AlertStatusSent),
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", err)
	}
	return rows == 1, nil
}

func (r *sqlAlertRepo) List(ctx context.Context, f AlertFilter) ([]*models.Alert, error) {
	defer observe("alert_list")()

	conds := []string{"created_at >= ?", "created_at <= ?"}
	args := []any{models.FormatTime(f.Since), models.FormatTime(f.Until)}
	if f.PatientID != "" {
		conds = append(conds, "patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	args = append(args, f.Limit)

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC LIMIT ?`
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (r *sqlAlertRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observe("alert_delete_expired")()

	cutoff := models.FormatTime(now)
	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expiry transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.conn.rebind(`
		DELETE FROM alert_index WHERE alert_id IN (
			SELECT alert_id FROM alerts WHERE expires_at < ?
		)`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired alert index: %w", err)
	}

	result, err := tx.ExecContext(ctx, r.conn.rebind("DELETE FROM alerts WHERE expires_at < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry: %w", err)
	}
	return n, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                    models.Alert
		createdAt, expiresAt string
		kind, status         string
		vitalsJSON           string
		ackAt                sql.NullString
	)
	err := row.Scan(&a.PatientID, &createdAt, &a.ID, &kind, &a.Message, &vitalsJSON,
		&a.RoomNumber, &status, &ackAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Status = models.AlertStatus(status)
	if err := json.Unmarshal([]byte(vitalsJSON), &a.Vitals); err != nil {
		return nil, fmt.Errorf("unmarshal vitals: %w", err)
	}
	if err := parseTime(createdAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTime(expiresAt, &a.ExpiresAt); err != nil {
		return nil, err
	}
	if a.AcknowledgedAt, err = parseNullTime(ackAt); err != nil {
		return nil, err
	}
	return &a, nil
}
