package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

type sqlPatientRepo struct {
	conn *conn
}

func (r *sqlPatientRepo) Create(ctx context.Context, p *models.PatientInfo) error {
	defer observe("patient_create")()

	query := `
		INSERT INTO patients (patient_id, name, age, gender, room_number, patient_condition,
			status, admitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn.db.ExecContext(ctx, r.conn.rebind(query),
		p.ID, p.Name, p.Age, p.Gender, p.RoomNumber, p.Condition, p.Status,
		models.FormatTime(p.AdmittedAt), models.FormatTime(p.CreatedAt), models.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("patient %s: %w", p.ID, models.ErrConflict)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *sqlPatientRepo) Get(ctx context.Context, id string) (*models.PatientInfo, error) {
	defer observe("patient_get")()

	query := `
		SELECT patient_id, name, age, gender, room_number, patient_condition,
			status, admitted_at, created_at, updated_at
		FROM patients WHERE patient_id = ?
	`
	var (
		p                                models.PatientInfo
		admittedAt, createdAt, updatedAt string
	)
	err := r.conn.db.QueryRowContext(ctx, r.conn.rebind(query), id).Scan(
		&p.ID, &p.Name, &p.Age, &p.Gender, &p.RoomNumber, &p.Condition,
		&p.Status, &admittedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if err := parseTime(admittedAt, &p.AdmittedAt); err != nil {
		return nil, err
	}
	if err := parseTime(createdAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTime(updatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
