package models

import (
	"strings"
	"time"
)

// Patient status values.
const (
	PatientStatusActive   = "Active"
	PatientStatusInactive = "Inactive"
)

// PatientInfo is the minimal patient record read alongside samples.
type PatientInfo struct {
	ID         string    `json:"patientId"`
	Name       string    `json:"name"`
	Age        int       `json:"age"`
	Gender     string    `json:"gender"`
	RoomNumber string    `json:"roomNumber"`
	Condition  string    `json:"condition"`
	Status     string    `json:"status"`
	AdmittedAt time.Time `json:"admissionDate"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UnknownPatient is returned when no record exists for id.
func UnknownPatient(id string) *PatientInfo {
	return &PatientInfo{
		ID:         id,
		Name:       "Unknown Patient",
		Gender:     "Unknown",
		RoomNumber: "Unknown",
		Condition:  "Unknown",
		Status:     "Unknown",
	}
}

// Validate checks the fields required on admission.
func (p *PatientInfo) Validate() error {
	required := []struct {
		field, value string
	}{
		{"patientId", p.ID},
		{"name", p.Name},
		{"gender", p.Gender},
		{"roomNumber", p.RoomNumber},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, "missing required field: %s", r.field)
		}
	}
	if p.Age < 0 {
		return NewValidationError("age", "age must not be negative")
	}
	return nil
}
