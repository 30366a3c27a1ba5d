package models

import (
	"strings"
	"time"
)

// AlertKind identifies which rule produced an alert.
type AlertKind string

const (
	AlertKindCritical  AlertKind = "CRITICAL"
	AlertKindWarning   AlertKind = "WARNING"
	AlertKindThreshold AlertKind = "THRESHOLD"
)

// ParseAlertKind converts a string to an AlertKind.
func ParseAlertKind(s string) (AlertKind, error) {
	k := AlertKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case AlertKindCritical, AlertKindWarning, AlertKindThreshold:
		return k, nil
	}
	return "", NewValidationError("type", "unknown alert type %q", s)
}

// AlertStatus is the acknowledgment state of an alert.
type AlertStatus string

const (
	AlertStatusSent         AlertStatus = "SENT"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
)

// ParseAlertStatus converts a string to an AlertStatus.
func ParseAlertStatus(s string) (AlertStatus, error) {
	st := AlertStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case AlertStatusSent, AlertStatusAcknowledged:
		return st, nil
	}
	return "", NewValidationError("status", "unknown alert status %q", s)
}

// AlertKey is the primary storage key of an alert.
type AlertKey struct {
	PatientID string
	CreatedAt time.Time
}

// Alert is a persisted, notifiable event produced by a sample.
type Alert struct {
	ID             string        `json:"alertId"`
	PatientID      string        `json:"patientId"`
	CreatedAt      time.Time     `json:"timestamp"`
	Kind           AlertKind     `json:"alertType"`
	Message        string        `json:"message"`
	Vitals         VitalSnapshot `json:"vitalSigns"`
	RoomNumber     string        `json:"roomNumber"`
	Status         AlertStatus   `json:"status"`
	AcknowledgedAt *time.Time    `json:"acknowledgedAt,omitempty"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

// Key returns the alert's storage key.
func (a *Alert) Key() AlertKey {
	return AlertKey{PatientID: a.PatientID, CreatedAt: a.CreatedAt}
}

// IsAcknowledged reports whether the alert has been acknowledged.
func (a *Alert) IsAcknowledged() bool {
	return a.Status == AlertStatusAcknowledged
}
