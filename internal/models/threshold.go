package models

import (
	"strings"
	"time"
)

// ThresholdConfig holds per-patient alert bounds for one vital type.
// A nil Min or Max means no bound on that side.
type ThresholdConfig struct {
	PatientID string    `json:"patientId"`
	VitalType VitalType `json:"vitalType"`
	Enabled   bool      `json:"alertEnabled"`
	Min       *float64  `json:"thresholdMin,omitempty"`
	Max       *float64  `json:"thresholdMax,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ID returns the external identifier "<patientId>-<vitalType>".
func (c *ThresholdConfig) ID() string {
	return c.PatientID + "-" + string(c.VitalType)
}

// Validate checks required fields and bound ordering.
func (c *ThresholdConfig) Validate() error {
	if strings.TrimSpace(c.PatientID) == "" {
		return NewValidationError("patientId", "patient id is required")
	}
	if !c.VitalType.Valid() {
		return NewValidationError("vitalType", "unknown vital type %q", c.VitalType)
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return NewValidationError("thresholdMin", "minimum %g exceeds maximum %g", *c.Min, *c.Max)
	}
	return nil
}

// Below reports whether v is under the lower bound.
func (c *ThresholdConfig) Below(v float64) bool {
	return c.Min != nil && v < *c.Min
}

// Above reports whether v is over the upper bound.
func (c *ThresholdConfig) Above(v float64) bool {
	return c.Max != nil && v > *c.Max
}

// ParseConfigID splits "<patientId>-<vitalType>" at the last hyphen.
func ParseConfigID(id string) (string, VitalType, error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", NewValidationError("configId", "invalid configuration id format %q", id)
	}
	vital, err := ParseVitalType(id[i+1:])
	if err != nil {
		return "", "", NewValidationError("configId", "invalid configuration id format %q", id)
	}
	return id[:i], vital, nil
}

type defaultBounds struct {
	vital    VitalType
	min, max float64
}

var admissionDefaults = []defaultBounds{
	{VitalHeartRate, 50, 120},
	{VitalSystolicBP, 90, 180},
	{VitalDiastolicBP, 50, 120},
	{VitalTemperature, 95.0, 101.5},
	{VitalOxygenSaturation, 90, 100},
}

// DefaultThresholds returns the enabled configs created on admission.
func DefaultThresholds(patientID string, now time.Time) []*ThresholdConfig {
	out := make([]*ThresholdConfig, 0, len(admissionDefaults))
	for _, d := range admissionDefaults {
		lo, hi := d.min, d.max
		out = append(out, &ThresholdConfig{
			PatientID: patientID,
			VitalType: d.vital,
			Enabled:   true,
			Min:       &lo,
			Max:       &hi,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}
