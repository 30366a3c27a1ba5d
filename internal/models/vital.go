// Package models defines the data types shared by the vitalwatch pipeline.
package models

import (
	"strings"
)

// VitalType names one of the monitored vital signs.
type VitalType string

const (
	VitalHeartRate        VitalType = "heart_rate"
	VitalSystolicBP       VitalType = "systolic_bp"
	VitalDiastolicBP      VitalType = "diastolic_bp"
	VitalTemperature      VitalType = "temperature"
	VitalOxygenSaturation VitalType = "oxygen_saturation"
)

// VitalTypes lists every vital type in canonical (sorted) order.
var VitalTypes = []VitalType{
	VitalDiastolicBP,
	VitalHeartRate,
	VitalOxygenSaturation,
	VitalSystolicBP,
	VitalTemperature,
}

// ParseVitalType converts a string to a VitalType.
// Matching is case-insensitive.
func ParseVitalType(s string) (VitalType, error) {
	v := VitalType(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", NewValidationError("vitalType", "unknown vital type %q", s)
	}
	return v, nil
}

// Valid reports whether v is a known vital type.
func (v VitalType) Valid() bool {
	return v.bit() != 0
}

// Title returns the display name, e.g. "Heart Rate".
func (v VitalType) Title() string {
	words := strings.Split(string(v), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// JSONKey returns the camelCase key used for this vital on the wire.
func (v VitalType) JSONKey() string {
	switch v {
	case VitalHeartRate:
		return "heartRate"
	case VitalSystolicBP:
		return "systolicBP"
	case VitalDiastolicBP:
		return "diastolicBP"
	case VitalTemperature:
		return "temperature"
	case VitalOxygenSaturation:
		return "oxygenSaturation"
	}
	return string(v)
}

func (v VitalType) bit() VitalSet {
	switch v {
	case VitalHeartRate:
		return 1 << 0
	case VitalSystolicBP:
		return 1 << 1
	case VitalDiastolicBP:
		return 1 << 2
	case VitalTemperature:
		return 1 << 3
	case VitalOxygenSaturation:
		return 1 << 4
	}
	return 0
}

// VitalSet is a bitmask of vital types.
type VitalSet uint8

// Has reports whether v is in the set.
func (s VitalSet) Has(v VitalType) bool {
	b := v.bit()
	return b != 0 && s&b != 0
}

// With returns the set with v added.
func (s VitalSet) With(v VitalType) VitalSet {
	return s | v.bit()
}

// Empty reports whether the set contains no vitals.
func (s VitalSet) Empty() bool {
	return s == 0
}

// Types returns the members of the set in canonical order.
func (s VitalSet) Types() []VitalType {
	var out []VitalType
	for _, v := range VitalTypes {
		if s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// Severity is the derived classification of a sample.
type Severity string

const (
	SeverityNormal   Severity = "Normal"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
	SeverityUnknown  Severity = "Unknown"
)
