package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for stored timestamps.
// Lexical order of formatted values equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Defaults applied to samples that omit descriptive fields.
const (
	DefaultDeviceID  = "unknown"
	DefaultRoom      = "UNKNOWN"
	DefaultCondition = "Unknown"
)

// FormatTime formats t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Sample is one timestamped vital-sign reading for a patient.
type Sample struct {
	PatientID          string    `json:"patientId"`
	DeviceID           string    `json:"deviceId"`
	Timestamp          time.Time `json:"timestamp"`
	HeartRate          float64   `json:"heartRate"`
	SystolicBP         float64   `json:"systolicBP"`
	DiastolicBP        float64   `json:"diastolicBP"`
	Temperature        float64   `json:"temperature"`
	OxygenSaturation   float64   `json:"oxygenSaturation"`
	RoomNumber         string    `json:"roomNumber"`
	PatientCondition   string    `json:"patientCondition,omitempty"`
	SensorBatteryLevel *float64  `json:"sensorBatteryLevel,omitempty"`
	SignalStrength     *float64  `json:"signalStrength,omitempty"`
	DataQuality        string    `json:"dataQuality,omitempty"`
	ProcessedAt        time.Time `json:"processedAt"`

	// Missing holds vitals absent from the source payload.
	Missing VitalSet `json:"-"`
	// Malformed holds vitals present in the payload but not numeric.
	Malformed VitalSet `json:"-"`
}

// Value returns the reading for v and whether it is usable.
// A missing or malformed vital reports its zero value and false.
func (s *Sample) Value(v VitalType) (float64, bool) {
	var val float64
	switch v {
	case VitalHeartRate:
		val = s.HeartRate
	case VitalSystolicBP:
		val = s.SystolicBP
	case VitalDiastolicBP:
		val = s.DiastolicBP
	case VitalTemperature:
		val = s.Temperature
	case VitalOxygenSaturation:
		val = s.OxygenSaturation
	default:
		return 0, false
	}
	if s.Missing.Has(v) || s.Malformed.Has(v) {
		return val, false
	}
	return val, true
}

// Snapshot copies the five vital values.
func (s *Sample) Snapshot() VitalSnapshot {
	return VitalSnapshot{
		HeartRate:        s.HeartRate,
		SystolicBP:       s.SystolicBP,
		DiastolicBP:      s.DiastolicBP,
		Temperature:      s.Temperature,
		OxygenSaturation: s.OxygenSaturation,
	}
}

// Normalize fills descriptive defaults and server-side timestamps.
func (s *Sample) Normalize(now time.Time) {
	if s.DeviceID == "" {
		s.DeviceID = DefaultDeviceID
	}
	if s.RoomNumber == "" {
		s.RoomNumber = DefaultRoom
	}
	if s.PatientCondition == "" {
		s.PatientCondition = DefaultCondition
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	s.Timestamp = s.Timestamp.UTC()
	if s.ProcessedAt.IsZero() {
		s.ProcessedAt = now.UTC()
	}
}

// Validate checks the fields required for storage.
func (s *Sample) Validate() error {
	if strings.TrimSpace(s.PatientID) == "" {
		return NewValidationError("patientId", "patient id is required")
	}
	return nil
}

// VitalSnapshot is the copy of vital values attached to an alert.
type VitalSnapshot struct {
	HeartRate        float64 `json:"heartRate"`
	SystolicBP       float64 `json:"systolicBP"`
	DiastolicBP      float64 `json:"diastolicBP"`
	Temperature      float64 `json:"temperature"`
	OxygenSaturation float64 `json:"oxygenSaturation"`
}

type wireSample struct {
	PatientID          string          `json:"patientId"`
	DeviceID           string          `json:"deviceId"`
	Timestamp          string          `json:"timestamp"`
	HeartRate          json.RawMessage `json:"heartRate"`
	SystolicBP         json.RawMessage `json:"systolicBP"`
	DiastolicBP        json.RawMessage `json:"diastolicBP"`
	Temperature        json.RawMessage `json:"temperature"`
	OxygenSaturation   json.RawMessage `json:"oxygenSaturation"`
	RoomNumber         string          `json:"roomNumber"`
	PatientCondition   string          `json:"patientCondition"`
	SensorBatteryLevel json.RawMessage `json:"sensorBatteryLevel"`
	SignalStrength     json.RawMessage `json:"signalStrength"`
	DataQuality        string          `json:"dataQuality"`
}

// DecodeSample decodes a JSON telemetry payload.
// Absent vitals are recorded in Missing and non-numeric vitals in
// Malformed; both read as 0. now is used when the payload has no
// timestamp.
func DecodeSample(data []byte, now time.Time) (*Sample, error) {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, NewValidationError("body", "invalid sample payload: %v", err)
	}

	s := &Sample{
		PatientID:        strings.TrimSpace(w.PatientID),
		DeviceID:         w.DeviceID,
		RoomNumber:       w.RoomNumber,
		PatientCondition: w.PatientCondition,
		DataQuality:      w.DataQuality,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if w.Timestamp != "" {
		ts, err := parseWireTime(w.Timestamp)
		if err != nil {
			return nil, NewValidationError("timestamp", "invalid timestamp %q", w.Timestamp)
		}
		s.Timestamp = ts
	}

	fields := []struct {
		vital VitalType
		raw   json.RawMessage
		dst   *float64
	}{
		{VitalHeartRate, w.HeartRate, &s.HeartRate},
		{VitalSystolicBP, w.SystolicBP, &s.SystolicBP},
		{VitalDiastolicBP, w.DiastolicBP, &s.DiastolicBP},
		{VitalTemperature, w.Temperature, &s.Temperature},
		{VitalOxygenSaturation, w.OxygenSaturation, &s.OxygenSaturation},
	}
	for _, f := range fields {
		v, present, ok := decodeNumber(f.raw)
		switch {
		case !present:
			s.Missing = s.Missing.With(f.vital)
		case !ok:
			s.Malformed = s.Malformed.With(f.vital)
		default:
			*f.dst = v
		}
	}

	if v, present, ok := decodeNumber(w.SensorBatteryLevel); present && ok {
		s.SensorBatteryLevel = &v
	}
	if v, present, ok := decodeNumber(w.SignalStrength); present && ok {
		s.SignalStrength = &v
	}

	s.Normalize(now)
	return s, nil
}

// decodeNumber reports the value, whether the field was present, and
// whether it held a finite number.
func decodeNumber(raw json.RawMessage) (float64, bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, true, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, true, false
	}
	return v, true, true
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseWireTime(s string) (time.Time, error) {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}
