// Package query provides read-side aggregation over stored samples and
// alerts, plus threshold config management.
package query

import (
	"context"
	"math"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

// DefaultLimit applies when a caller passes a non-positive limit.
const DefaultLimit = 100

// VitalStats summarizes one vital over a sample set.
type VitalStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// RangeResult holds one patient's samples in a time window.
type RangeResult struct {
	PatientID string                `json:"patientId"`
	Samples   []*models.Sample      `json:"vitalSigns"`
	Start     time.Time             `json:"startTime"`
	End       time.Time             `json:"endTime"`
	Stats     map[string]VitalStats `json:"statistics"`
	Count     int                   `json:"count"`
}

// RecentResult holds the latest sample of every patient seen in a window.
type RecentResult struct {
	Window        time.Duration             `json:"-"`
	Latest        map[string]*models.Sample `json:"latest"`
	RecordCounts  map[string]int            `json:"recordCounts"`
	TotalRecords  int                       `json:"totalRecords"`
	TotalPatients int                       `json:"totalPatients"`
}

// Service answers read queries over the record store.
type Service struct {
	samples  storage.SampleRepository
	patients storage.PatientRepository
	now      func() time.Time
}

// NewService creates a query service. now defaults to time.Now.
func NewService(samples storage.SampleRepository, patients storage.PatientRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{samples: samples, patients: patients, now: now}
}

// Latest returns the newest sample of a patient.
func (s *Service) Latest(ctx context.Context, patientID string) (*models.Sample, error) {
	if patientID == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}
	sample, err := s.samples.Latest(ctx, patientID)
	if err != nil {
		return nil, models.Dependency("latest sample", err)
	}
	return sample, nil
}

// Range returns a patient's samples in [start, end], most recent first,
// with per-vital statistics.
func (s *Service) Range(ctx context.Context, patientID string, start, end time.Time, limit int) (*RangeResult, error) {
	if patientID == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}
	if end.Before(start) {
		return nil, models.NewValidationError("endTime", "end of range is before its start")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	samples, err := s.samples.Range(ctx, patientID, start.UTC(), end.UTC(), limit)
	if err != nil {
		return nil, models.Dependency("sample range", err)
	}
	if samples == nil {
		samples = []*models.Sample{}
	}
	return &RangeResult{
		PatientID: patientID,
		Samples:   samples,
		Start:     start.UTC(),
		End:       end.UTC(),
		Stats:     Summarize(samples),
		Count:     len(samples),
	}, nil
}

// RecentAll scans the newest samples within window and keeps the newest
// per patient.
func (s *Service) RecentAll(ctx context.Context, window time.Duration, limit int) (*RecentResult, error) {
	if window <= 0 {
		window = time.Hour
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	samples, err := s.samples.Recent(ctx, s.now().UTC().Add(-window), limit)
	if err != nil {
		return nil, models.Dependency("recent samples", err)
	}

	res := &RecentResult{
		Window:       window,
		Latest:       make(map[string]*models.Sample),
		RecordCounts: make(map[string]int),
		TotalRecords: len(samples),
	}
	for _, sample := range samples {
		res.RecordCounts[sample.PatientID]++
		if cur, ok := res.Latest[sample.PatientID]; !ok || sample.Timestamp.After(cur.Timestamp) {
			res.Latest[sample.PatientID] = sample
		}
	}
	res.TotalPatients = len(res.Latest)
	return res, nil
}

// PatientInfo returns the patient record, or the unknown-patient
// fallback when none is stored.
func (s *Service) PatientInfo(ctx context.Context, patientID string) (*models.PatientInfo, error) {
	if s.patients == nil {
		return models.UnknownPatient(patientID), nil
	}
	p, err := s.patients.Get(ctx, patientID)
	if models.IsNotFound(err) {
		return models.UnknownPatient(patientID), nil
	}
	if err != nil {
		return nil, models.Dependency("get patient", err)
	}
	return p, nil
}

// Summarize computes min, max and average per vital, keyed by the vital's
// wire name. Zero and unusable readings are left out; a vital with no
// readings left is omitted.
func Summarize(samples []*models.Sample) map[string]VitalStats {
	stats := make(map[string]VitalStats)
	for _, v := range models.VitalTypes {
		var (
			n        int
			sum      float64
			min, max float64
		)
		for _, sample := range samples {
			val, ok := sample.Value(v)
			if !ok || val == 0 {
				continue
			}
			if n == 0 || val < min {
				min = val
			}
			if n == 0 || val > max {
				max = val
			}
			sum += val
			n++
		}
		if n == 0 {
			continue
		}
		stats[v.JSONKey()] = VitalStats{
			Min: min,
			Max: max,
			Avg: math.Round(sum/float64(n)*10) / 10,
		}
	}
	return stats
}

// ParseTimeRange maps 1h, 6h, 24h and 7d to durations. Anything else is
// one hour.
func ParseTimeRange(s string) time.Duration {
	switch s {
	case "6h":
		return 6 * time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
