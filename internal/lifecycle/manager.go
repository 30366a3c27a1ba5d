// Package lifecycle creates, acknowledges, lists and expires alert records.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/alerting"
	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/notifier"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

// maxFireRetries bounds the timestamp bumps after a key conflict.
const maxFireRetries = 8

// Defaults for Options.
const (
	DefaultTopic     = "patient-alerts"
	DefaultAlertTTL  = 90 * 24 * time.Hour
	DefaultSampleTTL = 30 * 24 * time.Hour
)

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, a *models.Alert) error
	Resolve(ctx context.Context, alertID string) (models.AlertKey, error)
	Get(ctx context.Context, key models.AlertKey) (*models.Alert, error)
	Acknowledge(ctx context.Context, key models.AlertKey, at time.Time) (bool, error)
	List(ctx context.Context, f storage.AlertFilter) ([]*models.Alert, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SamplePurger removes samples past their retention.
type SamplePurger interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Options configures a Manager.
type Options struct {
	Topic     string
	AlertTTL  time.Duration
	SampleTTL time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) setDefaults() {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.AlertTTL <= 0 {
		o.AlertTTL = DefaultAlertTTL
	}
	if o.SampleTTL <= 0 {
		o.SampleTTL = DefaultSampleTTL
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Manager owns the alert lifecycle: SENT on creation, ACKNOWLEDGED at
// most once, removed after expiry.
type Manager struct {
	alerts  AlertStore
	samples SamplePurger
	sink    notifier.Sink
	logger  *zap.Logger
	opts    Options
	clock   *patientClock
}

// NewManager creates a Manager. samples and sink may be nil.
func NewManager(alerts AlertStore, samples SamplePurger, sink notifier.Sink, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()
	return &Manager{
		alerts:  alerts,
		samples: samples,
		sink:    sink,
		logger:  logger.Named("lifecycle"),
		opts:    opts,
		clock:   newPatientClock(),
	}
}

// Fire persists an alert for the decision and announces it.
func (m *Manager) Fire(ctx context.Context, patientID string, s *models.Sample, d alerting.Decision) (*models.Alert, error) {
	if patientID == "" && s != nil {
		patientID = s.PatientID
	}
	if patientID == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}
	if s == nil {
		return nil, models.NewValidationError("sample", "sample is required")
	}
	if !d.ShouldAlert {
		return nil, models.NewValidationError("decision", "decision does not call for an alert")
	}

	a := &models.Alert{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		CreatedAt:  m.clock.Next(patientID, m.opts.Clock()),
		Kind:       d.Kind,
		Message:    d.Message,
		Vitals:     s.Snapshot(),
		RoomNumber: s.RoomNumber,
		Status:     models.AlertStatusSent,
	}

	for attempt := 0; ; attempt++ {
		a.ExpiresAt = a.CreatedAt.Add(m.opts.AlertTTL)
		err := m.alerts.Create(ctx, a)
		if err == nil {
			break
		}
		if !models.IsConflict(err) {
			return nil, models.Dependency("create alert", err)
		}
		if attempt == maxFireRetries {
			return nil, &models.DependencyError{Op: "create alert", Err: err}
		}
		m.logger.Debug("alert key taken, bumping timestamp",
			zap.String("patient_id", patientID),
			zap.Time("created_at", a.CreatedAt),
			zap.Int("attempt", attempt+1))
		a.CreatedAt = m.clock.Bump(patientID, a.CreatedAt)
	}

	metrics.AlertsFired.WithLabelValues(string(a.Kind)).Inc()
	m.logger.Info("alert fired",
		zap.String("alert_id", a.ID),
		zap.String("patient_id", a.PatientID),
		zap.String("alert_type", string(a.Kind)))

	m.notify(context.WithoutCancel(ctx), a)
	return a, nil
}

func (m *Manager) notify(ctx context.Context, a *models.Alert) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(ctx, notifier.NewAlertNotification(m.opts.Topic, a)); err != nil {
		metrics.AlertNotifyFailures.Inc()
		m.logger.Warn("alert notification failed",
			zap.String("alert_id", a.ID),
			zap.String("patient_id", a.PatientID),
			zap.Error(err))
	}
}

// Acknowledge marks the alert as acknowledged. Acknowledging an alert
// twice returns it unchanged.
func (m *Manager) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, models.NewValidationError("alertId", "alert id is required")
	}

	key, err := m.alerts.Resolve(ctx, alertID)
	if err != nil {
		return nil, models.Dependency("resolve alert", err)
	}

	changed, err := m.alerts.Acknowledge(ctx, key, m.opts.Clock().UTC())
	if err != nil {
		return nil, models.Dependency("acknowledge alert", err)
	}

	a, err := m.alerts.Get(ctx, key)
	if err != nil {
		return nil, models.Dependency("get alert", err)
	}
	if changed {
		metrics.AlertsAcknowledged.Inc()
		m.logger.Info("alert acknowledged",
			zap.String("alert_id", a.ID),
			zap.String("patient_id", a.PatientID))
	}
	return a, nil
}

// Listing limits.
const (
	DefaultListLimit  = 50
	MaxListLimit      = 1000
	DefaultListWindow = 24 * time.Hour
)

// Filter selects alerts for List.
type Filter struct {
	PatientID string
	Since     time.Time
	Until     time.Time
	Kind      string
	Status    string
	Limit     int
}

// Stats summarizes a listed alert set.
type Stats struct {
	Total          int            `json:"total"`
	ByKind         map[string]int `json:"byType"`
	ByStatus       map[string]int `json:"byStatus"`
	RecentCritical int            `json:"recentCritical"`
}

// ListResult is the outcome of List.
type ListResult struct {
	Alerts []*models.Alert `json:"alerts"`
	Stats  Stats           `json:"statistics"`
}

// List returns alerts most recent first, with stats over the returned set.
func (m *Manager) List(ctx context.Context, f Filter) (*ListResult, error) {
	now := m.opts.Clock().UTC()

	af := storage.AlertFilter{
		PatientID: f.PatientID,
		Since:     f.Since,
		Until:     f.Until,
		Limit:     f.Limit,
	}
	if af.Until.IsZero() {
		af.Until = now
	}
	if af.Since.IsZero() {
		af.Since = af.Until.Add(-DefaultListWindow)
	}
	if af.Since.After(af.Until) {
		return nil, models.NewValidationError("since", "start of range is after its end")
	}
	if af.Limit <= 0 {
		af.Limit = DefaultListLimit
	}
	if af.Limit > MaxListLimit {
		af.Limit = MaxListLimit
	}
	if f.Kind != "" {
		kind, err := models.ParseAlertKind(f.Kind)
		if err != nil {
			return nil, err
		}
		af.Kind = kind
	}
	if f.Status != "" {
		status, err := models.ParseAlertStatus(f.Status)
		if err != nil {
			return nil, err
		}
		af.Status = status
	}

	alerts, err := m.alerts.List(ctx, af)
	if err != nil {
		return nil, models.Dependency("list alerts", err)
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	return &ListResult{Alerts: alerts, Stats: summarize(alerts, now)}, nil
}

func summarize(alerts []*models.Alert, now time.Time) Stats {
	st := Stats{
		Total:    len(alerts),
		ByKind:   make(map[string]int),
		ByStatus: make(map[string]int),
	}
	recent := now.Add(-time.Hour)
	for _, a := range alerts {
		st.ByKind[string(a.Kind)]++
		st.ByStatus[string(a.Status)]++
		if a.Kind == models.AlertKindCritical && !a.CreatedAt.Before(recent) {
			st.RecentCritical++
		}
	}
	return st
}

// ExpiryResult reports what one Expire pass removed.
type ExpiryResult struct {
	Alerts  int64 `json:"alerts"`
	Samples int64 `json:"samples"`
}

// Expire removes alerts past their expiry and samples past the sample TTL.
func (m *Manager) Expire(ctx context.Context) (ExpiryResult, error) {
	var res ExpiryResult
	now := m.opts.Clock().UTC()

	n, err := m.alerts.DeleteExpired(ctx, now)
	if err != nil {
		return res, models.Dependency("expire alerts", err)
	}
	res.Alerts = n
	metrics.RecordsExpired.WithLabelValues("alerts").Add(float64(n))

	if m.samples != nil {
		n, err := m.samples.DeleteBefore(ctx, now.Add(-m.opts.SampleTTL))
		if err != nil {
			return res, models.Dependency("expire samples", err)
		}
		res.Samples = n
		metrics.RecordsExpired.WithLabelValues("samples").Add(float64(n))
	}

	if res.Alerts > 0 || res.Samples > 0 {
		m.logger.Info("expired records",
			zap.Int64("alerts", res.Alerts),
			zap.Int64("samples", res.Samples))
	}
	return res, nil
}

// String renders the result for CLI output.
func (r ExpiryResult) String() string {
	return fmt.Sprintf("%d alerts, %d samples", r.Alerts, r.Samples)
}
