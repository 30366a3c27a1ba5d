package alerting

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/classifier"
	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// ConfigLookup returns the enabled threshold configs of a patient.
type ConfigLookup interface {
	ListEnabled(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error)
}

// Violation is one threshold config breached by a sample.
type Violation struct {
	Vital models.VitalType `json:"vitalType"`
	Value float64          `json:"value"`
	Min   *float64         `json:"thresholdMin,omitempty"`
	Max   *float64         `json:"thresholdMax,omitempty"`
	Below bool             `json:"below"`
}

// Decision is the outcome of evaluating one sample.
type Decision struct {
	ShouldAlert bool             `json:"shouldAlert"`
	Kind        models.AlertKind `json:"alertType,omitempty"`
	Message     string           `json:"message,omitempty"`
	Severity    models.Severity  `json:"severity"`
	Violations  []Violation      `json:"violations,omitempty"`

	// Suppressed is set when an alert was due but fell inside the cooldown.
	Suppressed bool `json:"suppressed,omitempty"`
}

// engineState is swapped as a unit when the policy changes.
type engineState struct {
	policy     Policy
	classifier *classifier.Classifier
}

// Engine evaluates samples against the fixed severity bands and the
// per-patient threshold configs.
type Engine struct {
	configs  ConfigLookup
	logger   *zap.Logger
	state    atomic.Pointer[engineState]
	cooldown *CooldownManager
	stats    *EngineStats
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	Evaluated         atomic.Int64
	CriticalAlerts    atomic.Int64
	WarningAlerts     atomic.Int64
	ThresholdAlerts   atomic.Int64
	AlertsSuppressed  atomic.Int64
	UnknownSeverities atomic.Int64
}

// NewEngine creates an engine. configs may be nil, in which case only
// severity-based alerts are produced.
func NewEngine(configs ConfigLookup, policy Policy, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		configs:  configs,
		logger:   logger.Named("alerting"),
		cooldown: NewCooldownManager(),
		stats:    &EngineStats{},
	}
	if err := e.SetPolicy(policy); err != nil {
		return nil, err
	}
	return e, nil
}

// SetPolicy validates p and swaps it in. Cooldowns are cleared.
func (e *Engine) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.state.Store(&engineState{policy: p, classifier: classifier.New(p.Fallback)})
	e.cooldown.ClearAll()
	e.logger.Info("alerting policy applied", zap.Stringer("policy", p))
	return nil
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return e.state.Load().policy
}

// Evaluate decides whether sample warrants an alert for patientID.
func (e *Engine) Evaluate(ctx context.Context, patientID string, sample *models.Sample) (*Decision, error) {
	return e.EvaluateAt(ctx, patientID, sample, time.Now())
}

// EvaluateAt evaluates a sample at a specific time (useful for testing).
// An empty patientID falls back to the sample's patient.
func (e *Engine) EvaluateAt(ctx context.Context, patientID string, sample *models.Sample, now time.Time) (*Decision, error) {
	if sample == nil {
		return nil, models.NewValidationError("sample", "sample is required")
	}
	if patientID == "" {
		patientID = sample.PatientID
	}
	if patientID == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}

	st := e.state.Load()
	e.stats.Evaluated.Add(1)

	d := &Decision{Severity: st.classifier.Classify(sample)}
	metrics.Evaluations.WithLabelValues(string(d.Severity)).Inc()
	if d.Severity == models.SeverityUnknown {
		e.stats.UnknownSeverities.Add(1)
	}

	switch {
	case d.Severity == models.SeverityCritical:
		d.Kind = models.AlertKindCritical
	case d.Severity == models.SeverityWarning && st.policy.WarningAlerts:
		d.Kind = models.AlertKindWarning
	default:
		violations, err := e.checkThresholds(ctx, patientID, sample, st.policy.ThresholdMode)
		if err != nil {
			return nil, models.Dependency("load threshold configs", err)
		}
		if len(violations) == 0 {
			return d, nil
		}
		d.Kind = models.AlertKindThreshold
		d.Violations = violations
	}

	if st.policy.Cooldown > 0 {
		key := patientID + "/" + string(d.Kind)
		if e.cooldown.IsOnCooldown(key, now) {
			e.stats.AlertsSuppressed.Add(1)
			metrics.AlertsSuppressed.Inc()
			d.Suppressed = true
			return d, nil
		}
		e.cooldown.SetCooldown(key, st.policy.Cooldown, now)
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = now
	}
	msg, err := renderMessage(d.Kind, patientID, sample, d.Violations, ts)
	if err != nil {
		return nil, err
	}
	d.Message = msg
	d.ShouldAlert = true
	metrics.Decisions.WithLabelValues(string(d.Kind)).Inc()

	switch d.Kind {
	case models.AlertKindCritical:
		e.stats.CriticalAlerts.Add(1)
	case models.AlertKindWarning:
		e.stats.WarningAlerts.Add(1)
	case models.AlertKindThreshold:
		e.stats.ThresholdAlerts.Add(1)
	}
	return d, nil
}

// checkThresholds compares the sample against the patient's enabled
// configs in vital-type order. Unusable readings are skipped.
func (e *Engine) checkThresholds(ctx context.Context, patientID string, s *models.Sample, mode ThresholdMode) ([]Violation, error) {
	if e.configs == nil {
		return nil, nil
	}
	configs, err := e.configs.ListEnabled(ctx, patientID)
	if err != nil {
		return nil, err
	}

	ordered := make([]*models.ThresholdConfig, len(configs))
	copy(ordered, configs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].VitalType < ordered[j].VitalType
	})

	var violations []Violation
	for _, c := range ordered {
		if c == nil || !c.Enabled {
			continue
		}
		value, ok := s.Value(c.VitalType)
		if !ok {
			continue
		}

		var v Violation
		switch {
		case c.Below(value):
			v = Violation{Vital: c.VitalType, Value: value, Min: c.Min, Max: c.Max, Below: true}
		case c.Above(value):
			v = Violation{Vital: c.VitalType, Value: value, Min: c.Min, Max: c.Max}
		default:
			continue
		}

		violations = append(violations, v)
		if mode == ThresholdFirstMatch {
			break
		}
	}
	return violations, nil
}

// EngineStatsSnapshot is a snapshot of engine statistics for reporting.
type EngineStatsSnapshot struct {
	Evaluated         int64
	CriticalAlerts    int64
	WarningAlerts     int64
	ThresholdAlerts   int64
	AlertsSuppressed  int64
	UnknownSeverities int64
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		Evaluated:         e.stats.Evaluated.Load(),
		CriticalAlerts:    e.stats.CriticalAlerts.Load(),
		WarningAlerts:     e.stats.WarningAlerts.Load(),
		ThresholdAlerts:   e.stats.ThresholdAlerts.Load(),
		AlertsSuppressed:  e.stats.AlertsSuppressed.Load(),
		UnknownSeverities: e.stats.UnknownSeverities.Load(),
	}
}

// CooldownManager tracks per-key alert cooldowns.
type CooldownManager struct {
	mu        sync.RWMutex
	cooldowns map[string]time.Time
}

// NewCooldownManager creates a new cooldown manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{
		cooldowns: make(map[string]time.Time),
	}
}

// IsOnCooldown checks if a key is currently on cooldown.
func (cm *CooldownManager) IsOnCooldown(key string, now time.Time) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return false
	}
	return now.Before(expiresAt)
}

// SetCooldown starts a cooldown for key.
func (cm *CooldownManager) SetCooldown(key string, duration time.Duration, now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cooldowns[key] = now.Add(duration)
}

// ClearAll removes all cooldowns.
func (cm *CooldownManager) ClearAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cooldowns = make(map[string]time.Time)
}

// Remaining returns the remaining cooldown duration for key.
func (cm *CooldownManager) Remaining(key string, now time.Time) time.Duration {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
