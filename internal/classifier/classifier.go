// Package classifier maps a vital-sign sample to a severity level using
// fixed clinical bands.
package classifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// FallbackPolicy decides how vitals that could not be read are treated.
type FallbackPolicy string

const (
	// FallbackZero compares missing vitals as 0. Malformed vitals still
	// yield Unknown.
	FallbackZero FallbackPolicy = "zero"
	// FallbackStrict yields Unknown for any missing or malformed vital.
	FallbackStrict FallbackPolicy = "strict"
)

// ParseFallbackPolicy converts a string to a FallbackPolicy.
// An empty string selects FallbackZero.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackZero:
		return FallbackZero, nil
	case FallbackStrict:
		return FallbackStrict, nil
	}
	return "", fmt.Errorf("invalid fallback policy %q (want zero or strict)", s)
}

// band holds the open intervals outside which a vital is abnormal.
type band struct {
	vital             models.VitalType
	critLow, critHigh float64
	warnLow, warnHigh float64
}

var bands = []band{
	{models.VitalHeartRate, 50, 120, 60, 100},
	{models.VitalSystolicBP, 90, 180, 100, 140},
	{models.VitalDiastolicBP, 50, 120, 60, 90},
	{models.VitalTemperature, 95.0, 101.5, 97.0, 99.5},
	{models.VitalOxygenSaturation, 90, math.Inf(1), 95, math.Inf(1)},
}

func (b band) critical(v float64) bool { return v < b.critLow || v > b.critHigh }
func (b band) warning(v float64) bool  { return v < b.warnLow || v > b.warnHigh }

// Classifier classifies samples under a fallback policy.
type Classifier struct {
	fallback FallbackPolicy
}

// New creates a Classifier. An unknown policy is treated as FallbackZero.
func New(fallback FallbackPolicy) *Classifier {
	if fallback != FallbackStrict {
		fallback = FallbackZero
	}
	return &Classifier{fallback: fallback}
}

// Fallback returns the configured fallback policy.
func (c *Classifier) Fallback() FallbackPolicy {
	return c.fallback
}

var defaultClassifier = New(FallbackZero)

// Classify classifies s with the zero fallback policy.
func Classify(s *models.Sample) models.Severity {
	return defaultClassifier.Classify(s)
}

// Classify returns the severity of s. It never panics; any failure
// degrades to SeverityUnknown.
func (c *Classifier) Classify(s *models.Sample) models.Severity {
	sev, _ := c.Explain(s)
	return sev
}

// Explain returns the severity of s and, when it is Unknown, the
// ClassificationError describing why.
func (c *Classifier) Explain(s *models.Sample) (sev models.Severity, err error) {
	defer func() {
		if r := recover(); r != nil {
			sev = models.SeverityUnknown
			err = &models.ClassificationError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if s == nil {
		return models.SeverityUnknown, &models.ClassificationError{Reason: "nil sample"}
	}
	if err := c.check(s); err != nil {
		return models.SeverityUnknown, err
	}

	values := make([]float64, len(bands))
	for i, b := range bands {
		// unusable readings compare as their zero value here
		values[i], _ = s.Value(b.vital)
	}

	for i, b := range bands {
		if b.critical(values[i]) {
			return models.SeverityCritical, nil
		}
	}
	for i, b := range bands {
		if b.warning(values[i]) {
			return models.SeverityWarning, nil
		}
	}
	return models.SeverityNormal, nil
}

func (c *Classifier) check(s *models.Sample) error {
	for _, b := range bands {
		if s.Malformed.Has(b.vital) {
			return &models.ClassificationError{Vital: b.vital, Reason: "is not numeric"}
		}
		if c.fallback == FallbackStrict && s.Missing.Has(b.vital) {
			return &models.ClassificationError{Vital: b.vital, Reason: "is missing"}
		}
	}
	for _, b := range bands {
		v, _ := s.Value(b.vital)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.ClassificationError{Vital: b.vital, Reason: "is not finite"}
		}
	}
	return nil
}
