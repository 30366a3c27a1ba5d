// Package alerting provides the rule engine that turns classified samples
// into alert decisions. Critical severity always alerts; per-patient
// threshold configs are consulted otherwise, under a Policy chosen per
// deployment profile.
package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/classifier"
)

// ThresholdMode controls how many threshold violations are collected.
type ThresholdMode string

const (
	// ThresholdFirstMatch stops at the first violating config.
	ThresholdFirstMatch ThresholdMode = "first_match"
	// ThresholdExhaustive reports every violating config in one alert.
	ThresholdExhaustive ThresholdMode = "exhaustive"
)

// Deployment profiles.
const (
	// ProfileStandard alerts on Critical severity and first threshold match.
	ProfileStandard = "standard"
	// ProfileSensitive also alerts on Warning and lists every violation.
	ProfileSensitive = "sensitive"
)

// Policy is the resolved alerting behaviour of an Engine.
type Policy struct {
	Profile       string
	WarningAlerts bool
	ThresholdMode ThresholdMode
	Fallback      classifier.FallbackPolicy
	// Cooldown suppresses repeat alerts of the same kind for a patient.
	// Zero disables suppression.
	Cooldown time.Duration
}

// ProfilePolicy returns the policy for a named profile.
func ProfilePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProfileStandard:
		return Policy{
			Profile:       ProfileStandard,
			ThresholdMode: ThresholdFirstMatch,
			Fallback:      classifier.FallbackZero,
		}, nil
	case ProfileSensitive:
		return Policy{
			Profile:       ProfileSensitive,
			WarningAlerts: true,
			ThresholdMode: ThresholdExhaustive,
			Fallback:      classifier.FallbackZero,
		}, nil
	case "":
		return Policy{}, fmt.Errorf("alerting profile is required (standard or sensitive)")
	}
	return Policy{}, fmt.Errorf("unknown alerting profile %q", name)
}

// Validate checks the policy for errors.
func (p Policy) Validate() error {
	switch p.ThresholdMode {
	case ThresholdFirstMatch, ThresholdExhaustive:
	default:
		return fmt.Errorf("invalid threshold mode %q", p.ThresholdMode)
	}
	switch p.Fallback {
	case classifier.FallbackZero, classifier.FallbackStrict:
	default:
		return fmt.Errorf("invalid fallback policy %q", p.Fallback)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("profile=%s warning_alerts=%t threshold_mode=%s fallback=%s cooldown=%s",
		p.Profile, p.WarningAlerts, p.ThresholdMode, p.Fallback, p.Cooldown)
}

// PolicyConfig is the YAML form of a Policy. Explicit fields override
// the values implied by Profile.
type PolicyConfig struct {
	Profile       string `yaml:"profile"`
	WarningAlerts *bool  `yaml:"warning_alerts,omitempty"`
	ThresholdMode string `yaml:"threshold_mode,omitempty"`
	Fallback      string `yaml:"fallback,omitempty"`
	Cooldown      string `yaml:"cooldown,omitempty"`
	// Watch reloads the policy when the config file changes.
	Watch bool `yaml:"watch,omitempty"`
}

// Resolve builds the effective Policy.
func (c PolicyConfig) Resolve() (Policy, error) {
	p, err := ProfilePolicy(c.Profile)
	if err != nil {
		return Policy{}, err
	}

	if c.WarningAlerts != nil {
		p.WarningAlerts = *c.WarningAlerts
	}
	if c.ThresholdMode != "" {
		p.ThresholdMode = ThresholdMode(strings.ToLower(c.ThresholdMode))
	}
	if c.Fallback != "" {
		fb, err := classifier.ParseFallbackPolicy(c.Fallback)
		if err != nil {
			return Policy{}, err
		}
		p.Fallback = fb
	}
	if c.Cooldown != "" {
		d, err := time.ParseDuration(c.Cooldown)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid cooldown duration: %w", err)
		}
		p.Cooldown = d
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
