package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

// ConfigInput is the body of a create request. Enabled defaults to true.
type ConfigInput struct {
	PatientID string   `json:"patientId"`
	VitalType string   `json:"vitalType"`
	Enabled   *bool    `json:"alertEnabled"`
	Min       *float64 `json:"thresholdMin"`
	Max       *float64 `json:"thresholdMax"`
}

// ConfigPatch holds the fields an update may change. Nil fields are kept.
type ConfigPatch struct {
	Enabled *bool    `json:"alertEnabled"`
	Min     *float64 `json:"thresholdMin"`
	Max     *float64 `json:"thresholdMax"`
}

// ConfigService manages threshold configs and patient admission.
type ConfigService struct {
	thresholds storage.ThresholdRepository
	patients   storage.PatientRepository
	now        func() time.Time
}

// NewConfigService creates a config service. now defaults to time.Now.
func NewConfigService(thresholds storage.ThresholdRepository, patients storage.PatientRepository, now func() time.Time) *ConfigService {
	if now == nil {
		now = time.Now
	}
	return &ConfigService{thresholds: thresholds, patients: patients, now: now}
}

// Create stores a config, replacing any existing one for the same
// patient and vital type.
func (s *ConfigService) Create(ctx context.Context, in ConfigInput) (*models.ThresholdConfig, error) {
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, models.NewValidationError("patientId", "missing required field: patientId")
	}
	if in.VitalType == "" {
		return nil, models.NewValidationError("vitalType", "missing required field: vitalType")
	}
	vital, err := models.ParseVitalType(in.VitalType)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &models.ThresholdConfig{
		PatientID: strings.TrimSpace(in.PatientID),
		VitalType: vital,
		Enabled:   in.Enabled == nil || *in.Enabled,
		Min:       in.Min,
		Max:       in.Max,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.thresholds.Put(ctx, c); err != nil {
		return nil, models.Dependency("create threshold config", err)
	}
	return c, nil
}

// Update applies patch to the config named by id ("<patientId>-<vitalType>").
func (s *ConfigService) Update(ctx context.Context, id string, patch ConfigPatch) (*models.ThresholdConfig, error) {
	patientID, vital, err := models.ParseConfigID(id)
	if err != nil {
		return nil, err
	}

	c, err := s.thresholds.Get(ctx, patientID, vital)
	if err != nil {
		return nil, models.Dependency("get threshold config", err)
	}
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	if patch.Min != nil {
		c.Min = patch.Min
	}
	if patch.Max != nil {
		c.Max = patch.Max
	}
	c.UpdatedAt = s.now().UTC()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.thresholds.Update(ctx, c); err != nil {
		return nil, models.Dependency("update threshold config", err)
	}
	return c, nil
}

// Delete removes the config named by id.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	patientID, vital, err := models.ParseConfigID(id)
	if err != nil {
		return err
	}
	if err := s.thresholds.Delete(ctx, patientID, vital); err != nil {
		return models.Dependency("delete threshold config", err)
	}
	return nil
}

// ListForPatient returns every config of a patient ordered by vital type.
func (s *ConfigService) ListForPatient(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error) {
	if patientID == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}
	configs, err := s.thresholds.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, models.Dependency("list threshold configs", err)
	}
	if configs == nil {
		configs = []*models.ThresholdConfig{}
	}
	return configs, nil
}

// Admit stores a new patient and creates the default threshold configs.
// A patient that already exists yields models.ErrConflict.
func (s *ConfigService) Admit(ctx context.Context, p models.PatientInfo) (*models.PatientInfo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if p.Status == "" {
		p.Status = models.PatientStatusActive
	}
	if p.Condition == "" {
		p.Condition = "Stable"
	}
	if p.AdmittedAt.IsZero() {
		p.AdmittedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.patients.Create(ctx, &p); err != nil {
		if models.IsConflict(err) {
			return nil, fmt.Errorf("admit: %w", err)
		}
		return nil, models.Dependency("create patient", err)
	}

	for _, c := range models.DefaultThresholds(p.ID, now) {
		if err := s.thresholds.Put(ctx, c); err != nil {
			return nil, models.Dependency("create default threshold configs", err)
		}
	}
	return &p, nil
}

// PatientRecord is a stored patient with its threshold configs.
type PatientRecord struct {
	*models.PatientInfo
	Configs []*models.ThresholdConfig `json:"alertConfigurations"`
}

// Patient returns the stored patient and its configs. Unlike
// Service.PatientInfo it does not fall back: an unknown id is NotFound.
func (s *ConfigService) Patient(ctx context.Context, id string) (*PatientRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.NewValidationError("patientId", "patient id is required")
	}
	p, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, models.Dependency("get patient", err)
	}
	configs, err := s.ListForPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PatientRecord{PatientInfo: p, Configs: configs}, nil
}
