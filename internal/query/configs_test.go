package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestConfigService_Create(t *testing.T) {
	store := setupStore(t)
	svc := NewConfigService(store.Thresholds(), store.Patients(), func() time.Time { return t0 })
	ctx := context.Background()

	c, err := svc.Create(ctx, ConfigInput{PatientID: "P001", VitalType: "heart_rate", Max: ptr(70.0)})
	require.NoError(t, err)
	assert.Equal(t, "P001-heart_rate", c.ID())
	assert.True(t, c.Enabled, "enabled by default")
	assert.Nil(t, c.Min)

	got, err := store.Thresholds().Get(ctx, "P001", models.VitalHeartRate)
	require.NoError(t, err)
	assert.Equal(t, 70.0, *got.Max)

	c, err = svc.Create(ctx, ConfigInput{PatientID: "P001", VitalType: "HEART_RATE", Enabled: ptr(false)})
	require.NoError(t, err)
	assert.False(t, c.Enabled)

	tests := []struct {
		name string
		in   ConfigInput
	}{
		{"missing patient", ConfigInput{VitalType: "heart_rate"}},
		{"missing vital", ConfigInput{PatientID: "P001"}},
		{"unknown vital", ConfigInput{PatientID: "P001", VitalType: "pulse"}},
		{"inverted bounds", ConfigInput{PatientID: "P001", VitalType: "temperature", Min: ptr(100.0), Max: ptr(97.0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestConfigService_Update(t *testing.T) {
	store := setupStore(t)
	now := t0
	svc := NewConfigService(store.Thresholds(), store.Patients(), func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.Create(ctx, ConfigInput{PatientID: "P-01", VitalType: "oxygen_saturation", Min: ptr(92.0)})
	require.NoError(t, err)

	now = t0.Add(time.Hour)
	c, err := svc.Update(ctx, "P-01-oxygen_saturation", ConfigPatch{Min: ptr(90.0), Enabled: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, 90.0, *c.Min)
	assert.False(t, c.Enabled)
	assert.True(t, c.UpdatedAt.Equal(now))

	stored, err := store.Thresholds().Get(ctx, "P-01", models.VitalOxygenSaturation)
	require.NoError(t, err)
	assert.Equal(t, 90.0, *stored.Min)
	assert.True(t, stored.CreatedAt.Equal(t0))

	_, err = svc.Update(ctx, "P-01-temperature", ConfigPatch{Max: ptr(100.0)})
	assert.True(t, models.IsNotFound(err))

	for _, id := range []string{"", "nohyphen", "P001-", "-heart_rate", "P001-pulse"} {
		_, err = svc.Update(ctx, id, ConfigPatch{})
		assert.True(t, models.IsValidation(err), "id %q", id)
	}
}

func TestConfigService_DeleteAndList(t *testing.T) {
	store := setupStore(t)
	svc := NewConfigService(store.Thresholds(), store.Patients(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, ConfigInput{PatientID: "P001", VitalType: "temperature", Max: ptr(100.4)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ConfigInput{PatientID: "P001", VitalType: "heart_rate", Max: ptr(110.0)})
	require.NoError(t, err)

	configs, err := svc.ListForPatient(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, models.VitalHeartRate, configs[0].VitalType)

	require.NoError(t, svc.Delete(ctx, "P001-heart_rate"))
	assert.True(t, models.IsNotFound(svc.Delete(ctx, "P001-heart_rate")))
	assert.True(t, models.IsValidation(svc.Delete(ctx, "garbage")))

	configs, err = svc.ListForPatient(ctx, "P404")
	require.NoError(t, err)
	assert.NotNil(t, configs)
	assert.Empty(t, configs)
}

func TestConfigService_Admit(t *testing.T) {
	store := setupStore(t)
	svc := NewConfigService(store.Thresholds(), store.Patients(), func() time.Time { return t0 })
	ctx := context.Background()

	p, err := svc.Admit(ctx, models.PatientInfo{
		ID:         "P001",
		Name:       "Ada Example",
		Age:        67,
		Gender:     "F",
		RoomNumber: "101",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PatientStatusActive, p.Status)
	assert.Equal(t, "Stable", p.Condition)
	assert.True(t, p.AdmittedAt.Equal(t0))

	configs, err := svc.ListForPatient(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, configs, 5)
	for _, c := range configs {
		assert.True(t, c.Enabled)
		require.NotNil(t, c.Min)
		require.NotNil(t, c.Max)
	}
	temp, err := store.Thresholds().Get(ctx, "P001", models.VitalTemperature)
	require.NoError(t, err)
	assert.Equal(t, 95.0, *temp.Min)
	assert.Equal(t, 101.5, *temp.Max)

	stored, err := NewService(store.Samples(), store.Patients(), nil).PatientInfo(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Example", stored.Name)

	_, err = svc.Admit(ctx, models.PatientInfo{ID: "P001", Name: "Dup", Gender: "M", RoomNumber: "102"})
	assert.True(t, models.IsConflict(err))

	_, err = svc.Admit(ctx, models.PatientInfo{ID: "P002"})
	assert.True(t, models.IsValidation(err))
}

func TestConfigService_Patient(t *testing.T) {
	store := setupStore(t)
	svc := NewConfigService(store.Thresholds(), store.Patients(), func() time.Time { return t0 })
	ctx := context.Background()

	_, err := svc.Patient(ctx, "P404")
	assert.True(t, models.IsNotFound(err), "got %v", err)

	_, err = svc.Patient(ctx, " ")
	assert.True(t, models.IsValidation(err))

	_, err = svc.Admit(ctx, models.PatientInfo{ID: "P001", Name: "Ada Example", Gender: "F", RoomNumber: "101"})
	require.NoError(t, err)

	rec, err := svc.Patient(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Example", rec.Name)
	assert.Len(t, rec.Configs, 5)
}
