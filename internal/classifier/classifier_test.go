package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

func normalSample() *models.Sample {
	return &models.Sample{
		PatientID:        "PAT001",
		HeartRate:        75,
		SystolicBP:       120,
		DiastolicBP:      80,
		Temperature:      98.6,
		OxygenSaturation: 97,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.Sample)
		want   models.Severity
	}{
		{"all normal", func(s *models.Sample) {}, models.SeverityNormal},
		{"heart rate high critical", func(s *models.Sample) { s.HeartRate = 125 }, models.SeverityCritical},
		{"heart rate low critical", func(s *models.Sample) { s.HeartRate = 45 }, models.SeverityCritical},
		{"heart rate high warning", func(s *models.Sample) { s.HeartRate = 105 }, models.SeverityWarning},
		{"heart rate low warning", func(s *models.Sample) { s.HeartRate = 55 }, models.SeverityWarning},
		{"heart rate at critical edge", func(s *models.Sample) { s.HeartRate = 120 }, models.SeverityWarning},
		{"heart rate at warning edge", func(s *models.Sample) { s.HeartRate = 100 }, models.SeverityNormal},
		{"systolic high critical", func(s *models.Sample) { s.SystolicBP = 181 }, models.SeverityCritical},
		{"systolic low critical", func(s *models.Sample) { s.SystolicBP = 89 }, models.SeverityCritical},
		{"systolic warning", func(s *models.Sample) { s.SystolicBP = 150 }, models.SeverityWarning},
		{"systolic low warning", func(s *models.Sample) { s.SystolicBP = 95 }, models.SeverityWarning},
		{"diastolic critical", func(s *models.Sample) { s.DiastolicBP = 121 }, models.SeverityCritical},
		{"diastolic low critical", func(s *models.Sample) { s.DiastolicBP = 49 }, models.SeverityCritical},
		{"diastolic warning", func(s *models.Sample) { s.DiastolicBP = 95 }, models.SeverityWarning},
		{"fever critical", func(s *models.Sample) { s.Temperature = 102 }, models.SeverityCritical},
		{"hypothermia critical", func(s *models.Sample) { s.Temperature = 94.5 }, models.SeverityCritical},
		{"low grade fever warning", func(s *models.Sample) { s.Temperature = 100 }, models.SeverityWarning},
		{"cool warning", func(s *models.Sample) { s.Temperature = 96.5 }, models.SeverityWarning},
		{"spo2 critical", func(s *models.Sample) { s.OxygenSaturation = 88 }, models.SeverityCritical},
		{"spo2 warning", func(s *models.Sample) { s.OxygenSaturation = 93 }, models.SeverityWarning},
		{"spo2 at 100", func(s *models.Sample) { s.OxygenSaturation = 100 }, models.SeverityNormal},
		{
			"critical wins over warning",
			func(s *models.Sample) { s.HeartRate = 105; s.OxygenSaturation = 85 },
			models.SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := normalSample()
			tt.mutate(s)
			assert.Equal(t, tt.want, Classify(s))
		})
	}
}

func TestClassify_AnyCriticalVitalDominates(t *testing.T) {
	critical := map[models.VitalType]float64{
		models.VitalHeartRate:        130,
		models.VitalSystolicBP:       200,
		models.VitalDiastolicBP:      40,
		models.VitalTemperature:      103,
		models.VitalOxygenSaturation: 80,
	}
	warnings := []func(s *models.Sample){
		func(s *models.Sample) {},
		func(s *models.Sample) { s.HeartRate = 105 },
		func(s *models.Sample) { s.SystolicBP = 150; s.Temperature = 99.8 },
	}

	for vital, value := range critical {
		for _, warn := range warnings {
			s := normalSample()
			warn(s)
			setVital(s, vital, value)
			assert.Equal(t, models.SeverityCritical, Classify(s), "vital %s=%v", vital, value)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	a := normalSample()
	a.HeartRate = 101
	b := *a
	b.PatientID = "PAT999"
	b.RoomNumber = "ICU-1"
	assert.Equal(t, Classify(a), Classify(&b))
}

func TestClassify_FallbackPolicies(t *testing.T) {
	missingHR := normalSample()
	missingHR.HeartRate = 0
	missingHR.Missing = missingHR.Missing.With(models.VitalHeartRate)

	malformedTemp := normalSample()
	malformedTemp.Malformed = malformedTemp.Malformed.With(models.VitalTemperature)

	tests := []struct {
		name      string
		policy    FallbackPolicy
		sample    *models.Sample
		want      models.Severity
		wantVital models.VitalType
	}{
		{"zero policy treats missing as 0", FallbackZero, missingHR, models.SeverityCritical, ""},
		{"strict policy yields unknown for missing", FallbackStrict, missingHR, models.SeverityUnknown, models.VitalHeartRate},
		{"zero policy yields unknown for malformed", FallbackZero, malformedTemp, models.SeverityUnknown, models.VitalTemperature},
		{"strict policy yields unknown for malformed", FallbackStrict, malformedTemp, models.SeverityUnknown, models.VitalTemperature},
		{"strict policy with complete sample", FallbackStrict, normalSample(), models.SeverityNormal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.policy)
			sev, err := c.Explain(tt.sample)
			assert.Equal(t, tt.want, sev)
			if tt.wantVital == "" {
				assert.NoError(t, err)
				return
			}
			var ce *models.ClassificationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantVital, ce.Vital)
		})
	}
}

func TestClassify_Degenerate(t *testing.T) {
	assert.Equal(t, models.SeverityUnknown, Classify(nil))

	s := normalSample()
	s.Temperature = math.NaN()
	assert.Equal(t, models.SeverityUnknown, Classify(s))
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FallbackZero, p)

	p, err = ParseFallbackPolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, FallbackStrict, p)

	_, err = ParseFallbackPolicy("lenient")
	assert.Error(t, err)

	assert.Equal(t, FallbackZero, New("bogus").Fallback())
}

func setVital(s *models.Sample, v models.VitalType, value float64) {
	switch v {
	case models.VitalHeartRate:
		s.HeartRate = value
	case models.VitalSystolicBP:
		s.SystolicBP = value
	case models.VitalDiastolicBP:
		s.DiastolicBP = value
	case models.VitalTemperature:
		s.Temperature = value
	case models.VitalOxygenSaturation:
		s.OxygenSaturation = value
	}
}
