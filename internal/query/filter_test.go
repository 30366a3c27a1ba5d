package query

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

var filterNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func filterSample(id string, hr float64, room string, ts time.Time) *models.Sample {
	return &models.Sample{
		PatientID:        id,
		RoomNumber:       room,
		Timestamp:        ts,
		HeartRate:        hr,
		SystolicBP:       120,
		DiastolicBP:      80,
		Temperature:      98.6,
		OxygenSaturation: 98,
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"numeric comparison", `heartRate > 120`, false},
		{"and logic", `heartRate > 100 and temperature >= 99.5`, false},
		{"or logic", `oxygenSaturation < 90 or systolicBP > 180`, false},
		{"not logic", `not (roomNumber startsWith "4")`, false},
		{"in operator", `severity in ["Critical", "Warning"]`, false},
		{"contains", `patientCondition contains "post-op"`, false},
		{"time function", `timestamp > now() - duration("1h")`, false},
		{"builtin", `lower(dataQuality) == "poor"`, false},

		{"empty expression", ``, true},
		{"unknown field", `bloodType == "A"`, true},
		{"syntax error", `heartRate >`, true},
		{"operator not allowed", `severity > "Normal"`, true},
		{"string op on vital", `heartRate contains "1"`, true},
		{"not boolean", `heartRate + 1`, true},
		{"member access", `patientId.length == 3`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.expr, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !models.IsValidation(err) {
				t.Errorf("expected a validation error, got %T", err)
			}
		})
	}
}

func TestFilter_Match(t *testing.T) {
	now := func() time.Time { return filterNow }
	s := filterSample("PAT001", 130, "412", filterNow.Add(-30*time.Minute))

	tests := []struct {
		expr string
		want bool
	}{
		{`heartRate > 120`, true},
		{`heartRate > 130`, false},
		{`severity == "Critical"`, true},
		{`roomNumber startsWith "4" and patientId == "PAT001"`, true},
		{`timestamp > now() - duration("1h")`, true},
		{`timestamp > now() - duration("10m")`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ParseFilter(tt.expr, now)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := f.Match(s)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_NilMatchesEverything(t *testing.T) {
	var f *Filter
	ok, err := f.Match(filterSample("PAT001", 72, "101", filterNow))
	if err != nil || !ok {
		t.Fatalf("nil filter: ok=%v err=%v", ok, err)
	}

	res := &RangeResult{PatientID: "PAT001", Count: 3}
	got, err := f.Range(res)
	if err != nil || got != res {
		t.Fatalf("nil filter should return the result unchanged")
	}
	if f.String() != "" {
		t.Errorf("expected empty string, got %q", f.String())
	}
}

func TestFilter_Range(t *testing.T) {
	f, err := ParseFilter(`heartRate >= 100`, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	samples := []*models.Sample{
		filterSample("PAT001", 72, "101", filterNow.Add(-3*time.Minute)),
		filterSample("PAT001", 110, "101", filterNow.Add(-2*time.Minute)),
		filterSample("PAT001", 130, "101", filterNow.Add(-1*time.Minute)),
	}
	res := &RangeResult{
		PatientID: "PAT001",
		Samples:   samples,
		Stats:     Summarize(samples),
		Count:     len(samples),
	}

	got, err := f.Range(res)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if got.Count != 2 || len(got.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", got.Count)
	}
	if got.Samples[0].HeartRate != 110 || got.Samples[1].HeartRate != 130 {
		t.Errorf("order not preserved: %v, %v", got.Samples[0].HeartRate, got.Samples[1].HeartRate)
	}
	if hr := got.Stats[models.VitalHeartRate.JSONKey()]; hr.Min != 110 || hr.Max != 130 || hr.Avg != 120 {
		t.Errorf("statistics not recomputed: %+v", hr)
	}
	if res.Count != 3 {
		t.Error("input result was modified")
	}
}

func TestFilter_Recent(t *testing.T) {
	f, err := ParseFilter(`severity != "Normal"`, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	res := &RecentResult{
		Latest: map[string]*models.Sample{
			"PAT001": filterSample("PAT001", 72, "101", filterNow),
			"PAT002": filterSample("PAT002", 150, "102", filterNow),
		},
		RecordCounts:  map[string]int{"PAT001": 4, "PAT002": 2},
		TotalRecords:  6,
		TotalPatients: 2,
	}

	got, err := f.Recent(res)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if got.TotalPatients != 1 || got.TotalRecords != 2 {
		t.Fatalf("unexpected totals: %d patients, %d records", got.TotalPatients, got.TotalRecords)
	}
	if _, ok := got.Latest["PAT002"]; !ok {
		t.Error("expected PAT002 to match")
	}
}

func TestFieldDef_IsOperatorAllowed(t *testing.T) {
	field := SampleFields["severity"]

	tests := []struct {
		op   string
		want bool
	}{
		{"==", true},
		{"!=", true},
		{"in", true},
		{">=", false},
		{"contains", false},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			if got := field.IsOperatorAllowed(tt.op); got != tt.want {
				t.Errorf("IsOperatorAllowed(%q) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}
