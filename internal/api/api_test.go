package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/alerting"
	"github.com/good-yellow-bee/vitalwatch/internal/ingest"
	"github.com/good-yellow-bee/vitalwatch/internal/lifecycle"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/query"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

const criticalSample = `{"patientId":"PAT001","timestamp":"2024-01-15T10:30:00Z","heartRate":45,
	"systolicBP":120,"diastolicBP":80,"temperature":98.6,"oxygenSaturation":97,"roomNumber":"ICU-101"}`

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

func setupServer(t *testing.T) *Server {
	t.Helper()

	store := storage.New(storage.DialectSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	now := func() time.Time { return t0.Add(time.Minute) }

	policy, err := alerting.ProfilePolicy(alerting.ProfileStandard)
	require.NoError(t, err)
	engine, err := alerting.NewEngine(store.Thresholds(), policy, zap.NewNop())
	require.NoError(t, err)
	manager := lifecycle.NewManager(store.Alerts(), store.Samples(), nil, zap.NewNop(), lifecycle.Options{Clock: now})

	srv, err := New(&Config{Address: ":0"}, Services{
		Vitals:  query.NewService(store.Samples(), store.Patients(), now),
		Ingest:  ingest.NewPipeline(store.Samples(), engine, manager, zap.NewNop()),
		Alerts:  manager,
		Configs: query.NewConfigService(store.Thresholds(), store.Patients(), now),
	}, zap.NewNop())
	require.NoError(t, err)
	srv.now = now
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := New(nil, Services{}, nil)
	assert.Error(t, err)

	_, err = New(&Config{}, Services{}, nil)
	assert.Error(t, err)
}

func TestPostVitals(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/vitals", criticalSample)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decodeData[ingest.Result](t, env)
	assert.True(t, res.Decision.ShouldAlert)
	assert.Equal(t, models.AlertKindCritical, res.Decision.Kind)
	require.NotNil(t, res.Alert)
	assert.NotEmpty(t, res.Alert.ID)
	assert.Equal(t, "ICU-101", res.Alert.RoomNumber)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/vitals", criticalSample)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[ingest.Result](t, env).Duplicate)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"patientId":`},
		{"missing patient", `{"heartRate":72}`},
		{"bad timestamp", `{"patientId":"PAT001","timestamp":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, srv, http.MethodPost, "/api/v1/vitals", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
		})
	}
}

func TestGetVitals(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodGet, "/api/v1/vitals?patientId=PAT001&latest=true", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/vitals", criticalSample)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("latest", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet, "/api/v1/vitals?patientId=PAT001&latest=true", "")
		require.Equal(t, http.StatusOK, rec.Code)
		res := decodeData[LatestResponse](t, env)
		assert.Equal(t, "PAT001", res.PatientID)
		assert.Equal(t, 45.0, res.Latest.HeartRate)
		assert.Equal(t, "Unknown Patient", res.PatientInfo.Name)
	})

	t.Run("explicit range", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet,
			"/api/v1/vitals?patientId=PAT001&startTime=2024-01-15T10:00:00Z&endTime=2024-01-15T11:00:00Z", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, 1, res.Count)
	})

	t.Run("empty range", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet,
			"/api/v1/vitals?patientId=PAT001&startTime=2024-01-14T10:00:00Z&endTime=2024-01-14T11:00:00Z", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Zero(t, res.Count)
	})

	t.Run("named time range", func(t *testing.T) {
		rec, _ := do(t, srv, http.MethodGet, "/api/v1/vitals?patientId=PAT001&timeRange=6h", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("all patients", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet, "/api/v1/vitals?timeRange=1h", "")
		require.Equal(t, http.StatusOK, rec.Code)
		res := decodeData[query.RecentResult](t, env)
		assert.Equal(t, 1, res.TotalPatients)
		assert.Contains(t, res.Latest, "PAT001")
	})

	t.Run("filter", func(t *testing.T) {
		rangePath := "/api/v1/vitals?patientId=PAT001&startTime=2024-01-15T10:00:00Z&endTime=2024-01-15T11:00:00Z&filter="
		var res struct {
			Count int `json:"count"`
		}

		rec, env := do(t, srv, http.MethodGet, rangePath+url.QueryEscape("heartRate < 50"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, 1, res.Count)

		rec, env = do(t, srv, http.MethodGet, rangePath+url.QueryEscape("heartRate > 100"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Zero(t, res.Count)

		rec, env = do(t, srv, http.MethodGet, "/api/v1/vitals?filter="+url.QueryEscape(`severity == "Normal"`), "")
		require.Equal(t, http.StatusOK, rec.Code)
		recent := decodeData[query.RecentResult](t, env)
		assert.Zero(t, recent.TotalPatients)

		rec, env = do(t, srv, http.MethodGet, "/api/v1/vitals?filter="+url.QueryEscape("bloodType == 1"), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
	})

	t.Run("bad params", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/vitals?limit=ten",
			"/api/v1/vitals?patientId=PAT001&startTime=noon&endTime=2024-01-15T11:00:00Z",
		} {
			rec, _ := do(t, srv, http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		}
	})
}

func TestAlerts(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/vitals", criticalSample)
	require.Equal(t, http.StatusCreated, rec.Code)
	alertID := decodeData[ingest.Result](t, env).Alert.ID

	rec, env = do(t, srv, http.MethodGet, "/api/v1/alerts?patientId=PAT001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[lifecycle.ListResult](t, env)
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, 1, list.Stats.Total)
	assert.Equal(t, 1, list.Stats.ByKind["CRITICAL"])

	rec, env = do(t, srv, http.MethodPut, "/api/v1/alerts/"+alertID+"/acknowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	acked := decodeData[models.Alert](t, env)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)

	rec, _ = do(t, srv, http.MethodPut, "/api/v1/alerts/"+alertID+"/acknowledge", "")
	assert.Equal(t, http.StatusOK, rec.Code, "acknowledging twice is idempotent")

	rec, env = do(t, srv, http.MethodPut, "/api/v1/alerts/UNKNOWN-ID/acknowledge", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/alerts?status=ACKNOWLEDGED&type=CRITICAL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[lifecycle.ListResult](t, env).Alerts, 1)

	for _, path := range []string{
		"/api/v1/alerts?type=BOGUS",
		"/api/v1/alerts?hours=abc",
		"/api/v1/alerts?limit=-1",
	} {
		rec, _ := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestConfigs(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/alerts/config",
		`{"patientId":"PAT001","vitalType":"heart_rate","thresholdMax":70}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeData[models.ThresholdConfig](t, env)
	assert.Equal(t, "PAT001", c.PatientID)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/vitals", `{"patientId":"PAT001","heartRate":75,
		"systolicBP":120,"diastolicBP":80,"temperature":98.6,"oxygenSaturation":97}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, srv, http.MethodPut, "/api/v1/alerts/config/PAT001-heart_rate", `{"alertEnabled":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/patients/PAT001/configs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	configs := decodeData[[]*models.ThresholdConfig](t, env)
	require.Len(t, configs, 1)
	assert.False(t, configs[0].Enabled)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed id", http.MethodPut, "/api/v1/alerts/config/nodash", `{}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown config", http.MethodPut, "/api/v1/alerts/config/PAT999-heart_rate", `{}`, http.StatusNotFound, ErrCodeNotFound},
		{"bad body", http.MethodPut, "/api/v1/alerts/config/PAT001-heart_rate", `[`, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing vital", http.MethodPost, "/api/v1/alerts/config", `{"patientId":"PAT001"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"delete unknown", http.MethodDelete, "/api/v1/alerts/config/PAT999-heart_rate", "", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	rec, _ = do(t, srv, http.MethodDelete, "/api/v1/alerts/config/PAT001-heart_rate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPatients(t *testing.T) {
	srv := setupServer(t)
	body := `{"patientId":"P001","name":"Ada Example","age":67,"gender":"F","roomNumber":"101"}`

	rec, env := do(t, srv, http.MethodPost, "/api/v1/patients", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeData[models.PatientInfo](t, env)
	assert.Equal(t, models.PatientStatusActive, p.Status)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/patients", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrCodeConflict, env.Error.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/patients/P001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		ID      string                    `json:"patientId"`
		Configs []*models.ThresholdConfig `json:"alertConfigurations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "P001", got.ID)
	assert.Len(t, got.Configs, 5)

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/patients/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/patients", `{"patientId":"P002"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
}

func TestHealthRoutes(t *testing.T) {
	srv := setupServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec, env := do(t, srv, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)
}

type brokenAlerts struct{}

func (brokenAlerts) List(context.Context, lifecycle.Filter) (*lifecycle.ListResult, error) {
	return nil, models.Dependency("list alerts", errors.New("connection reset"))
}

func (brokenAlerts) Acknowledge(context.Context, string) (*models.Alert, error) {
	return nil, context.DeadlineExceeded
}

func TestDependencyFailures(t *testing.T) {
	srv := setupServer(t)
	srv.services.Alerts = brokenAlerts{}

	rec, env := do(t, srv, http.MethodGet, "/api/v1/alerts", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, env.Error.Code)
	assert.NotContains(t, env.Error.Message, "connection reset")

	rec, env = do(t, srv, http.MethodPut, "/api/v1/alerts/a1/acknowledge", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeTimeout, env.Error.Code)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound},
		{"validation", models.NewValidationError("x", "bad"), http.StatusBadRequest},
		{"conflict", models.ErrConflict, http.StatusConflict},
		{"api error", NewBadRequest("nope"), http.StatusBadRequest},
		{"dependency", models.Dependency("op", errors.New("boom")), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, FromError(tt.err).Status)
		})
	}
}
