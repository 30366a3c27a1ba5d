package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthAndLive(t *testing.T) {
	h := NewHandler("1.2.3")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, "live", decode(t, rec).Status)
}

func TestReady(t *testing.T) {
	store := storage.New(storage.DialectSQLite, filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, store.Open())
	defer store.Close()

	h := NewHandler("dev")
	h.RegisterChecker(NewDBChecker("sqlite", store.DB()))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["sqlite"])

	h.RegisterChecker(NewFuncChecker("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

func TestCheckersUnconfigured(t *testing.T) {
	assert.Error(t, NewDBChecker("sqlite", nil).Check(context.Background()))
	assert.Error(t, NewFuncChecker("mqtt", nil).Check(context.Background()))
}
