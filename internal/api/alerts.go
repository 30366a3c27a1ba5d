package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/vitalwatch/internal/lifecycle"
	"github.com/good-yellow-bee/vitalwatch/internal/query"
)

// listAlerts serves GET /alerts?patientId=&hours=&limit=&type=&status=.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hours, apiErr := intParam(q.Get("hours"), int(lifecycle.DefaultListWindow/time.Hour), "hours")
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	limit, apiErr := intParam(q.Get("limit"), lifecycle.DefaultListLimit, "limit")
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	until := s.now().UTC()
	res, err := s.services.Alerts.List(r.Context(), lifecycle.Filter{
		PatientID: strings.TrimSpace(q.Get("patientId")),
		Since:     until.Add(-time.Duration(hours) * time.Hour),
		Until:     until,
		Kind:      q.Get("type"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		fail(w, r, s.logger, "list alerts", err)
		return
	}
	OK(w, res)
}

// acknowledgeAlert serves PUT /alerts/{alertID}/acknowledge.
func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	alert, err := s.services.Alerts.Acknowledge(r.Context(), alertID)
	if err != nil {
		fail(w, r, s.logger, "acknowledge alert", err)
		return
	}
	OK(w, alert)
}

func (s *Server) createConfig(w http.ResponseWriter, r *http.Request) {
	var in query.ConfigInput
	if apiErr := decodeJSON(r, &in); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	c, err := s.services.Configs.Create(r.Context(), in)
	if err != nil {
		fail(w, r, s.logger, "create config", err)
		return
	}
	Created(w, c)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch query.ConfigPatch
	if apiErr := decodeJSON(r, &patch); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	c, err := s.services.Configs.Update(r.Context(), chi.URLParam(r, "configID"), patch)
	if err != nil {
		fail(w, r, s.logger, "update config", err)
		return
	}
	OK(w, c)
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Configs.Delete(r.Context(), chi.URLParam(r, "configID")); err != nil {
		fail(w, r, s.logger, "delete config", err)
		return
	}
	NoContent(w)
}
