package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/query"
)

// LatestResponse is the body of GET /vitals?latest=true.
type LatestResponse struct {
	PatientID   string              `json:"patientId"`
	Latest      *models.Sample      `json:"latestVitalSigns"`
	PatientInfo *models.PatientInfo `json:"patientInfo"`
	Timestamp   string              `json:"timestamp"`
}

// RangeResponse is the body of a per-patient range query.
type RangeResponse struct {
	*query.RangeResult
	PatientInfo *models.PatientInfo `json:"patientInfo"`
}

// getVitals dispatches on the query: latest sample, explicit range, named
// time range, or the newest sample of every patient. An optional filter
// expression narrows range and all-patient results.
func (s *Server) getVitals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, apiErr := intParam(q.Get("limit"), query.DefaultLimit, "limit")
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	var filter *query.Filter
	if raw := strings.TrimSpace(q.Get("filter")); raw != "" {
		var err error
		if filter, err = query.ParseFilter(raw, s.now); err != nil {
			fail(w, r, s.logger, "parse filter", err)
			return
		}
	}

	patientID := strings.TrimSpace(q.Get("patientId"))
	if patientID == "" {
		res, err := s.services.Vitals.RecentAll(ctx, query.ParseTimeRange(q.Get("timeRange")), limit)
		if err == nil {
			res, err = filter.Recent(res)
		}
		if err != nil {
			fail(w, r, s.logger, "recent vitals", err)
			return
		}
		OK(w, res)
		return
	}

	if strings.EqualFold(q.Get("latest"), "true") {
		s.latestVitals(w, r, patientID)
		return
	}

	var start, end time.Time
	if q.Get("startTime") != "" && q.Get("endTime") != "" {
		var err error
		if start, err = time.Parse(time.RFC3339, q.Get("startTime")); err != nil {
			JSONError(w, NewValidationError("invalid startTime: "+q.Get("startTime")))
			return
		}
		if end, err = time.Parse(time.RFC3339, q.Get("endTime")); err != nil {
			JSONError(w, NewValidationError("invalid endTime: "+q.Get("endTime")))
			return
		}
	} else {
		end = s.now().UTC()
		start = end.Add(-query.ParseTimeRange(q.Get("timeRange")))
	}

	res, err := s.services.Vitals.Range(ctx, patientID, start, end, limit)
	if err == nil {
		res, err = filter.Range(res)
	}
	if err != nil {
		fail(w, r, s.logger, "vitals range", err)
		return
	}
	info, err := s.services.Vitals.PatientInfo(ctx, patientID)
	if err != nil {
		fail(w, r, s.logger, "patient info", err)
		return
	}
	OK(w, RangeResponse{RangeResult: res, PatientInfo: info})
}

func (s *Server) latestVitals(w http.ResponseWriter, r *http.Request, patientID string) {
	ctx := r.Context()

	latest, err := s.services.Vitals.Latest(ctx, patientID)
	if err != nil {
		if models.IsNotFound(err) {
			JSONError(w, NewNotFound("No vital signs found for patient "+patientID))
			return
		}
		fail(w, r, s.logger, "latest vitals", err)
		return
	}
	info, err := s.services.Vitals.PatientInfo(ctx, patientID)
	if err != nil {
		fail(w, r, s.logger, "patient info", err)
		return
	}

	OK(w, LatestResponse{
		PatientID:   patientID,
		Latest:      latest,
		PatientInfo: info,
		Timestamp:   models.FormatTime(latest.Timestamp),
	})
}

// postVitals ingests one sample and reports the decision.
func (s *Server) postVitals(w http.ResponseWriter, r *http.Request) {
	body, apiErr := readBody(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	sample, err := models.DecodeSample(body, s.now())
	if err != nil {
		fail(w, r, s.logger, "decode sample", err)
		return
	}

	res, err := s.services.Ingest.Process(r.Context(), sample)
	if err != nil {
		fail(w, r, s.logger, "ingest sample", err)
		return
	}
	if res.Duplicate {
		OK(w, res)
		return
	}
	Created(w, res)
}

func intParam(raw string, def int, name string) (int, *Error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, NewValidationError("invalid " + name + ": " + raw)
	}
	return v, nil
}
