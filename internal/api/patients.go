package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

func (s *Server) admitPatient(w http.ResponseWriter, r *http.Request) {
	var p models.PatientInfo
	if apiErr := decodeJSON(r, &p); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	admitted, err := s.services.Configs.Admit(r.Context(), p)
	if err != nil {
		fail(w, r, s.logger, "admit patient", err)
		return
	}
	Created(w, admitted)
}

func (s *Server) getPatient(w http.ResponseWriter, r *http.Request) {
	rec, err := s.services.Configs.Patient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		fail(w, r, s.logger, "get patient", err)
		return
	}
	OK(w, rec)
}

func (s *Server) patientConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.services.Configs.ListForPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		fail(w, r, s.logger, "list patient configs", err)
		return
	}
	OK(w, configs)
}
