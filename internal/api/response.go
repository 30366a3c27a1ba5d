package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Response is a standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{Data: data}
	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)

	resp := Response{Error: err}
	json.NewEncoder(w).Encode(resp)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// fail maps err and writes it. Server-side failures are logged with the
// underlying cause.
func fail(w http.ResponseWriter, r *http.Request, logger *zap.Logger, op string, err error) {
	apiErr := FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error(op+" failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	JSONError(w, apiErr)
}

func decodeJSON(r *http.Request, v any) *Error {
	if r.Body == nil {
		return NewBadRequest("request body is required")
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return NewBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

func readBody(r *http.Request) ([]byte, *Error) {
	if r.Body == nil {
		return nil, NewBadRequest("request body is required")
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, NewBadRequest("read body: " + err.Error())
	}
	if len(data) > maxBodyBytes {
		return nil, NewBadRequest("request body too large")
	}
	return data, nil
}

const maxBodyBytes = 1 << 20
