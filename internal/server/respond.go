package server

import (
	"encoding/json"
	"io"
	"net/http"
)

// errorResponse is the JSON body of every API error.
type errorResponse struct {
	Error string `json:"error"`
}

// successResponse acknowledges a state change.
type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// writeText writes message verbatim. Unlike http.Error it appends no newline.
func writeText(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, message)
}
