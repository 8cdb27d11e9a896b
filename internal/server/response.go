package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/gatehouse/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	writeEnvelope(w, http.StatusOK, model.Response{Status: "ok", RequestID: reqID, Data: data})
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	writeEnvelope(w, status, model.Response{Status: "error", RequestID: reqID, Error: apiErr})
}

// respondUnauthorized is the API's answer to a request without a session.
func respondUnauthorized(w http.ResponseWriter, reqID string) {
	respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
		Code:    model.ErrCodeUnauthorized,
		Message: "authentication required",
	})
}

func respondForbidden(w http.ResponseWriter, reqID, msg string) {
	respondError(w, reqID, http.StatusForbidden, &model.APIError{
		Code:    model.ErrCodeForbidden,
		Message: msg,
	})
}

func respondInternal(w http.ResponseWriter, reqID, msg string) {
	respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrCodeInternal,
		Message: msg,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp model.Response) {
	resp.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
