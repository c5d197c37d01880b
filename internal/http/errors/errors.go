// Package errors writes JSON error responses and logs the underlying cause
// with the chi request id.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jw6ventures/calgrid/internal/log"
)

// MessageUnauthenticated is the body text of every 401 response.
const MessageUnauthenticated = "Please authenticate"

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response", err)
	}
}

// Write sends {"error": message} with status.
func Write(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorBody{Error: message})
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)

	// Return generic error to client
	Write(w, http.StatusInternalServerError, "internal server error")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	log.Warn("bad request", withRequestID(r, "err", err)...)
	Write(w, http.StatusBadRequest, clientMessage)
}

func Unauthorized(w http.ResponseWriter, r *http.Request) {
	log.Debug("unauthenticated request", withRequestID(r, "path", r.URL.Path)...)
	Write(w, http.StatusUnauthorized, MessageUnauthenticated)
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Write(w, http.StatusNotFound, message)
}

func LogError(r *http.Request, message string, err error) {
	log.Error(message, err, withRequestID(r)...)
}

func LogInfo(r *http.Request, message string, kv ...any) {
	log.Info(message, withRequestID(r, kv...)...)
}

func withRequestID(r *http.Request, kv ...any) []any {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return append([]any{"request_id", id}, kv...)
	}
	return kv
}
