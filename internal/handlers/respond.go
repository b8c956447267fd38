// Package handlers holds the HTTP surface. Every response uses the same
// envelope: {"ok":true,"data":...,"requestId":"..."} on success,
// {"ok":false,"error":{"code","message"},"requestId":"..."} on failure. The
// error code is machine-readable and stable; clients switch on it, not on the
// message.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/briefmarket/backend/internal/middleware"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	OK        bool       `json:"ok"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, envelope{
		OK: true, Data: data, RequestID: middleware.RequestIDFromCtx(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, envelope{
		OK: false, Error: &errorBody{Code: code, Message: message},
		RequestID: middleware.RequestIDFromCtx(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeInternal(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
}
