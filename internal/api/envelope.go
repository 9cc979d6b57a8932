package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error kinds shared by every endpoint. Reason keys are stable identifiers
// mapped to localized copy by callers; detail strings are for operators only.
const (
	KindValidation = "VALIDATION"
	KindNotFound   = "NOT_FOUND"
	KindDeny       = "DENY"
	KindIntegrity  = "INTEGRITY"
	KindInternal   = "INTERNAL"
)

// ErrorBody is the single error shape returned by the service:
// {"error":{"kind":..., "reasonKey":..., "detail":...}}.
type ErrorBody struct {
	Kind      string `json:"kind"`
	ReasonKey string `json:"reasonKey"`
	Detail    string `json:"detail,omitempty"`
	Upsell    string `json:"upsell,omitempty"`
}

// Envelope wraps an ErrorBody plus optional sibling fields (e.g. usageCount
// on a blocked delete).
type Envelope struct {
	Error ErrorBody      `json:"error"`
	Extra map[string]any `json:"-"`
}

// WriteJSON serialises v as JSON and writes it with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("WriteJSON: failed to encode response", "error", err)
	}
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, map[string]any{"error": body})
}

// WriteErrorExtra writes the error envelope with additional top-level fields.
func WriteErrorExtra(w http.ResponseWriter, status int, body ErrorBody, extra map[string]any) {
	payload := map[string]any{"error": body}
	for k, v := range extra {
		payload[k] = v
	}
	WriteJSON(w, status, payload)
}
