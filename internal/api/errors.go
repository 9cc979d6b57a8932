package api

import "net/http"

// Validation writes a 422 error response.
func Validation(w http.ResponseWriter, reasonKey string, detail ...string) {
	WriteError(w, http.StatusUnprocessableEntity, ErrorBody{Kind: KindValidation, ReasonKey: reasonKey, Detail: first(detail)})
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, reasonKey string) {
	WriteError(w, http.StatusNotFound, ErrorBody{Kind: KindNotFound, ReasonKey: reasonKey})
}

// Deny writes a 403 error response.
func Deny(w http.ResponseWriter, reasonKey string, detail ...string) {
	WriteError(w, http.StatusForbidden, ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: first(detail)})
}

// DenyUpsell writes a 403 refusal that carries an upsell hint.
func DenyUpsell(w http.ResponseWriter, reasonKey, detail string) {
	WriteError(w, http.StatusForbidden, ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: detail, Upsell: "UP"})
}

// TooLarge writes a 413 tier-cap refusal with an upsell hint.
func TooLarge(w http.ResponseWriter, reasonKey, detail string) {
	WriteError(w, http.StatusRequestEntityTooLarge, ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: detail, Upsell: "UP"})
}

// Integrity writes a 409 drift-detected response.
func Integrity(w http.ResponseWriter, reasonKey string, detail ...string) {
	WriteError(w, http.StatusConflict, ErrorBody{Kind: KindIntegrity, ReasonKey: reasonKey, Detail: first(detail)})
}

// Conflict writes a 409 response for non-integrity conflicts.
func Conflict(w http.ResponseWriter, kind, reasonKey string) {
	WriteError(w, http.StatusConflict, ErrorBody{Kind: kind, ReasonKey: reasonKey})
}

// Internal writes a 500 with an operator-facing detail string.
func Internal(w http.ResponseWriter, reasonKey string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	WriteError(w, http.StatusInternalServerError, ErrorBody{Kind: KindInternal, ReasonKey: reasonKey, Detail: detail})
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrorBody{Kind: KindDeny, ReasonKey: "errors.auth.required"})
}

func first(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
