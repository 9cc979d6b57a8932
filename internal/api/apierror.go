package api

import (
	"errors"
	"net/http"
)

// Error carries the envelope through service-layer returns so handlers can
// write it without re-deriving status codes.
type Error struct {
	Status int
	Body   ErrorBody
	Extra  map[string]any
}

func (e *Error) Error() string {
	if e.Body.Detail != "" {
		return e.Body.ReasonKey + ": " + e.Body.Detail
	}
	return e.Body.ReasonKey
}

func ErrValidation(reasonKey string, detail ...string) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Body: ErrorBody{Kind: KindValidation, ReasonKey: reasonKey, Detail: first(detail)}}
}

func ErrNotFound(reasonKey string) *Error {
	return &Error{Status: http.StatusNotFound, Body: ErrorBody{Kind: KindNotFound, ReasonKey: reasonKey}}
}

func ErrDeny(reasonKey string, detail ...string) *Error {
	return &Error{Status: http.StatusForbidden, Body: ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: first(detail)}}
}

func ErrDenyUpsell(reasonKey, detail string) *Error {
	return &Error{Status: http.StatusForbidden, Body: ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: detail, Upsell: "UP"}}
}

func ErrTooLarge(reasonKey, detail string) *Error {
	return &Error{Status: http.StatusRequestEntityTooLarge, Body: ErrorBody{Kind: KindDeny, ReasonKey: reasonKey, Detail: detail, Upsell: "UP"}}
}

func ErrIntegrity(reasonKey string, extra map[string]any) *Error {
	return &Error{Status: http.StatusConflict, Body: ErrorBody{Kind: KindIntegrity, ReasonKey: reasonKey}, Extra: extra}
}

func ErrConflict(kind, reasonKey string, extra map[string]any) *Error {
	return &Error{Status: http.StatusConflict, Body: ErrorBody{Kind: kind, ReasonKey: reasonKey}, Extra: extra}
}

func ErrInternal(reasonKey string, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Error{Status: http.StatusInternalServerError, Body: ErrorBody{Kind: KindInternal, ReasonKey: reasonKey, Detail: detail}}
}

// Write maps a service-layer error onto the response. Unrecognized errors
// become opaque 500s.
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if len(apiErr.Extra) > 0 {
			WriteErrorExtra(w, apiErr.Status, apiErr.Body, apiErr.Extra)
			return
		}
		WriteError(w, apiErr.Status, apiErr.Body)
		return
	}
	Internal(w, "errors.internal", err)
}
