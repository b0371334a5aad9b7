// Package httpapi writes the JSON bodies shared by every API route.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/iota-uz/lms-admin/pkg/serrors"
)

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// WriteJSON writes payload with status. A nil payload leaves the body empty.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteCodedError renders err using the code of the first serrors.BaseError
// in its chain, or fallbackCode when there is none.
func WriteCodedError(w http.ResponseWriter, status int, err error, fallbackCode string) error {
	code := serrors.CodeOf(err)
	if code == "" {
		code = fallbackCode
	}
	return WriteError(w, status, code, err.Error(), nil)
}
