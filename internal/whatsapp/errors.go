package whatsapp

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx Graph API response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
	Body       string `json:"-"`
}

// Graph error codes worth branching on
const (
	CodeInvalidToken      = 190
	CodePermissionDenied  = 10
	CodeMissingPermission = 200
)

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("graph api %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("graph api %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsAuth reports whether the token itself was rejected
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == CodeInvalidToken
}

// IsPermission reports whether the token lacks a permission
func (e *APIError) IsPermission() bool {
	return e.StatusCode == http.StatusForbidden || e.Code == CodePermissionDenied || e.Code == CodeMissingPermission
}

func parseAPIError(status int, raw []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = status
		return envelope.Error
	}
	return &APIError{StatusCode: status, Body: string(raw)}
}
