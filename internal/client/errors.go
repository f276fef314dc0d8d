package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Normalized error codes.
const (
	CodeNetwork            = "NETWORK_ERROR"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServer             = "SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeUnknown            = "UNKNOWN_ERROR"
)

var messages = map[string]string{
	CodeNetwork:            "Unable to reach the server. Check your connection.",
	CodeTimeout:            "The request timed out.",
	CodeValidation:         "The submitted data is invalid.",
	CodeSessionExpired:     "Your session has expired. Please sign in again.",
	CodeForbidden:          "You do not have permission to perform this action.",
	CodeNotFound:           "The requested resource was not found.",
	CodeConflict:           "The request conflicts with existing data.",
	CodeRateLimited:        "Too many requests. Please wait and try again.",
	CodeServer:             "The server encountered an error.",
	CodeServiceUnavailable: "The service is temporarily unavailable.",
	CodeUnknown:            "An unexpected error occurred.",
}

var retryable = map[string]bool{
	CodeNetwork:            true,
	CodeTimeout:            true,
	CodeRateLimited:        true,
	CodeServer:             true,
	CodeServiceUnavailable: true,
}

// Error is the single shape every failed API call is reported as.
// Status is zero when no response was received.
type Error struct {
	Code    string
	Message string
	Status  int
	Details string
	Fields  map[string][]string
	// Data holds the remaining keys of the error body, e.g. conflicting_sites.
	Data map[string]any
	Err  error
}

func (e *Error) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + " " + e.Details
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	return retryable[e.Code]
}

// FieldNames returns the names of invalid fields in sorted order.
func (e *Error) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsRetryable reports whether err is a normalized error of a retryable class.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// CodeOf returns the normalized code of err, CodeUnknown for foreign errors
// and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func newError(code string, status int, err error) *Error {
	return &Error{Code: code, Message: messages[code], Status: status, Err: err}
}

// codeForStatus maps an HTTP status onto a normalized code.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeSessionExpired
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeServiceUnavailable
	}
	if status >= 500 && status <= 599 {
		return CodeServer
	}
	return CodeUnknown
}

// newTransportError classifies a failure where no response was received.
func newTransportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(CodeTimeout, 0, err)
	}
	return newError(CodeNetwork, 0, err)
}

// newHTTPError builds an Error from a non-2xx response. Field messages are
// read from a "fields" object or from top-level DRF-style arrays.
func newHTTPError(status int, body []byte) *Error {
	e := newError(codeForStatus(status), status, fmt.Errorf("HTTP %d", status))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
			e.Details = text
		}
		return e
	}

	var parts []string
	for _, key := range []string{"error", "detail", "details"} {
		var s string
		if v, ok := raw[key]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			parts = append(parts, s)
		}
	}
	e.Details = strings.Join(parts, ": ")

	if v, ok := raw["fields"]; ok {
		var fields map[string][]string
		if json.Unmarshal(v, &fields) == nil && len(fields) > 0 {
			e.Fields = fields
		}
	}

	// Bodies without an "error" key are treated as DRF-style field maps.
	_, hasError := raw["error"]
	drf := !hasError && e.Fields == nil
	for key, v := range raw {
		switch key {
		case "error", "detail", "details", "code", "fields":
			continue
		}
		var msgs []string
		if drf && json.Unmarshal(v, &msgs) == nil && len(msgs) > 0 {
			if e.Fields == nil {
				e.Fields = make(map[string][]string)
			}
			e.Fields[key] = msgs
			continue
		}
		var val any
		if json.Unmarshal(v, &val) == nil {
			if e.Data == nil {
				e.Data = make(map[string]any)
			}
			e.Data[key] = val
		}
	}
	return e
}
