package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/go-chi/chi/v5"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeInternal     = "internal_error"
)

// ErrorResponse is the standard error format for REST API responses.
// Data keys are merged into the top-level JSON object.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Data    map[string]any      `json:"-"`
}

// MarshalJSON flattens Data into the error object.
func (e ErrorResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+4)
	for k, v := range e.Data {
		out[k] = v
	}
	out["error"] = e.Error
	if e.Code != "" {
		out["code"] = e.Code
	}
	if e.Details != "" {
		out["details"] = e.Details
	}
	if len(e.Fields) > 0 {
		out["fields"] = e.Fields
	}
	return json.Marshal(out)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteServiceError maps a service error onto its HTTP status and body.
// Unrecognized errors are logged and reported as 500 without detail.
func WriteServiceError(w http.ResponseWriter, logger *common.Logger, err error) {
	var verr *models.ValidationError
	var cerr *models.ConflictError
	var nerr *models.NotFoundError

	switch {
	case errors.As(err, &verr):
		msg := verr.Message
		if msg == "" {
			msg = "Invalid request"
		}
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: msg, Code: CodeValidation, Details: verr.Details, Fields: verr.Fields, Data: verr.Data,
		})
	case errors.As(err, &cerr):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: cerr.Message, Code: CodeConflict, Details: cerr.Details, Data: cerr.Data,
		})
	case errors.As(err, &nerr):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: CodeNotFound, Details: capitalize(nerr.Error())})
	case errors.Is(err, models.ErrNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, "Not found", CodeNotFound)
	default:
		logger.Error().Err(err).Msg("Request failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, "Internal server error", CodeInternal)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		WriteErrorWithCode(w, http.StatusBadRequest, "Request body is required", CodeValidation)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON", Code: CodeValidation, Details: err.Error()})
		return false
	}
	return true
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON", Code: CodeValidation, Details: err.Error()})
		return false
	}
	return true
}

// PathID parses the integer URL parameter name. Returns false and writes a
// 404 when it is not a positive integer.
func PathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		WriteErrorWithCode(w, http.StatusNotFound, "Not found", CodeNotFound)
		return 0, false
	}
	return id, true
}
