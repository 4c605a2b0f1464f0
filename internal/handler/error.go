package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agropal/agropal/internal/domain"
)

// SupportMessage is appended to every error so farmers always have a next step.
const SupportMessage = "If the problem continues, please contact your local agricultural extension office or the Agropal support line."

// ErrorBody is the JSON error contract.
type ErrorBody struct {
	Success        bool              `json:"success"`
	Error          string            `json:"error"`
	Message        string            `json:"message"`
	SupportMessage string            `json:"supportMessage"`
	Kind           string            `json:"kind"`
	Fields         map[string]string `json:"fields,omitempty"`
	DebugInfo      *DebugInfo        `json:"debugInfo,omitempty"`
}

// DebugInfo is only included outside production.
type DebugInfo struct {
	Code   string `json:"code"`
	Op     string `json:"op,omitempty"`
	Detail string `json:"detail"`
}

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes and error kinds.
// When debug is set the underlying error is echoed in debugInfo.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, debug bool) {
	// Extract structured info from error
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	// Map to HTTP status
	status := ErrorCodeToHTTPStatus(code)

	// Log error with context
	logError(logger, r, err, code, op, status)

	body := ErrorBody{
		Success:        false,
		Error:          message,
		Message:        hintForCode(code),
		SupportMessage: SupportMessage,
		Kind:           ErrorKind(code),
	}
	if debug {
		body.DebugInfo = &DebugInfo{Code: code, Op: op, Detail: err.Error()}
	}

	writeJSON(w, status, body)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID, domain.EINVALIDFILE:
		return http.StatusBadRequest // 400
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EUNAVAILABLE, domain.EVALIDATION, domain.EPERSISTENCE, domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// ErrorKind names the error taxonomy entry for a code.
func ErrorKind(code string) string {
	switch code {
	case domain.EINVALIDFILE:
		return "InvalidUpload"
	case domain.EINVALID:
		return "InvalidRequest"
	case domain.ENOTFOUND:
		return "NotFound"
	case domain.ERATELIMIT:
		return "RateLimited"
	case domain.EUNAVAILABLE:
		return "DiagnosisUnavailable"
	case domain.EVALIDATION:
		return "ValidationError"
	case domain.EPERSISTENCE:
		return "PersistenceError"
	}
	return "InternalError"
}

func hintForCode(code string) string {
	switch code {
	case domain.EINVALIDFILE:
		return "Please upload a clear JPEG, PNG, WebP or HEIC photo of the affected crop."
	case domain.EINVALID:
		return "Please check the request and try again."
	case domain.ENOTFOUND:
		return "The requested item could not be found."
	case domain.ERATELIMIT:
		return "Too many requests. Please wait a moment and try again."
	case domain.EUNAVAILABLE:
		return "We could not diagnose this photo. Please try again with a clearer, well-lit photo of the affected leaves or stems."
	case domain.EVALIDATION:
		return "The diagnosis could not be recorded. Please check your inputs and try again."
	case domain.EPERSISTENCE:
		return "The diagnosis could not be saved. Please try again later."
	}
	return "Something went wrong on our side. Please try again later."
}

// ValidationErrorResponse writes field-level validation errors as a 400.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, debug bool) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		// Not a validation error, fall back to standard error response
		ErrorResponse(w, r, logger, err, debug)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	writeJSON(w, http.StatusBadRequest, ErrorBody{
		Success:        false,
		Error:          "Validation failed",
		Message:        "Please check your input and try again.",
		SupportMessage: SupportMessage,
		Kind:           ErrorKind(domain.EINVALID),
		Fields:         ve.Fields,
	})
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err, false)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	// Add operation if present
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// Log level based on status code:
	// - 5xx errors are errors (server-side issues)
	// - 4xx errors are info (client errors, expected)
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
