package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/pkg/circuitbreaker"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

// handleBackendError converts a backend failure into an HTTP error carrying
// the normalized message.
func handleBackendError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusBadRequest:
			httpStatus = http.StatusBadRequest
			code = "invalid_argument"
		case http.StatusUnauthorized:
			httpStatus = http.StatusUnauthorized
			code = "unauthenticated"
		case http.StatusForbidden:
			httpStatus = http.StatusForbidden
			code = "permission_denied"
		case http.StatusNotFound:
			httpStatus = http.StatusNotFound
			code = "not_found"
		case http.StatusConflict:
			httpStatus = http.StatusConflict
			code = "conflict"
		case http.StatusTooManyRequests:
			httpStatus = http.StatusTooManyRequests
			code = "rate_limit_exceeded"
		default:
			httpStatus = http.StatusBadGateway
			code = "backend_error"
		}
	case errors.Is(err, backend.ErrCartNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, circuitbreaker.ErrOpen):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		httpStatus = http.StatusBadGateway
		code = "backend_error"
	}

	respondError(w, httpStatus, code, backend.Message(err))
}
