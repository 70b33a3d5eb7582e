package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ndunguloren96/ltronix-shop/pkg/circuitbreaker"
)

var ErrCartNotFound = errors.New("cart not found")

// APIError is a non-2xx answer from the backend, already reduced to one
// human-readable message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsClientError reports 4xx answers; they do not count against the breaker.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsClientError()
}

const (
	msgUnavailable = "The shop is temporarily unavailable. Please try again shortly."
	msgTimeout     = "The request timed out. Please try again."
	msgUnreachable = "Could not reach the shop. Check your connection and try again."
	msgGeneric     = "Something went wrong. Please try again."
)

// Message normalizes any error to the single string shown to the shopper.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrCartNotFound):
		return "Your cart could not be found."
	case errors.Is(err, circuitbreaker.ErrOpen):
		return msgUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return msgUnreachable
	}
	var decodeErr *json.SyntaxError
	if errors.As(err, &decodeErr) {
		return msgGeneric
	}
	return err.Error()
}

// parseAPIError extracts a message from the usual Django REST framework
// error shapes: {"detail": ...}, {"error": ...}, {"non_field_errors": [...]},
// {"field": ["msg", ...]} or a bare list of strings.
func parseAPIError(status int, body []byte) *APIError {
	msg := extractMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = msgGeneric
	}
	return &APIError{Status: status, Message: msg}
}

func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		if strings.HasPrefix(trimmed, "<") || len(trimmed) > 200 {
			return ""
		}
		return trimmed
	}
	return flatten(payload)
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		for _, key := range []string{"detail", "error", "message", "errorMessage", "non_field_errors"} {
			if inner, ok := t[key]; ok {
				if s := flatten(inner); s != "" {
					return s
				}
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flatten(t[k]); s != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", k, s))
			}
		}
		return strings.Join(parts, "; ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
