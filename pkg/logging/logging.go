package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Fields struct {
	Component     string `json:"component"`
	Event         string `json:"event,omitempty"`
	TransactionID int64  `json:"transaction_id,omitempty"`
	OrderID       int64  `json:"order_id,omitempty"`
	Status        string `json:"status,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Log writes one JSON line through the standard logger. The trace id of the
// active span, if any, is attached.
func Log(ctx context.Context, fields Fields) {
	payload := map[string]any{
		"component": fields.Component,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if fields.Event != "" {
		payload["event"] = fields.Event
	}
	if fields.TransactionID != 0 {
		payload["transaction_id"] = fields.TransactionID
	}
	if fields.OrderID != 0 {
		payload["order_id"] = fields.OrderID
	}
	if fields.Status != "" {
		payload["status"] = fields.Status
	}
	if fields.DurationMS != 0 {
		payload["duration_ms"] = fields.DurationMS
	}
	if fields.Message != "" {
		payload["message"] = fields.Message
	}
	if fields.Error != "" {
		payload["error"] = fields.Error
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			payload["trace_id"] = sc.TraceID().String()
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"component\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Component, err.Error())
		return
	}
	log.Print(string(data))
}

// Error is a shorthand for failure lines.
func Error(ctx context.Context, component, event string, err error) {
	f := Fields{Component: component, Event: event}
	if err != nil {
		f.Error = err.Error()
	}
	Log(ctx, f)
}
