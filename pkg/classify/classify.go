// Package classify maps arbitrary fetch failures into a closed error
// taxonomy that callers can branch on without inspecting raw causes.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind is the classification of a fetch failure.
type Kind string

const (
	// KindNoConnectivity represents DNS failures, unreachable hosts,
	// refused connections and other offline conditions.
	KindNoConnectivity Kind = "no_connectivity"

	// KindServerFault represents 5xx server errors.
	KindServerFault Kind = "server_fault"

	// KindClientFault represents 4xx client errors without field details.
	KindClientFault Kind = "client_fault"

	// KindValidation represents 4xx errors carrying a field-keyed error map.
	KindValidation Kind = "validation"

	// KindTimeout represents deadline and I/O timeout failures.
	KindTimeout Kind = "timeout"

	// KindCancelled represents caller-initiated cancellation.
	KindCancelled Kind = "cancelled"

	// KindUnclassified is the fallback for failures no rule matched.
	KindUnclassified Kind = "unclassified"
)

// Retryable reports whether a failure of this kind may succeed on retry.
// Client and validation faults are permanent; cancellation is a caller
// decision, not a transient condition.
func (k Kind) Retryable() bool {
	switch k {
	case KindServerFault, KindTimeout, KindNoConnectivity:
		return true
	default:
		return false
	}
}

// Error is a classified fetch failure. Immutable once constructed.
type Error struct {
	Kind        Kind
	Message     string
	StatusCode  int                 // 0 when no HTTP status is known
	FieldErrors map[string][]string // populated only for KindValidation
	Cause       error               // original failure, for diagnostics
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusError is an HTTP-shaped failure the default classifier understands.
// Producers (e.g. pkg/client) attach the status line and response body so
// classification can distinguish server, client and validation faults.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Classifier maps a failure to a classified error. Implementations must be
// total: they never return nil and never panic.
type Classifier func(err error) *Error

// Classify is the default classifier. Rules apply in priority order:
// cancellation, connectivity, timeout, HTTP status, fallback. It never
// returns nil, and a classified Error passed back in is returned as-is.
func Classify(err error) *Error {
	if err == nil {
		return &Error{Kind: KindUnclassified, Message: "unknown failure"}
	}

	// Already classified - pass through unchanged.
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "operation cancelled", Cause: err}
	}

	if isConnectivityError(err) {
		return &Error{Kind: KindNoConnectivity, Message: "no connectivity: " + err.Error(), Cause: err}
	}

	if isTimeoutError(err) {
		return &Error{Kind: KindTimeout, Message: "timed out: " + err.Error(), Cause: err}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	msg := err.Error()
	if msg == "" {
		msg = "unknown failure"
	}
	return &Error{Kind: KindUnclassified, Message: msg, Cause: err}
}

func classifyStatus(err *StatusError) *Error {
	message := err.Status
	if message == "" {
		message = fmt.Sprintf("status %d", err.StatusCode)
	}

	switch {
	case err.StatusCode >= 500:
		return &Error{
			Kind:       KindServerFault,
			Message:    message,
			StatusCode: err.StatusCode,
			Cause:      err,
		}
	case err.StatusCode >= 400:
		if fields := decodeFieldErrors(err.Body); len(fields) > 0 {
			return &Error{
				Kind:        KindValidation,
				Message:     message,
				StatusCode:  err.StatusCode,
				FieldErrors: fields,
				Cause:       err,
			}
		}
		return &Error{
			Kind:       KindClientFault,
			Message:    message,
			StatusCode: err.StatusCode,
			Cause:      err,
		}
	default:
		return &Error{
			Kind:       KindUnclassified,
			Message:    message,
			StatusCode: err.StatusCode,
			Cause:      err,
		}
	}
}

func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Wrapped transport errors from third-party clients often only
	// survive as text.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable")
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

// decodeFieldErrors extracts a field-keyed error map from a 4xx response
// body. Accepted shapes: {"errors": {field: [...]}} and a flat
// {field: [...]} object. Values may be single strings or string arrays.
func decodeFieldErrors(body []byte) map[string][]string {
	if len(body) == 0 {
		return nil
	}

	var envelope struct {
		Errors map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		return decodeFieldMap(envelope.Errors)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		// Common non-field keys mark a plain error payload, not a
		// field-keyed validation map.
		for _, reserved := range []string{"message", "error", "detail", "code", "status"} {
			delete(flat, reserved)
		}
		if fields := decodeFieldMap(flat); len(fields) > 0 {
			return fields
		}
	}

	return nil
}

func decodeFieldMap(raw map[string]json.RawMessage) map[string][]string {
	fields := make(map[string][]string, len(raw))
	for name, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
			fields[name] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil && single != "" {
			fields[name] = []string{single}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
