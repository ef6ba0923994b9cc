package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed remote call.
type Kind string

const (
	// KindNetwork means the request never reached the server or timed out.
	KindNetwork Kind = "network"
	// KindValidation means the server rejected the input (4xx).
	KindValidation Kind = "validation"
	// KindUnauthorized means the admin is not (or no longer) allowed (401/403).
	KindUnauthorized Kind = "unauthorized"
	// KindServer means a 5xx or a response of unexpected shape.
	KindServer Kind = "server"
)

// Error is the discriminated failure returned by every client call.
type Error struct {
	Kind        Kind              `json:"kind"`
	Status      int               `json:"status,omitempty"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status > 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.FieldErrors) > 0 {
		keys := make([]string, 0, len(e.FieldErrors))
		for k := range e.FieldErrors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, e.FieldErrors[k])
		}
	}
	return b.String()
}

// Unwrap exposes the transport error behind network failures.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewValidationError builds a validation error, typically for local form checks.
func NewValidationError(message string, fields map[string]string) *Error {
	if message == "" {
		message = "validation failed"
	}
	return &Error{Kind: KindValidation, Message: message, FieldErrors: fields}
}

// NewServerError builds a server error for unexpected responses.
func NewServerError(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

// KindOf reports the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsUnauthorized reports whether err asks for a sign-out.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// FieldErrors returns the per-field messages carried by err, if any.
func FieldErrors(err error) map[string]string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.FieldErrors
	}
	return nil
}

func networkError(err error) *Error {
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	} else if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	return &Error{Kind: KindNetwork, Message: msg, cause: err}
}

// errorBody accepts the error envelopes the marketplace API has shipped over time.
type errorBody struct {
	Message     string            `json:"message"`
	Title       string            `json:"title"`
	Detail      string            `json:"detail"`
	Errors      json.RawMessage   `json:"errors"`
	FieldErrors map[string]string `json:"fieldErrors"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field string `json:"field"`
			Issue string `json:"issue"`
		} `json:"details"`
	} `json:"error"`
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

func decodeError(status int, raw []byte) *Error {
	out := &Error{Kind: classifyStatus(status), Status: status}
	var body errorBody
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		out.Message = firstNonEmpty(body.Message, body.Detail, body.Title)
		fields := map[string]string{}
		for k, v := range body.FieldErrors {
			fields[k] = v
		}
		if len(body.Errors) > 0 {
			var byField map[string]string
			if json.Unmarshal(body.Errors, &byField) == nil {
				for k, v := range byField {
					fields[k] = v
				}
			} else {
				var many map[string][]string
				if json.Unmarshal(body.Errors, &many) == nil {
					for k, v := range many {
						if len(v) > 0 {
							fields[k] = v[0]
						}
					}
				}
			}
		}
		if body.Error != nil {
			out.Message = firstNonEmpty(out.Message, body.Error.Message, body.Error.Code)
			for _, d := range body.Error.Details {
				if d.Field != "" {
					fields[d.Field] = d.Issue
				}
			}
		}
		if len(fields) > 0 && out.Kind == KindValidation {
			out.FieldErrors = fields
		}
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	if out.Kind == KindServer && status < 500 {
		out.Message = "unexpected response: " + out.Message
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
