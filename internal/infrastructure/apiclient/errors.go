package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors
var (
	// ErrNetwork wraps transport failures: no response was obtained
	ErrNetwork = errors.New("connection error")
	// ErrUnauthenticated is returned when the session changed while the request was in flight
	ErrUnauthenticated = errors.New("not authenticated")
)

// DefaultErrorMessage is used when an error carries no usable text
const DefaultErrorMessage = "An unexpected error occurred"

// APIError is a non-2xx response.
type APIError struct {
	Status     int
	StatusText string
	Code       string            // machine-readable code, when the body carries one
	Message    string            // human-readable message from the body, or the status text
	Fields     map[string]string // per-field validation messages, when present
	Body       json.RawMessage   // raw body, nil when it was not JSON
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports a 404
func (e *APIError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// IsUnauthorized reports a 401
func (e *APIError) IsUnauthorized() bool { return e.Status == http.StatusUnauthorized }

// newAPIError builds an APIError from a response, preferring message fields
// of a JSON body and falling back to the status text.
func newAPIError(status int, statusLine string, body []byte) *APIError {
	e := &APIError{
		Status:     status,
		StatusText: statusText(status, statusLine),
	}

	var doc map[string]any
	if len(body) > 0 && json.Unmarshal(body, &doc) == nil {
		e.Body = json.RawMessage(body)
		e.Message, e.Code = extractMessage(doc)
		e.Fields = extractFields(doc)
	}
	if e.Message == "" {
		e.Message = e.StatusText
	}
	return e
}

// statusText strips the numeric prefix of a status line ("404 Not Found")
func statusText(status int, statusLine string) string {
	if _, text, ok := strings.Cut(statusLine, " "); ok && text != "" {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func extractMessage(doc map[string]any) (message, code string) {
	str := func(v any) string {
		s, _ := v.(string)
		return strings.TrimSpace(s)
	}

	message = str(doc["message"])
	code = str(doc["code"])

	switch v := doc["error"].(type) {
	case string:
		if message == "" {
			message = strings.TrimSpace(v)
		} else if code == "" {
			code = strings.TrimSpace(v)
		}
	case map[string]any:
		if message == "" {
			message = str(v["message"])
		}
		if code == "" {
			code = str(v["code"])
		}
	}
	if message == "" {
		message = str(doc["msg"])
	}
	return message, code
}

func extractFields(doc map[string]any) map[string]string {
	raw, ok := doc["errors"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch m := v.(type) {
		case string:
			fields[k] = m
		case []any:
			if len(m) > 0 {
				if s, ok := m[0].(string); ok {
					fields[k] = s
				}
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message converts err into the text shown to the user:
// the API message, "connection error" for transport failures, the error text,
// and fallback when all of those are empty.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if fallback == "" {
		fallback = DefaultErrorMessage
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return apiErr.Message
		}
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	case errors.Is(err, ErrNetwork):
		return ErrNetwork.Error()
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
