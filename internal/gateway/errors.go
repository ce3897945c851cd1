package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches a 404 from the gateway.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	RequestID  string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("gateway %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode extracts the HTTP status of err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
