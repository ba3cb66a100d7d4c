package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrForeignLink is returned when a server-supplied link leaves the api host.
var ErrForeignLink = errors.New("link points outside the api host")

// NetworkError is a failed Gateway call: the backend was unreachable or
// answered with a non-success status.
type NetworkError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Message, e.Err.Error())
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call may succeed.
func (e *NetworkError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newTransportFailure(op string, err error) *NetworkError {
	return &NetworkError{
		Op:      op,
		Message: "backend unreachable",
		Err:     err,
	}
}

func newStatusError(op string, statusCode int, detail string) *NetworkError {
	msg := lower(http.StatusText(statusCode))
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &NetworkError{
		Op:         op,
		StatusCode: statusCode,
		Message:    msg,
	}
}

func newDecodeError(op string, err error) *NetworkError {
	return &NetworkError{
		Op:      op,
		Message: "invalid response body",
		Err:     err,
	}
}
