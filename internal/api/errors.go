package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/store"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, err error) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    lower(http.StatusText(statusCode)),
		Err:        err,
	}
}

func NewBadRequestError(err error) *ApiError {
	return newApiError(http.StatusBadRequest, err)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewBadGatewayError(err error) *ApiError {
	return newApiError(http.StatusBadGateway, err)
}

func NewConflictError(err error) *ApiError {
	return newApiError(http.StatusConflict, err)
}

// errorFor maps store and gateway failures onto HTTP errors.
func errorFor(err error) *ApiError {
	var (
		vErr   *store.ValidationError
		netErr *gateway.NetworkError
	)

	switch {
	case errors.As(err, &vErr):
		apiErr := NewBadRequestError(err)
		apiErr.Message = vErr.Error()
		return apiErr
	case errors.Is(err, store.ErrNoActiveRoom):
		return NewConflictError(err)
	case errors.As(err, &netErr):
		// backend rejections are passed through, outages are not
		if !netErr.Temporary() {
			return newApiError(netErr.StatusCode, err)
		}
		return NewBadGatewayError(err)
	default:
		return NewInternalServerError(err)
	}
}
