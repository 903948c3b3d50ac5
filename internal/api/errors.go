package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/forum"
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

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

// NewValidationError carries a message meant for the user.
func NewValidationError(msg string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewTooManyRequestsError(msg string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusTooManyRequests,
		Message:    msg,
	}
}

func NewBadGatewayError(err error) *ApiError {
	e := newApiError(http.StatusBadGateway)
	e.Err = err
	return e
}

// toApiError maps domain errors onto HTTP errors.
func toApiError(err error) *ApiError {
	var (
		verr  *forum.ValidationError
		upErr *analysis.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		return NewValidationError(verr.Message)
	case errors.Is(err, forum.ErrRoomNotFound):
		return NewNotFoundError()
	case errors.Is(err, forum.ErrUserNotFound):
		return NewNotFoundError()
	case errors.Is(err, forum.ErrNotJoined):
		return NewConflictError()
	case errors.Is(err, forum.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, forum.ErrInvalidCredentials):
		return NewUnauthorizedError()
	case errors.Is(err, analysis.ErrQuotaExceeded):
		return NewTooManyRequestsError(err.Error())
	case errors.Is(err, analysis.ErrSuperseded):
		return NewConflictError()
	case errors.Is(err, analysis.ErrInvalidRequest):
		return NewValidationError(err.Error())
	case errors.As(err, &upErr):
		return &ApiError{StatusCode: http.StatusBadGateway, Message: upErr.Message, Err: err}
	default:
		return NewInternalServerError(err)
	}
}
