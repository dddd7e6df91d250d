// Package errors builds echo.HTTPError with a JSON message for API clients.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrorMessage is the body of error responses.
//
//	{"reason": "...", "advice": "..."}
type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
	Cause  error  `json:"-"`
}

func (em *ErrorMessage) UnmarshalJSON(b []byte) error {
	f := new(struct {
		Reason *string `json:"reason"`
		Advice *string `json:"advice"`
	})
	if err := json.Unmarshal(b, f); err != nil {
		return err
	}
	if f.Reason == nil {
		return fmt.Errorf(`required field missing: "reason"`)
	}
	em.Reason = *f.Reason
	if f.Advice != nil {
		em.Advice = *f.Advice
	}
	return nil
}

func (em ErrorMessage) String() string {
	lines := []string{em.Reason}
	if em.Advice != "" {
		lines = append(lines, em.Advice)
	}
	if em.Cause != nil {
		lines = append(lines, "caused by: "+em.Cause.Error())
	}
	return strings.Join(lines, "\n")
}

func (em ErrorMessage) Error() string {
	return em.String()
}

func (em ErrorMessage) Unwrap() error {
	return em.Cause
}

type Option func(*ErrorMessage) *ErrorMessage

func WithAdvice(advice string) Option {
	return func(em *ErrorMessage) *ErrorMessage {
		if advice != "" {
			em.Advice = advice
		}
		return em
	}
}

func WithError(err error) Option {
	return func(em *ErrorMessage) *ErrorMessage {
		if err != nil {
			em.Cause = err
		}
		return em
	}
}

// New makes echo.HTTPError responding ErrorMessage.
//
// The message is also set as the internal error, so HTTPErrorHandler can log its cause.
func New(code int, reason string, options ...Option) *echo.HTTPError {
	em := &ErrorMessage{Reason: reason}
	for _, o := range options {
		em = o(em)
	}
	return echo.NewHTTPError(code, *em).SetInternal(*em)
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return New(http.StatusBadRequest, "bad request", WithAdvice(advice), WithError(err))
}

func Unauthorized(advice string, err error) *echo.HTTPError {
	return New(http.StatusUnauthorized, "unauthorized", WithAdvice(advice), WithError(err))
}

func Forbidden(advice string) *echo.HTTPError {
	return New(http.StatusForbidden, "forbidden", WithAdvice(advice))
}

func NotFound(advice string, err error) *echo.HTTPError {
	return New(http.StatusNotFound, "not found", WithAdvice(advice), WithError(err))
}

func Conflict(reason string, options ...Option) *echo.HTTPError {
	return New(http.StatusConflict, reason, options...)
}

func Unprocessable(reason string, options ...Option) *echo.HTTPError {
	return New(http.StatusUnprocessableEntity, reason, options...)
}

func InternalServerError(err error) *echo.HTTPError {
	return New(
		http.StatusInternalServerError, "unexpected error",
		WithAdvice("ask your system admin."), WithError(err),
	)
}

func ServiceUnavailable(advice string, err error) *echo.HTTPError {
	return New(
		http.StatusServiceUnavailable, "service unavailable temporarily",
		WithAdvice(advice), WithError(err),
	)
}
