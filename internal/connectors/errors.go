package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ThrottleError возвращается, когда внешняя система попросила подождать (HTTP 429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError: неуспешный HTTP-ответ внешней системы.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Retryable: сетевые сбои, 5xx и троттлинг повторяем, остальные 4xx нет.
func Retryable(err error) bool {
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.Code >= http.StatusInternalServerError
	}
	return true
}
