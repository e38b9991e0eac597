package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибку для транспортного слоя.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "INVALID_INPUT"
	KindInvalidState    ErrorKind = "INVALID_STATE"
	KindConflict        ErrorKind = "CONFLICT"
	KindUnauthorized    ErrorKind = "UNAUTHORIZED"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindExternalService ErrorKind = "EXTERNAL_SERVICE_ERROR"
	KindInternal        ErrorKind = "INTERNAL_ERROR"
)

// Error: единый тип ошибки приложения с дискриминантом Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать по виду: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error { return newErr(KindInvalidInput, format, args...) }
func InvalidState(format string, args ...any) *Error { return newErr(KindInvalidState, format, args...) }
func Conflict(format string, args ...any) *Error { return newErr(KindConflict, format, args...) }
func Unauthorized(format string, args ...any) *Error { return newErr(KindUnauthorized, format, args...) }
func NotFound(format string, args ...any) *Error { return newErr(KindNotFound, format, args...) }

// ExternalService оборачивает сбой внешней системы (Jira, LLM).
func ExternalService(service string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: service + " request failed", Err: err}
}

// KindOf возвращает вид ошибки или KindInternal для всего остального.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind проверяет вид ошибки по всей цепочке обёрток.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
