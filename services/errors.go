package services

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误类别，对外返回稳定的机器可读kind
type ErrKind string

const (
	KindValidation    ErrKind = "validation_error"
	KindAuthorization ErrKind = "authorization_error"
	KindNotFound      ErrKind = "not_found"
	KindConflict      ErrKind = "conflict"
	KindConsistency   ErrKind = "consistency_error" // 内部错误，不应暴露给调用方
	KindInternal      ErrKind = "internal_error"
)

type Error struct {
	Kind    ErrKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorizationf(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Consistencyf(format string, args ...interface{}) error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}

func Internal(err error) error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf 返回错误的类别，非本包错误一律视为internal
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus 错误类别到HTTP状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		// consistency错误属于内部bug，对外表现为500
		return http.StatusInternalServerError
	}
}
