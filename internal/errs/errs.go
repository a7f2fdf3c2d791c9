// Package errs defines the error taxonomy crossing the engine boundary.
// Every failure a caller can see is an *Error with a Kind; raw store or
// driver errors never leave the operation boundary.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindInvalidState  Kind = "invalid_state"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
	KindBusinessRule  Kind = "business_rule"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps the last transient store error after retry exhaustion.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Msg: "store unavailable", Err: err}
}

// BusinessRule surfaces a store-level rule violation verbatim; never retried.
func BusinessRule(msg string, err error) *Error {
	return &Error{Kind: KindBusinessRule, Msg: msg, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
