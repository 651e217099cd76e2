package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/engine/routingalgorithm"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/snap"
)

type ErrorCode uint

const (
	ErrInternalServerError ErrorCode = iota
	ErrNotFound
	ErrBadParamInput
	ErrUnprocessable
	ErrTimeout
)

// Error carries a user facing message and a code next to the wrapped error.
type Error struct {
	orig error
	msg  string
	code ErrorCode
	kind string
}

func WrapErrorf(orig error, code ErrorCode, format string, a ...interface{}) error {
	return &Error{
		code: code,
		orig: orig,
		msg:  fmt.Sprintf(format, a...),
		kind: kindOf(orig),
	}
}

func NewErrorf(code ErrorCode, format string, a ...interface{}) error {
	return WrapErrorf(nil, code, format, a...)
}

func (e *Error) Error() string {
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.orig
}

func (e *Error) Code() ErrorCode {
	return e.code
}

func (e *Error) Message() string {
	return e.msg
}

// Kind names the routing failure, e.g. NoPath or InvalidNode.
func (e *Error) Kind() string {
	return e.kind
}

func kindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, snap.ErrNotFound):
		return "NotFound"
	case errors.Is(err, snap.ErrDegenerateGeometry):
		return "DegenerateGeometry"
	case errors.Is(err, routingalgorithm.ErrInvalidNode):
		return "InvalidNode"
	case errors.Is(err, routingalgorithm.ErrNoPath):
		return "NoPath"
	case errors.Is(err, cost.ErrInvalidSafetyValue):
		return "InvalidSafetyValue"
	case errors.Is(err, session.ErrInvalidQuery):
		return "InvalidQuery"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Timeout"
	default:
		return "Internal"
	}
}

// FromDomain wraps an error of the routing core with the matching code. The
// message keeps the offending input, which the core errors already carry.
func FromDomain(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch kindOf(err) {
	case "NotFound":
		return WrapErrorf(err, ErrNotFound, "the location is not covered by the street graph")
	case "InvalidNode", "InvalidQuery":
		return WrapErrorf(err, ErrBadParamInput, "invalid origin or destination")
	case "NoPath":
		return WrapErrorf(err, ErrUnprocessable, "origin and destination are not connected")
	case "DegenerateGeometry", "InvalidSafetyValue":
		return WrapErrorf(err, ErrUnprocessable, "the street data around the query is invalid")
	case "Timeout":
		return WrapErrorf(err, ErrTimeout, "route query timed out")
	default:
		return WrapErrorf(err, ErrInternalServerError, "internal server error")
	}
}
