// ABOUTME: Network sync error taxonomy
// ABOUTME: Typed errors that callers match with errors.Is by kind
package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a network sync failure
type ErrorKind int

const (
	KindServiceUnavailable ErrorKind = iota + 1
	KindPeerUnreachable
	KindEncodeFailure
	KindDecodeFailure
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindServiceUnavailable:
		return "service unavailable"
	case KindPeerUnreachable:
		return "peer unreachable"
	case KindEncodeFailure:
		return "encode failure"
	case KindDecodeFailure:
		return "decode failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Only the kind is compared.
var (
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrPeerUnreachable    = &Error{Kind: KindPeerUnreachable}
	ErrEncodeFailure      = &Error{Kind: KindEncodeFailure}
	ErrDecodeFailure      = &Error{Kind: KindDecodeFailure}
	ErrTimeout            = &Error{Kind: KindTimeout}
)

// Error is a network sync failure with its kind, the failing operation and the cause
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
