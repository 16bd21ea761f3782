package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error for both processes. Kind doubles as the wire
// error string carried in the response frame's error field.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Kind categorizes errors. EXTERNAL_* kinds may surface to clients;
// INTERNAL_* kinds are logged and never leak payload detail.
type Kind string

const (
	ErrNoCredits      Kind = "EXTERNAL_NO_CREDITS"
	ErrBufferOverflow Kind = "EXTERNAL_BUFFER_OVERFLOW"
	ErrInvalidAuth    Kind = "EXTERNAL_INVALID_AUTH"

	ErrEnvKeyNotFound      Kind = "INTERNAL_ENV_KEY_NOT_FOUND"
	ErrIPCNotConnected     Kind = "INTERNAL_ZMQ_NOT_CONNECTED"
	ErrIPCRequestTimeout   Kind = "INTERNAL_ZMQ_REQUEST_TIMEOUT"
	ErrIPCDestroyed        Kind = "INTERNAL_ZMQ_DESTROYED"
	ErrIPCInvalidResponse  Kind = "INTERNAL_ZMQ_INVALID_RESPONSE"
	ErrIPCNoPendingRequest Kind = "INTERNAL_ZMQ_NO_PENDING_REQUEST"
	ErrIPCDecodeFailed     Kind = "INTERNAL_ZMQ_DECODE_FAILED"
	ErrInternal            Kind = "INTERNAL_ERROR"
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind from err, or ErrInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ErrInternal
}

// FromWire maps a wire error string to a local kind. The datastore-side
// business errors travel as short names; unknown strings collapse to
// INTERNAL_ERROR so a skewed peer never crashes the session layer.
func FromWire(s string) Kind {
	switch s {
	case "INVALID_AUTH":
		return ErrInvalidAuth
	case "NO_CREDITS":
		return ErrNoCredits
	case string(ErrNoCredits), string(ErrBufferOverflow), string(ErrInvalidAuth),
		string(ErrEnvKeyNotFound), string(ErrIPCNotConnected), string(ErrIPCRequestTimeout),
		string(ErrIPCDestroyed), string(ErrIPCInvalidResponse), string(ErrIPCNoPendingRequest),
		string(ErrIPCDecodeFailed), string(ErrInternal):
		return Kind(s)
	default:
		return ErrInternal
	}
}
