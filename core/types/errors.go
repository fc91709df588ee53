package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies per-transaction failures.
type ErrorKind uint8

const (
	ValidationError ErrorKind = iota
	AuthorizationError
	RuntimeError
	TimeoutError
	MemoryLimitError
	SerializationError
	InternalError
)

var kindNames = [...]string{
	ValidationError:    "validation",
	AuthorizationError: "authorization",
	RuntimeError:       "runtime",
	TimeoutError:       "timeout",
	MemoryLimitError:   "memory limit",
	SerializationError: "serialization",
	InternalError:      "internal",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// EngineError is a failure that belongs to the transaction, not to the host.
// Message is exactly what ends up in logs.errors.
type EngineError struct {
	Kind    ErrorKind
	Message string
}

func (e *EngineError) Error() string { return e.Message }

// NewEngineError builds an EngineError with a formatted message.
func NewEngineError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsEngineError unwraps err into an EngineError if it is one.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
