package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrInvalidTenant      = errors.New("tenant id is required")
	ErrInvalidEventType   = errors.New("event type is required")
	ErrInvalidIdempotency = errors.New("idempotency key is required")
	ErrEventLocked        = errors.New("event is locked by another worker")
)

// InvalidStateError reports an operation attempted against an event whose
// status does not allow it. Not retryable.
type InvalidStateError struct {
	Op     string
	Status EventStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: event in status %s", e.Op, e.Status)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
