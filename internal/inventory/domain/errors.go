package domain

import (
	"errors"
	"fmt"
)

// LineValidationError reports a malformed receipt line. The whole event
// aborts; no partial inventory is ever written.
type LineValidationError struct {
	Index  int
	ItemID string
	Reason string
}

func (e *LineValidationError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("receipt line %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("receipt line %d (item %s): %s", e.Index, e.ItemID, e.Reason)
}

// IsLineValidation reports whether err is a LineValidationError.
func IsLineValidation(err error) bool {
	var lve *LineValidationError
	return errors.As(err, &lve)
}
