package domain

import (
	"errors"
	"fmt"

	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
)

// ErrAlreadyReversed is returned when a reversal is requested for an event
// that another reversal already claimed.
var ErrAlreadyReversed = errors.New("event already reversed")

// PayloadError reports an event payload that could not be decoded for its
// declared type. Deterministic; the event is marked FAILED.
type PayloadError struct {
	EventType eventdomain.EventType
	Err       error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.EventType, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// IsPostingFailure reports whether err is a deterministic posting failure,
// one that retrying without changing the event or its mappings cannot fix.
// Such events are marked FAILED; transient errors leave the event untouched
// for the next drain cycle.
func IsPostingFailure(err error) bool {
	var pe *PayloadError
	if errors.As(err, &pe) {
		return true
	}
	var anm *accountingdomain.AccountNotMappedError
	if errors.As(err, &anm) {
		return true
	}
	return accountingdomain.IsUnbalanced(err) || inventorydomain.IsLineValidation(err)
}
