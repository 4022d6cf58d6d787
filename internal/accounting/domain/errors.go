package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// UnbalancedError reports a transaction whose debit and credit totals differ
// by more than the tolerance. This is a posting-rule or mapping defect, not a
// user error; the whole event aborts.
type UnbalancedError struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("unbalanced transaction: debits %s != credits %s",
		e.TotalDebits.StringFixed(2), e.TotalCredits.StringFixed(2))
}

// IsUnbalanced reports whether err is an UnbalancedError.
func IsUnbalanced(err error) bool {
	var ube *UnbalancedError
	return errors.As(err, &ube)
}

// AccountNotMappedError reports a semantic role with no account binding.
type AccountNotMappedError struct {
	Role AccountRole
}

func (e *AccountNotMappedError) Error() string {
	return fmt.Sprintf("no account mapped for role %q", e.Role)
}
