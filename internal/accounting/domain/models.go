package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionStatus for ledger transactions. Transactions are immutable once
// written; a reversal creates a new transaction rather than mutating one.
type TransactionStatus string

const (
	TransactionStatusPosted TransactionStatus = "POSTED"
)

// Transaction is a double-entry ledger header owned exclusively by the
// posting engine.
type Transaction struct {
	ID              snowflake.ID          `gorm:"primaryKey"`
	TenantID        snowflake.ID          `gorm:"not null;index"`
	SiteID          snowflake.ID          `gorm:"not null;index"`
	SourceEventID   snowflake.ID          `gorm:"not null;index"`
	SourceEventType eventdomain.EventType `gorm:"type:text;not null"`
	IdempotencyKey  string                `gorm:"type:text;not null"`
	OccurredAt      time.Time             `gorm:"not null"`
	TotalAmount     decimal.Decimal       `gorm:"type:decimal(20,2);not null"`
	EntryCount      int                   `gorm:"not null"`
	Status          TransactionStatus     `gorm:"type:text;not null"`

	ReversesTransactionID *snowflake.ID `gorm:"index"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "ledger_transactions" }

// Entry is one line of a ledger transaction. Exactly one of Debit/Credit is
// nonzero. LineNumber is 1-based and stable within the transaction.
type Entry struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"not null;index"`
	TransactionID snowflake.ID `gorm:"not null;index"`
	LineNumber    int          `gorm:"not null"`

	AccountID string          `gorm:"type:text;not null;index"`
	Debit     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Credit    decimal.Decimal `gorm:"type:decimal(20,2);not null"`

	VendorID *string                     `gorm:"type:text"`
	BillIDs  datatypes.JSONSlice[string] `gorm:""`
	Memo     string                      `gorm:"type:text"`

	ReversesEntryID *snowflake.ID `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "ledger_entries" }

// Line is a posting-rule output before it is materialized into an Entry.
type Line struct {
	AccountID string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	VendorID  string
	BillIDs   []string
	Memo      string
}

// BalanceTolerance is the maximum allowed |sum(debit) - sum(credit)| for a
// transaction to be considered balanced.
var BalanceTolerance = decimal.RequireFromString("0.01")

// Totals returns the summed debit and credit amounts of lines.
func Totals(lines []Line) (debits, credits decimal.Decimal) {
	debits = decimal.Zero
	credits = decimal.Zero
	for _, line := range lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	return debits, credits
}

// ValidateBalanced checks the double-entry balance invariant for lines.
func ValidateBalanced(lines []Line) error {
	debits, credits := Totals(lines)
	if debits.Sub(credits).Abs().Cmp(BalanceTolerance) > 0 {
		return &UnbalancedError{TotalDebits: debits, TotalCredits: credits}
	}
	return nil
}
