package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EventStatus is the lifecycle state of a business event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "PENDING"
	EventStatusProcessing EventStatus = "PROCESSING"
	EventStatusPosted     EventStatus = "POSTED"
	EventStatusFailed     EventStatus = "FAILED"
	EventStatusReversed   EventStatus = "REVERSED"
)

// EventType identifies the P2P occurrence an event describes. Types outside
// the posting set are acknowledged with zero ledger lines so the event log
// stays a complete audit trail.
type EventType string

const (
	EventTypeReceiptPosted      EventType = "RECEIPT_POSTED"
	EventTypeBillVariancePosted EventType = "BILL_VARIANCE_POSTED"
	EventTypePaymentSent        EventType = "PAYMENT_SENT"

	// Non-posting audit-trail types emitted by the P2P workflow.
	EventTypeRequisitionApproved EventType = "REQUISITION_APPROVED"
	EventTypePurchaseOrderIssued EventType = "PURCHASE_ORDER_ISSUED"
	EventTypeBillApproved        EventType = "BILL_APPROVED"
)

const reversalSuffix = "_REVERSAL"

// ReversalType returns the event type recorded for a reversal of t.
func (t EventType) ReversalType() EventType {
	return t + reversalSuffix
}

// IsReversal reports whether t is itself a reversal type.
func (t EventType) IsReversal() bool {
	n := len(t)
	s := len(reversalSuffix)
	return n > s && string(t[n-s:]) == reversalSuffix
}

// Event is one P2P business occurrence consumed by the posting engine.
// The payload is immutable once created; status transitions are monotonic
// except for the explicit FAILED->PENDING retry reset and stale-lease
// PROCESSING reclaim.
type Event struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_business_events_idem,priority:1"`
	SiteID         snowflake.ID `gorm:"not null;index"`
	Type           EventType    `gorm:"type:text;not null;index"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:ux_business_events_idem,priority:2"`
	Status         EventStatus  `gorm:"type:text;not null;index"`

	Payload    datatypes.JSON `gorm:"not null"`
	SourceType string         `gorm:"type:text"`
	SourceID   string         `gorm:"type:text"`

	OccurredAt time.Time  `gorm:"not null"`
	CreatedAt  time.Time  `gorm:"not null;index"`
	PostedAt   *time.Time `gorm:""`
	FailedAt   *time.Time `gorm:""`

	// Advisory lease guarding against two workers claiming the same event.
	LockedAt *time.Time `gorm:"index"`
	LockedBy *string    `gorm:"type:text"`

	PostingResults datatypes.JSON `gorm:""`
	Error          *string        `gorm:"type:text"`

	ReversedByEventID *snowflake.ID `gorm:""`
	ReversesEventID   *snowflake.ID `gorm:""`
	ReversedAt        *time.Time    `gorm:""`
	ReversedBy        *string       `gorm:"type:text"`
	ReversalReason    *string       `gorm:"type:text"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "business_events" }

// PostingResults records the ledger/inventory side effects of a POSTED event.
// Stored as JSON on the event row and returned unchanged on idempotent replay.
type PostingResults struct {
	LedgerTransactionID  snowflake.ID    `json:"ledger_transaction_id,omitempty"`
	InventoryMovementIDs []snowflake.ID  `json:"inventory_movement_ids,omitempty"`
	EntriesCount         int             `json:"entries_count"`
	TotalDebits          decimal.Decimal `json:"total_debits"`
	TotalCredits         decimal.Decimal `json:"total_credits"`
	ReversedEventID      snowflake.ID    `json:"reversed_event_id,omitempty"`
}
