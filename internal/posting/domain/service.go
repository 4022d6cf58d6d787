package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
)

// BatchResult summarizes one ProcessPendingEvents drain pass.
type BatchResult struct {
	Processed int
	Posted    int
	Failed    int
	Skipped   int
}

// ReverseEventInput carries the audit fields recorded on a reversal.
type ReverseEventInput struct {
	Reason      string
	RequestedBy string
}

// Service is the posting engine: it turns PENDING business events into
// balanced ledger transactions and inventory movements exactly once, and
// produces compensating reversals for POSTED events.
type Service interface {
	// ProcessEvent posts one event inside a single transaction. Replaying a
	// POSTED event returns its stored results without touching the ledger.
	ProcessEvent(ctx context.Context, tenantID, eventID snowflake.ID) (*eventdomain.PostingResults, error)

	// ProcessPendingEvents drains up to limit PENDING events for the tenant,
	// oldest first. One bad event never stops the batch.
	ProcessPendingEvents(ctx context.Context, tenantID snowflake.ID, limit int) (BatchResult, error)

	// ReverseEvent creates a compensating reversal event for a POSTED event
	// and returns the reversal. At most one reversal per event succeeds.
	ReverseEvent(ctx context.Context, tenantID, eventID snowflake.ID, input ReverseEventInput) (*eventdomain.Event, error)

	// RetryEvent resets a FAILED event to PENDING so the next drain picks
	// it up.
	RetryEvent(ctx context.Context, tenantID, eventID snowflake.ID) error

	// TenantsWithPending lists tenants that currently have PENDING events.
	TenantsWithPending(ctx context.Context) ([]snowflake.ID, error)
}
