package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreateEventInput describes a new business event enqueued by the P2P
// workflow. Payload must marshal to JSON.
type CreateEventInput struct {
	Type           EventType
	SiteID         snowflake.ID
	Payload        any
	IdempotencyKey string
	SourceType     string
	SourceID       string
	OccurredAt     time.Time
}

// Service creates and reads business events. Posting is the engine's job;
// see the posting package.
type Service interface {
	CreateEvent(ctx context.Context, tenantID snowflake.ID, input CreateEventInput) (*Event, error)
	GetEvent(ctx context.Context, tenantID, id snowflake.ID) (*Event, error)
	ListEvents(ctx context.Context, tenantID snowflake.ID, status EventStatus, limit int) ([]Event, error)
}
