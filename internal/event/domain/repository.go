package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Repository is the read/write surface of the business event store.
type Repository interface {
	Create(ctx context.Context, ev *Event) error
	FindByID(ctx context.Context, tenantID, id snowflake.ID) (*Event, error)
	FindByIdempotencyKey(ctx context.Context, tenantID snowflake.ID, key string) (*Event, error)
	List(ctx context.Context, tenantID snowflake.ID, status EventStatus, limit int) ([]Event, error)
}
