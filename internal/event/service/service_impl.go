package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/farmbooks/farmbooks/internal/clock"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/farmbooks/farmbooks/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  eventdomain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	repo  eventdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) eventdomain.Service {
	return &Service{
		log:   p.Log.Named("event.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

// CreateEvent enqueues a PENDING business event. A duplicate idempotency key
// returns the previously created event instead of enqueuing twice.
func (s *Service) CreateEvent(ctx context.Context, tenantID snowflake.ID, input eventdomain.CreateEventInput) (*eventdomain.Event, error) {
	if tenantID == 0 {
		return nil, eventdomain.ErrInvalidTenant
	}
	if strings.TrimSpace(string(input.Type)) == "" {
		return nil, eventdomain.ErrInvalidEventType
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, eventdomain.ErrInvalidIdempotency
	}

	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	now := s.clock.Now()
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	ev := &eventdomain.Event{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		SiteID:         input.SiteID,
		Type:           input.Type,
		IdempotencyKey: key,
		Status:         eventdomain.EventStatusPending,
		Payload:        payload,
		SourceType:     input.SourceType,
		SourceID:       input.SourceID,
		OccurredAt:     occurredAt.UTC(),
		CreatedAt:      now,
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, tenantID, key)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				s.log.Info("duplicate event creation deduplicated",
					zap.String("idempotency_key", key),
					zap.String("event_id", existing.ID.String()),
				)
				return existing, nil
			}
		}
		return nil, err
	}

	return ev, nil
}

func (s *Service) GetEvent(ctx context.Context, tenantID, id snowflake.ID) (*eventdomain.Event, error) {
	ev, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, eventdomain.ErrEventNotFound
	}
	return ev, nil
}

func (s *Service) ListEvents(ctx context.Context, tenantID snowflake.ID, status eventdomain.EventStatus, limit int) ([]eventdomain.Event, error) {
	return s.repo.List(ctx, tenantID, status, limit)
}
