package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmbooks/farmbooks/internal/clock"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPostingService struct {
	tenants    []snowflake.ID
	drained    map[snowflake.ID]int
	failTenant snowflake.ID
}

func (s *stubPostingService) ProcessEvent(ctx context.Context, tenantID, eventID snowflake.ID) (*eventdomain.PostingResults, error) {
	return nil, nil
}

func (s *stubPostingService) ProcessPendingEvents(ctx context.Context, tenantID snowflake.ID, limit int) (postingdomain.BatchResult, error) {
	if s.drained == nil {
		s.drained = make(map[snowflake.ID]int)
	}
	s.drained[tenantID]++
	if tenantID == s.failTenant {
		return postingdomain.BatchResult{}, errors.New("drain failed")
	}
	return postingdomain.BatchResult{Processed: 1, Posted: 1}, nil
}

func (s *stubPostingService) ReverseEvent(ctx context.Context, tenantID, eventID snowflake.ID, input postingdomain.ReverseEventInput) (*eventdomain.Event, error) {
	return nil, nil
}

func (s *stubPostingService) RetryEvent(ctx context.Context, tenantID, eventID snowflake.ID) error {
	return nil
}

func (s *stubPostingService) TenantsWithPending(ctx context.Context) ([]snowflake.ID, error) {
	return s.tenants, nil
}

func TestRunOnceDrainsEveryTenant(t *testing.T) {
	stub := &stubPostingService{tenants: []snowflake.ID{1, 2, 3}}

	sched, err := New(Params{
		Log:        zap.NewNop(),
		PostingSvc: stub,
		Clock:      clock.NewFakeClock(time.Time{}),
	})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, map[snowflake.ID]int{1: 1, 2: 1, 3: 1}, stub.drained)
}

func TestRunOnceContinuesPastFailingTenant(t *testing.T) {
	stub := &stubPostingService{tenants: []snowflake.ID{1, 2, 3}, failTenant: 2}

	sched, err := New(Params{
		Log:        zap.NewNop(),
		PostingSvc: stub,
		Clock:      clock.NewFakeClock(time.Time{}),
	})
	require.NoError(t, err)

	err = sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, len(stub.drained))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
