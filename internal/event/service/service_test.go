package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmbooks/farmbooks/internal/clock"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/farmbooks/farmbooks/internal/event/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (eventdomain.Service, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&eventdomain.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		Log:   zap.NewNop(),
		Repo:  repository.New(db),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	return svc, node.Generate()
}

func TestCreateEventEnqueuesPending(t *testing.T) {
	svc, tenantID := newTestService(t)
	ctx := context.Background()

	ev, err := svc.CreateEvent(ctx, tenantID, eventdomain.CreateEventInput{
		Type:           eventdomain.EventTypePaymentSent,
		IdempotencyKey: "payment-1",
		Payload:        map[string]string{"amount": "10.00"},
	})
	require.NoError(t, err)
	assert.Equal(t, eventdomain.EventStatusPending, ev.Status)
	assert.NotZero(t, ev.ID)
}

func TestCreateEventDeduplicatesOnIdempotencyKey(t *testing.T) {
	svc, tenantID := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateEvent(ctx, tenantID, eventdomain.CreateEventInput{
		Type:           eventdomain.EventTypePaymentSent,
		IdempotencyKey: "payment-1",
		Payload:        map[string]string{"amount": "10.00"},
	})
	require.NoError(t, err)

	second, err := svc.CreateEvent(ctx, tenantID, eventdomain.CreateEventInput{
		Type:           eventdomain.EventTypePaymentSent,
		IdempotencyKey: "payment-1",
		Payload:        map[string]string{"amount": "99.00"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateEventValidation(t *testing.T) {
	svc, tenantID := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateEvent(ctx, 0, eventdomain.CreateEventInput{
		Type:           eventdomain.EventTypePaymentSent,
		IdempotencyKey: "k",
	})
	require.ErrorIs(t, err, eventdomain.ErrInvalidTenant)

	_, err = svc.CreateEvent(ctx, tenantID, eventdomain.CreateEventInput{
		IdempotencyKey: "k",
	})
	require.ErrorIs(t, err, eventdomain.ErrInvalidEventType)

	_, err = svc.CreateEvent(ctx, tenantID, eventdomain.CreateEventInput{
		Type: eventdomain.EventTypePaymentSent,
	})
	require.ErrorIs(t, err, eventdomain.ErrInvalidIdempotency)
}

func TestGetEventNotFound(t *testing.T) {
	svc, tenantID := newTestService(t)

	_, err := svc.GetEvent(context.Background(), tenantID, snowflake.ID(12345))
	require.ErrorIs(t, err, eventdomain.ErrEventNotFound)
}
