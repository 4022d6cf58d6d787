package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	"github.com/farmbooks/farmbooks/internal/clock"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	svc    *Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	tenant snowflake.ID
	site   snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&eventdomain.Event{},
		&accountingdomain.Transaction{},
		&accountingdomain.Entry{},
		&accountingdomain.AccountMapping{},
		&inventorydomain.Balance{},
		&inventorydomain.Movement{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		Log:   zap.NewNop(),
		DB:    db,
		GenID: node,
		Clock: fc,
		Config: Config{
			LockTTL:  5 * time.Minute,
			WorkerID: "test-worker",
		},
	}).(*Service)

	return &testEnv{
		svc:    svc,
		db:     db,
		node:   node,
		clock:  fc,
		tenant: node.Generate(),
		site:   node.Generate(),
	}
}

func (e *testEnv) createEvent(t *testing.T, eventType eventdomain.EventType, payload any) *eventdomain.Event {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	ev := &eventdomain.Event{
		ID:             e.node.Generate(),
		TenantID:       e.tenant,
		SiteID:         e.site,
		Type:           eventType,
		IdempotencyKey: fmt.Sprintf("key-%d", e.node.Generate()),
		Status:         eventdomain.EventStatusPending,
		Payload:        raw,
		OccurredAt:     e.clock.Now(),
		CreatedAt:      e.clock.Now(),
	}
	require.NoError(t, e.db.Create(ev).Error)
	return ev
}

func (e *testEnv) reload(t *testing.T, id snowflake.ID) *eventdomain.Event {
	t.Helper()
	var ev eventdomain.Event
	require.NoError(t, e.db.Where("id = ?", id).First(&ev).Error)
	return &ev
}

func receiptPayload() eventdomain.ReceiptPayload {
	return eventdomain.ReceiptPayload{
		VendorID: "vendor-1",
		Lines: []eventdomain.ReceiptLine{
			{ItemID: "feed-a", Category: "feed", QtyReceived: dec("10"), UnitCost: dec("2.00"), TotalCost: dec("20.00")},
			{ItemID: "feed-a", Category: "feed", QtyReceived: dec("5"), UnitCost: dec("5.00"), TotalCost: dec("25.00")},
		},
		Totals: eventdomain.ReceiptTotals{TotalCost: dec("45.00")},
	}
}

func TestProcessReceiptPostsBalancedTransactionAndInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeReceiptPosted, receiptPayload())

	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Equal(t, 2, results.EntriesCount)
	assert.True(t, results.TotalDebits.Equal(dec("45.00")))
	assert.True(t, results.TotalCredits.Equal(dec("45.00")))
	require.Len(t, results.InventoryMovementIDs, 2)

	stored := env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusPosted, stored.Status)
	assert.NotNil(t, stored.PostedAt)
	assert.Nil(t, stored.LockedAt)

	var txn accountingdomain.Transaction
	require.NoError(t, env.db.Where("id = ?", results.LedgerTransactionID).First(&txn).Error)
	assert.Equal(t, ev.ID, txn.SourceEventID)
	assert.True(t, txn.TotalAmount.Equal(dec("45.00")))

	var entries []accountingdomain.Entry
	require.NoError(t, env.db.Where("transaction_id = ?", txn.ID).Order("line_number ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "feed-inventory", entries[0].AccountID)
	assert.True(t, entries[0].Debit.Equal(dec("45.00")))
	assert.Equal(t, "accounts-payable", entries[1].AccountID)
	assert.True(t, entries[1].Credit.Equal(dec("45.00")))

	// Weighted average: 10 @ 2.00 plus 5 @ 5.00 lands at 15 @ 3.00.
	var balance inventorydomain.Balance
	require.NoError(t, env.db.Where("tenant_id = ? AND item_id = ?", env.tenant, "feed-a").First(&balance).Error)
	assert.True(t, balance.QtyOnHand.Equal(dec("15")), "qty: %s", balance.QtyOnHand)
	assert.True(t, balance.AvgCostPerUnit.Equal(dec("3.00")), "avg: %s", balance.AvgCostPerUnit)
	assert.True(t, balance.TotalValue.Equal(dec("45.00")), "value: %s", balance.TotalValue)
}

func TestProcessEventIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeReceiptPosted, receiptPayload())

	first, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)

	second, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, first.LedgerTransactionID, second.LedgerTransactionID)
	assert.Equal(t, first.InventoryMovementIDs, second.InventoryMovementIDs)

	var txnCount int64
	require.NoError(t, env.db.Model(&accountingdomain.Transaction{}).Where("tenant_id = ?", env.tenant).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	var movementCount int64
	require.NoError(t, env.db.Model(&inventorydomain.Movement{}).Where("tenant_id = ?", env.tenant).Count(&movementCount).Error)
	assert.Equal(t, int64(2), movementCount)
}

func TestProcessBillVarianceSignPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	positive := env.createEvent(t, eventdomain.EventTypeBillVariancePosted, eventdomain.VariancePayload{
		BillID: "bill-1", VarianceAmount: dec("50.00"),
	})
	results, err := env.svc.ProcessEvent(ctx, env.tenant, positive.ID)
	require.NoError(t, err)

	var entries []accountingdomain.Entry
	require.NoError(t, env.db.Where("transaction_id = ?", results.LedgerTransactionID).Order("line_number ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "purchase-price-variance", entries[0].AccountID)
	assert.True(t, entries[0].Debit.Equal(dec("50.00")))
	assert.Equal(t, "accounts-payable", entries[1].AccountID)
	assert.True(t, entries[1].Credit.Equal(dec("50.00")))

	negative := env.createEvent(t, eventdomain.EventTypeBillVariancePosted, eventdomain.VariancePayload{
		BillID: "bill-2", VarianceAmount: dec("-50.00"),
	})
	results, err = env.svc.ProcessEvent(ctx, env.tenant, negative.ID)
	require.NoError(t, err)

	entries = nil
	require.NoError(t, env.db.Where("transaction_id = ?", results.LedgerTransactionID).Order("line_number ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "accounts-payable", entries[0].AccountID)
	assert.True(t, entries[0].Debit.Equal(dec("50.00")))
	assert.Equal(t, "purchase-price-variance", entries[1].AccountID)
	assert.True(t, entries[1].Credit.Equal(dec("50.00")))
}

func TestProcessZeroVariancePostsWithoutTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeBillVariancePosted, eventdomain.VariancePayload{
		BillID: "bill-3", VarianceAmount: decimal.Zero,
	})

	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, results.EntriesCount)
	assert.Zero(t, results.LedgerTransactionID)

	stored := env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusPosted, stored.Status)

	var txnCount int64
	require.NoError(t, env.db.Model(&accountingdomain.Transaction{}).Where("tenant_id = ?", env.tenant).Count(&txnCount).Error)
	assert.Equal(t, int64(0), txnCount)
}

func TestProcessNonPostingTypeAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeBillApproved, map[string]string{"bill_id": "bill-9"})

	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, results.EntriesCount)

	stored := env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusPosted, stored.Status)
}

func TestProcessPaymentSent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypePaymentSent, eventdomain.PaymentPayload{
		Amount:   dec("120.00"),
		BillIDs:  []string{"bill-1", "bill-2"},
		VendorID: "vendor-1",
	})

	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)

	var entries []accountingdomain.Entry
	require.NoError(t, env.db.Where("transaction_id = ?", results.LedgerTransactionID).Order("line_number ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "accounts-payable", entries[0].AccountID)
	assert.True(t, entries[0].Debit.Equal(dec("120.00")))
	assert.Equal(t, []string{"bill-1", "bill-2"}, []string(entries[0].BillIDs))
	assert.Equal(t, "cash-operating", entries[1].AccountID)
	assert.True(t, entries[1].Credit.Equal(dec("120.00")))
}

func TestProcessInvalidLineMarksEventFailedAndRetryResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeReceiptPosted, eventdomain.ReceiptPayload{
		Lines: []eventdomain.ReceiptLine{
			{ItemID: "feed-a", QtyReceived: decimal.Zero, UnitCost: dec("2.00"), TotalCost: decimal.Zero},
		},
	})

	_, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.Error(t, err)
	assert.True(t, inventorydomain.IsLineValidation(err))

	stored := env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "qty_received")

	// No partial side effects.
	var movementCount int64
	require.NoError(t, env.db.Model(&inventorydomain.Movement{}).Where("tenant_id = ?", env.tenant).Count(&movementCount).Error)
	assert.Equal(t, int64(0), movementCount)

	require.NoError(t, env.svc.RetryEvent(ctx, env.tenant, ev.ID))
	stored = env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusPending, stored.Status)
	assert.Nil(t, stored.Error)
	assert.Nil(t, stored.FailedAt)
}

func TestProcessPendingEventsContinuesPastFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	good1 := env.createEvent(t, eventdomain.EventTypeReceiptPosted, receiptPayload())
	env.clock.Advance(time.Second)
	bad := env.createEvent(t, eventdomain.EventTypeReceiptPosted, eventdomain.ReceiptPayload{
		Lines: []eventdomain.ReceiptLine{{ItemID: "", QtyReceived: dec("1")}},
	})
	env.clock.Advance(time.Second)
	good2 := env.createEvent(t, eventdomain.EventTypePaymentSent, eventdomain.PaymentPayload{Amount: dec("10.00")})

	result, err := env.svc.ProcessPendingEvents(ctx, env.tenant, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Posted)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, eventdomain.EventStatusPosted, env.reload(t, good1.ID).Status)
	assert.Equal(t, eventdomain.EventStatusFailed, env.reload(t, bad.ID).Status)
	assert.Equal(t, eventdomain.EventStatusPosted, env.reload(t, good2.ID).Status)
}

func TestProcessEventRespectsLiveLeaseAndReclaimsStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypePaymentSent, eventdomain.PaymentPayload{Amount: dec("10.00")})

	lockedAt := env.clock.Now()
	worker := "other-worker"
	require.NoError(t, env.db.Model(&eventdomain.Event{}).
		Where("id = ?", ev.ID).
		Updates(map[string]interface{}{
			"status":    eventdomain.EventStatusProcessing,
			"locked_at": lockedAt,
			"locked_by": worker,
		}).Error)

	_, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.ErrorIs(t, err, eventdomain.ErrEventLocked)

	// A stale lease can be reclaimed.
	env.clock.Advance(6 * time.Minute)
	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, results.EntriesCount)
	assert.Equal(t, eventdomain.EventStatusPosted, env.reload(t, ev.ID).Status)
}

func TestProcessEventNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ProcessEvent(context.Background(), env.tenant, env.node.Generate())
	require.ErrorIs(t, err, eventdomain.ErrEventNotFound)
}

func TestReverseEventSwapsEntriesAndNetsInventoryToZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.createEvent(t, eventdomain.EventTypeReceiptPosted, receiptPayload())
	results, err := env.svc.ProcessEvent(ctx, env.tenant, ev.ID)
	require.NoError(t, err)

	reversal, err := env.svc.ReverseEvent(ctx, env.tenant, ev.ID, postingdomain.ReverseEventInput{
		Reason:      "wrong receipt",
		RequestedBy: "controller",
	})
	require.NoError(t, err)
	assert.Equal(t, eventdomain.EventType("RECEIPT_POSTED_REVERSAL"), reversal.Type)
	assert.Equal(t, eventdomain.EventStatusPosted, reversal.Status)
	require.NotNil(t, reversal.ReversesEventID)
	assert.Equal(t, ev.ID, *reversal.ReversesEventID)

	original := env.reload(t, ev.ID)
	assert.Equal(t, eventdomain.EventStatusReversed, original.Status)
	require.NotNil(t, original.ReversedByEventID)
	assert.Equal(t, reversal.ID, *original.ReversedByEventID)
	require.NotNil(t, original.ReversalReason)
	assert.Equal(t, "wrong receipt", *original.ReversalReason)

	// Reversal transaction mirrors the original with sides swapped.
	reversalResults, err := reversal.DecodePostingResults()
	require.NoError(t, err)
	require.NotNil(t, reversalResults)

	var originalEntries, reversalEntries []accountingdomain.Entry
	require.NoError(t, env.db.Where("transaction_id = ?", results.LedgerTransactionID).Order("line_number ASC").Find(&originalEntries).Error)
	require.NoError(t, env.db.Where("transaction_id = ?", reversalResults.LedgerTransactionID).Order("line_number ASC").Find(&reversalEntries).Error)
	require.Len(t, reversalEntries, len(originalEntries))
	for i := range originalEntries {
		assert.Equal(t, originalEntries[i].AccountID, reversalEntries[i].AccountID)
		assert.True(t, reversalEntries[i].Debit.Equal(originalEntries[i].Credit))
		assert.True(t, reversalEntries[i].Credit.Equal(originalEntries[i].Debit))
		require.NotNil(t, reversalEntries[i].ReversesEntryID)
		assert.Equal(t, originalEntries[i].ID, *reversalEntries[i].ReversesEntryID)
	}

	// Inventory nets to zero.
	var balance inventorydomain.Balance
	require.NoError(t, env.db.Where("tenant_id = ? AND item_id = ?", env.tenant, "feed-a").First(&balance).Error)
	assert.True(t, balance.QtyOnHand.IsZero(), "qty: %s", balance.QtyOnHand)
	assert.True(t, balance.TotalValue.IsZero(), "value: %s", balance.TotalValue)

	// Second reversal is rejected.
	_, err = env.svc.ReverseEvent(ctx, env.tenant, ev.ID, postingdomain.ReverseEventInput{})
	require.ErrorIs(t, err, postingdomain.ErrAlreadyReversed)
}

func TestReversePendingEventRejected(t *testing.T) {
	env := newTestEnv(t)

	ev := env.createEvent(t, eventdomain.EventTypePaymentSent, eventdomain.PaymentPayload{Amount: dec("10.00")})

	_, err := env.svc.ReverseEvent(context.Background(), env.tenant, ev.ID, postingdomain.ReverseEventInput{})
	require.Error(t, err)
	assert.True(t, eventdomain.IsInvalidState(err))
}

func TestTenantsWithPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createEvent(t, eventdomain.EventTypePaymentSent, eventdomain.PaymentPayload{Amount: dec("10.00")})

	tenants, err := env.svc.TenantsWithPending(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, env.tenant, tenants[0])

	_, err = env.svc.ProcessPendingEvents(ctx, env.tenant, 10)
	require.NoError(t, err)

	tenants, err = env.svc.TenantsWithPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
