// Package service implements the posting engine: the only writer of ledger
// transactions and inventory movements. Every ProcessEvent call runs in one
// database transaction so an event posts completely or not at all.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	"github.com/farmbooks/farmbooks/internal/accounting/rules"
	"github.com/farmbooks/farmbooks/internal/clock"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/farmbooks/farmbooks/internal/inventory/builder"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
	"github.com/farmbooks/farmbooks/internal/observability/metrics"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config tunes the posting engine.
type Config struct {
	// LockTTL is how long a PROCESSING claim is honored before another
	// worker may reclaim the event.
	LockTTL time.Duration
	// WorkerID identifies this worker in the locked_by column.
	WorkerID string
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		c.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return c
}

type Params struct {
	fx.In

	Log     *zap.Logger
	DB      *gorm.DB
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	db      *gorm.DB
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     Config
	metrics *metrics.Metrics
}

func NewService(p Params) postingdomain.Service {
	return &Service{
		log:     p.Log.Named("posting.service"),
		db:      p.DB,
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config.withDefaults(),
		metrics: p.Metrics,
	}
}

// ProcessEvent posts one event. Replaying a POSTED event returns its stored
// results; a PROCESSING event with a live lease returns ErrEventLocked; a
// stale lease is reclaimed and the event posted by this worker.
func (s *Service) ProcessEvent(ctx context.Context, tenantID, eventID snowflake.ID) (*eventdomain.PostingResults, error) {
	start := s.clock.Now()

	var (
		results   *eventdomain.PostingResults
		eventType eventdomain.EventType
		replayed  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := s.loadEvent(ctx, tx, tenantID, eventID)
		if err != nil {
			return err
		}
		eventType = ev.Type

		switch ev.Status {
		case eventdomain.EventStatusPosted:
			// Idempotent replay: the side effects already exist.
			stored, err := ev.DecodePostingResults()
			if err != nil {
				return err
			}
			results = stored
			replayed = true
			return nil
		case eventdomain.EventStatusPending:
		case eventdomain.EventStatusProcessing:
			if !s.leaseExpired(ev) {
				return eventdomain.ErrEventLocked
			}
		default:
			return &eventdomain.InvalidStateError{Op: "process", Status: ev.Status}
		}

		if err := s.claim(ctx, tx, ev); err != nil {
			return err
		}

		posted, err := s.post(ctx, tx, ev)
		if err != nil {
			return err
		}
		results = posted
		return nil
	})
	if err != nil {
		s.markFailedIfDeterministic(ctx, tenantID, eventID, err)
		if string(eventType) != "" {
			s.metrics.IncEventProcessed(string(eventType), metrics.OutcomeFailed)
		}
		return nil, err
	}

	outcome := metrics.OutcomePosted
	if replayed {
		outcome = metrics.OutcomeReplayed
	}
	s.metrics.IncEventProcessed(string(eventType), outcome)
	s.metrics.ObservePostingDuration(string(eventType), s.clock.Now().Sub(start))
	return results, nil
}

// ProcessPendingEvents drains up to limit PENDING events for the tenant in
// creation order. Events locked by other workers are skipped; events that
// fail are counted and the batch continues.
func (s *Service) ProcessPendingEvents(ctx context.Context, tenantID snowflake.ID, limit int) (postingdomain.BatchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Raw(`SELECT id FROM business_events
		     WHERE tenant_id = ? AND status = ?
		     ORDER BY created_at ASC, id ASC
		     LIMIT ?`, tenantID, eventdomain.EventStatusPending, limit).
		Scan(&ids).Error
	if err != nil {
		return postingdomain.BatchResult{}, err
	}

	var result postingdomain.BatchResult
	for _, id := range ids {
		result.Processed++
		if _, err := s.ProcessEvent(ctx, tenantID, id); err != nil {
			switch {
			case err == eventdomain.ErrEventLocked || err == eventdomain.ErrEventNotFound:
				result.Processed--
				result.Skipped++
			default:
				result.Failed++
				s.log.Warn("event failed during drain",
					zap.String("event_id", id.String()),
					zap.Error(err),
				)
			}
			continue
		}
		result.Posted++
	}

	s.metrics.ObserveDrainBatch(result.Processed)
	return result, nil
}

// RetryEvent resets a FAILED event to PENDING, clearing the failure record.
func (s *Service) RetryEvent(ctx context.Context, tenantID, eventID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := s.loadEvent(ctx, tx, tenantID, eventID)
		if err != nil {
			return err
		}
		if ev.Status != eventdomain.EventStatusFailed {
			return &eventdomain.InvalidStateError{Op: "retry", Status: ev.Status}
		}

		res := tx.Exec(`UPDATE business_events
			SET status = ?, error = NULL, failed_at = NULL, locked_at = NULL, locked_by = NULL
			WHERE id = ? AND tenant_id = ? AND status = ?`,
			eventdomain.EventStatusPending, eventID, tenantID, eventdomain.EventStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &eventdomain.InvalidStateError{Op: "retry", Status: ev.Status}
		}
		return nil
	})
}

// TenantsWithPending lists tenants that currently have PENDING events.
func (s *Service) TenantsWithPending(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT tenant_id FROM business_events WHERE status = ?`,
			eventdomain.EventStatusPending).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) loadEvent(ctx context.Context, tx *gorm.DB, tenantID, eventID snowflake.ID) (*eventdomain.Event, error) {
	var ev eventdomain.Event
	err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", eventID, tenantID).
		First(&ev).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, eventdomain.ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

func (s *Service) leaseExpired(ev *eventdomain.Event) bool {
	if ev.LockedAt == nil {
		return true
	}
	return s.clock.Now().Sub(*ev.LockedAt) > s.cfg.LockTTL
}

// claim flips the event to PROCESSING with a conditional update so two
// workers racing on the same event cannot both win.
func (s *Service) claim(ctx context.Context, tx *gorm.DB, ev *eventdomain.Event) error {
	now := s.clock.Now()
	stale := now.Add(-s.cfg.LockTTL)

	res := tx.WithContext(ctx).Exec(`UPDATE business_events
		SET status = ?, locked_at = ?, locked_by = ?
		WHERE id = ? AND tenant_id = ?
		  AND (status = ? OR (status = ? AND (locked_at IS NULL OR locked_at <= ?)))`,
		eventdomain.EventStatusProcessing, now, s.cfg.WorkerID,
		ev.ID, ev.TenantID,
		eventdomain.EventStatusPending, eventdomain.EventStatusProcessing, stale)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return eventdomain.ErrEventLocked
	}
	return nil
}

// post builds the ledger lines and inventory movements for a claimed event
// and marks it POSTED. Runs inside the claiming transaction.
func (s *Service) post(ctx context.Context, tx *gorm.DB, ev *eventdomain.Event) (*eventdomain.PostingResults, error) {
	accounts, err := accountingdomain.LoadAccounts(ctx, tx, ev.TenantID)
	if err != nil {
		return nil, err
	}

	var (
		lines     []accountingdomain.Line
		movements []inventorydomain.Movement
	)
	switch ev.Type {
	case eventdomain.EventTypeReceiptPosted:
		p, err := ev.DecodeReceiptPayload()
		if err != nil {
			return nil, &postingdomain.PayloadError{EventType: ev.Type, Err: err}
		}
		if lines, err = rules.ForReceipt(p, accounts); err != nil {
			return nil, err
		}
		if movements, err = builder.ApplyReceipt(ctx, tx, s.genID, s.clock.Now(), ev, p); err != nil {
			return nil, err
		}
	case eventdomain.EventTypeBillVariancePosted:
		p, err := ev.DecodeVariancePayload()
		if err != nil {
			return nil, &postingdomain.PayloadError{EventType: ev.Type, Err: err}
		}
		if lines, err = rules.ForBillVariance(p, accounts); err != nil {
			return nil, err
		}
	case eventdomain.EventTypePaymentSent:
		p, err := ev.DecodePaymentPayload()
		if err != nil {
			return nil, &postingdomain.PayloadError{EventType: ev.Type, Err: err}
		}
		if lines, err = rules.ForPayment(p, accounts); err != nil {
			return nil, err
		}
	default:
		// Non-posting types are acknowledged with zero lines so the event
		// log stays a complete audit trail.
	}

	if err := accountingdomain.ValidateBalanced(lines); err != nil {
		return nil, err
	}

	results := &eventdomain.PostingResults{EntriesCount: len(lines)}
	results.TotalDebits, results.TotalCredits = accountingdomain.Totals(lines)
	for _, m := range movements {
		results.InventoryMovementIDs = append(results.InventoryMovementIDs, m.ID)
	}

	if len(lines) > 0 {
		txn, err := s.writeTransaction(ctx, tx, ev, lines, nil)
		if err != nil {
			return nil, err
		}
		results.LedgerTransactionID = txn.ID
	}

	if err := s.markPosted(ctx, tx, ev, results); err != nil {
		return nil, err
	}
	s.log.Info("event posted",
		zap.String("event_id", ev.ID.String()),
		zap.String("event_type", string(ev.Type)),
		zap.Int("entries", results.EntriesCount),
		zap.Int("movements", len(movements)),
	)
	return results, nil
}

func (s *Service) writeTransaction(
	ctx context.Context,
	tx *gorm.DB,
	ev *eventdomain.Event,
	lines []accountingdomain.Line,
	reverses *snowflake.ID,
) (*accountingdomain.Transaction, error) {
	now := s.clock.Now()
	debits, _ := accountingdomain.Totals(lines)

	txn := &accountingdomain.Transaction{
		ID:                    s.genID.Generate(),
		TenantID:              ev.TenantID,
		SiteID:                ev.SiteID,
		SourceEventID:         ev.ID,
		SourceEventType:       ev.Type,
		IdempotencyKey:        ev.IdempotencyKey,
		OccurredAt:            ev.OccurredAt,
		TotalAmount:           debits,
		EntryCount:            len(lines),
		Status:                accountingdomain.TransactionStatusPosted,
		ReversesTransactionID: reverses,
		CreatedAt:             now,
	}
	if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}

	for i, line := range lines {
		entry := accountingdomain.Entry{
			ID:            s.genID.Generate(),
			TenantID:      ev.TenantID,
			TransactionID: txn.ID,
			LineNumber:    i + 1,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			BillIDs:       line.BillIDs,
			Memo:          line.Memo,
			CreatedAt:     now,
		}
		if line.VendorID != "" {
			vendorID := line.VendorID
			entry.VendorID = &vendorID
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, err
		}
	}
	return txn, nil
}

func (s *Service) markPosted(ctx context.Context, tx *gorm.DB, ev *eventdomain.Event, results *eventdomain.PostingResults) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal posting results: %w", err)
	}

	now := s.clock.Now()
	res := tx.WithContext(ctx).Exec(`UPDATE business_events
		SET status = ?, posted_at = ?, posting_results = ?, locked_at = NULL, locked_by = NULL
		WHERE id = ? AND tenant_id = ? AND status = ?`,
		eventdomain.EventStatusPosted, now, raw,
		ev.ID, ev.TenantID, eventdomain.EventStatusProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return eventdomain.ErrEventLocked
	}
	return nil
}

// markFailedIfDeterministic records a FAILED status for errors that retrying
// cannot fix. Best effort, outside the rolled-back posting transaction;
// transient errors leave the event PENDING for the next drain.
func (s *Service) markFailedIfDeterministic(ctx context.Context, tenantID, eventID snowflake.ID, cause error) {
	if !postingdomain.IsPostingFailure(cause) {
		return
	}

	now := s.clock.Now()
	msg := cause.Error()
	res := s.db.WithContext(ctx).Exec(`UPDATE business_events
		SET status = ?, error = ?, failed_at = ?, locked_at = NULL, locked_by = NULL
		WHERE id = ? AND tenant_id = ? AND status IN ?`,
		eventdomain.EventStatusFailed, msg, now,
		eventID, tenantID,
		[]eventdomain.EventStatus{eventdomain.EventStatusPending, eventdomain.EventStatusProcessing})
	if res.Error != nil {
		s.log.Error("failed to record event failure",
			zap.String("event_id", eventID.String()),
			zap.Error(res.Error),
		)
		return
	}
	s.log.Warn("event marked failed",
		zap.String("event_id", eventID.String()),
		zap.String("cause", msg),
	)
}
