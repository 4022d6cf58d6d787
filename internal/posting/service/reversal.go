package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/farmbooks/farmbooks/internal/inventory/builder"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"github.com/farmbooks/farmbooks/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReverseEvent creates a compensating reversal for a POSTED event: a new
// event with every ledger entry's debit and credit swapped and every
// inventory movement negated, so the net effect of original plus reversal is
// zero. At most one reversal per event succeeds.
func (s *Service) ReverseEvent(ctx context.Context, tenantID, eventID snowflake.ID, input postingdomain.ReverseEventInput) (*eventdomain.Event, error) {
	var reversal *eventdomain.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.loadEvent(ctx, tx, tenantID, eventID)
		if err != nil {
			return err
		}
		if original.Status == eventdomain.EventStatusReversed || original.ReversedByEventID != nil {
			return postingdomain.ErrAlreadyReversed
		}
		if original.Status != eventdomain.EventStatusPosted {
			return &eventdomain.InvalidStateError{Op: "reverse", Status: original.Status}
		}

		originalResults, err := original.DecodePostingResults()
		if err != nil {
			return err
		}
		if originalResults == nil {
			originalResults = &eventdomain.PostingResults{}
		}

		now := s.clock.Now()
		reversal = &eventdomain.Event{
			ID:              s.genID.Generate(),
			TenantID:        original.TenantID,
			SiteID:          original.SiteID,
			Type:            original.Type.ReversalType(),
			IdempotencyKey:  "reversal-" + original.ID.String(),
			Status:          eventdomain.EventStatusPosted,
			Payload:         original.Payload,
			SourceType:      original.SourceType,
			SourceID:        original.SourceID,
			OccurredAt:      now,
			CreatedAt:       now,
			PostedAt:        &now,
			ReversesEventID: &original.ID,
		}
		if input.Reason != "" {
			reason := input.Reason
			reversal.ReversalReason = &reason
		}
		if err := tx.WithContext(ctx).Create(reversal).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return postingdomain.ErrAlreadyReversed
			}
			return err
		}

		results := &eventdomain.PostingResults{ReversedEventID: original.ID}

		if originalResults.LedgerTransactionID != 0 {
			txn, entries, err := s.writeReversalTransaction(ctx, tx, reversal, originalResults.LedgerTransactionID)
			if err != nil {
				return err
			}
			results.LedgerTransactionID = txn.ID
			results.EntriesCount = len(entries)
			results.TotalDebits = txn.TotalAmount
			results.TotalCredits = txn.TotalAmount
		}

		if len(originalResults.InventoryMovementIDs) > 0 {
			originals, err := s.loadMovements(ctx, tx, tenantID, originalResults.InventoryMovementIDs)
			if err != nil {
				return err
			}
			movements, err := builder.ApplyReversal(ctx, tx, s.genID, now, reversal, originals)
			if err != nil {
				return err
			}
			for _, m := range movements {
				results.InventoryMovementIDs = append(results.InventoryMovementIDs, m.ID)
			}
		}

		raw, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("marshal posting results: %w", err)
		}
		if err := tx.WithContext(ctx).Exec(`UPDATE business_events SET posting_results = ? WHERE id = ?`,
			raw, reversal.ID).Error; err != nil {
			return err
		}
		reversal.PostingResults = raw

		res := tx.WithContext(ctx).Exec(`UPDATE business_events
			SET status = ?, reversed_by_event_id = ?, reversed_at = ?, reversed_by = ?, reversal_reason = ?
			WHERE id = ? AND tenant_id = ? AND status = ?`,
			eventdomain.EventStatusReversed, reversal.ID, now,
			nullableString(input.RequestedBy), nullableString(input.Reason),
			original.ID, original.TenantID, eventdomain.EventStatusPosted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return postingdomain.ErrAlreadyReversed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncReversal()
	s.log.Info("event reversed",
		zap.String("event_id", eventID.String()),
		zap.String("reversal_event_id", reversal.ID.String()),
	)
	return reversal, nil
}

// writeReversalTransaction mirrors the original ledger transaction with each
// entry's debit and credit swapped, preserving line order and linking every
// reversal entry to the entry it cancels.
func (s *Service) writeReversalTransaction(
	ctx context.Context,
	tx *gorm.DB,
	reversal *eventdomain.Event,
	originalTxnID snowflake.ID,
) (*accountingdomain.Transaction, []accountingdomain.Entry, error) {
	var originalEntries []accountingdomain.Entry
	if err := tx.WithContext(ctx).
		Where("transaction_id = ? AND tenant_id = ?", originalTxnID, reversal.TenantID).
		Order("line_number ASC").
		Find(&originalEntries).Error; err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	originalID := originalTxnID

	totalDebits := decimal.Zero
	for _, e := range originalEntries {
		totalDebits = totalDebits.Add(e.Credit)
	}

	txn := &accountingdomain.Transaction{
		ID:                    s.genID.Generate(),
		TenantID:              reversal.TenantID,
		SiteID:                reversal.SiteID,
		SourceEventID:         reversal.ID,
		SourceEventType:       reversal.Type,
		IdempotencyKey:        reversal.IdempotencyKey,
		OccurredAt:            reversal.OccurredAt,
		TotalAmount:           totalDebits,
		EntryCount:            len(originalEntries),
		Status:                accountingdomain.TransactionStatusPosted,
		ReversesTransactionID: &originalID,
		CreatedAt:             now,
	}
	if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, nil, err
	}

	entries := make([]accountingdomain.Entry, 0, len(originalEntries))
	for _, orig := range originalEntries {
		origEntryID := orig.ID
		entry := accountingdomain.Entry{
			ID:              s.genID.Generate(),
			TenantID:        reversal.TenantID,
			TransactionID:   txn.ID,
			LineNumber:      orig.LineNumber,
			AccountID:       orig.AccountID,
			Debit:           orig.Credit,
			Credit:          orig.Debit,
			VendorID:        orig.VendorID,
			BillIDs:         orig.BillIDs,
			Memo:            "Reversal: " + orig.Memo,
			ReversesEntryID: &origEntryID,
			CreatedAt:       now,
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
	}
	return txn, entries, nil
}

func (s *Service) loadMovements(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]inventorydomain.Movement, error) {
	var movements []inventorydomain.Movement
	if err := tx.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
