// Package builder derives inventory movements and balance updates from
// receipt events. It runs inside the caller's transaction and keeps a strict
// two-phase shape: every balance read is issued before any write, matching
// the backing store's read-before-write transaction constraint.
package builder

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplyReceipt validates the receipt lines, folds them into the (site, item)
// balances with weighted-average costing, and writes one movement per line
// plus the updated or lazily created balances. Any invalid line fails the
// whole batch before anything is written.
func ApplyReceipt(
	ctx context.Context,
	tx *gorm.DB,
	genID *snowflake.Node,
	now time.Time,
	ev *eventdomain.Event,
	p eventdomain.ReceiptPayload,
) ([]inventorydomain.Movement, error) {
	// Phase 1: validate every line up front.
	for i, line := range p.Lines {
		if line.ItemID == "" {
			return nil, &inventorydomain.LineValidationError{Index: i + 1, Reason: "missing item id"}
		}
		if !line.QtyReceived.IsPositive() {
			return nil, &inventorydomain.LineValidationError{
				Index:  i + 1,
				ItemID: line.ItemID,
				Reason: "qty_received must be a positive number",
			}
		}
	}

	// Phase 2: read the current balance for every referenced item.
	itemIDs := make([]string, 0, len(p.Lines))
	seen := make(map[string]bool, len(p.Lines))
	for _, line := range p.Lines {
		if !seen[line.ItemID] {
			seen[line.ItemID] = true
			itemIDs = append(itemIDs, line.ItemID)
		}
	}
	balances, err := loadBalances(ctx, tx, ev.TenantID, ev.SiteID, itemIDs)
	if err != nil {
		return nil, err
	}

	// Phase 3: compute movements and new balances in memory.
	created := make(map[string]bool, len(itemIDs))
	movements := make([]inventorydomain.Movement, 0, len(p.Lines))
	for _, line := range p.Lines {
		balance, ok := balances[line.ItemID]
		if !ok {
			balance = &inventorydomain.Balance{
				ID:             genID.Generate(),
				TenantID:       ev.TenantID,
				SiteID:         ev.SiteID,
				ItemID:         line.ItemID,
				QtyOnHand:      decimal.Zero,
				AvgCostPerUnit: decimal.Zero,
				TotalValue:     decimal.Zero,
				CreatedAt:      now,
			}
			balances[line.ItemID] = balance
			created[line.ItemID] = true
		}

		movement := inventorydomain.Movement{
			ID:              genID.Generate(),
			TenantID:        ev.TenantID,
			SiteID:          ev.SiteID,
			ItemID:          line.ItemID,
			EventID:         ev.ID,
			EventType:       ev.Type,
			MovementType:    inventorydomain.MovementTypeReceipt,
			Qty:             line.QtyReceived,
			UnitCost:        line.UnitCost,
			TotalCost:       line.TotalCost,
			LotNumber:       line.LotNumber,
			ExpirationDate:  line.ExpirationDate,
			StorageLocation: line.StorageLocation,
			CreatedAt:       now,
		}
		balance.Apply(&movement)
		balance.UpdatedAt = now
		movements = append(movements, movement)
	}

	// Phase 4: write movements, then balances.
	for i := range movements {
		if err := tx.WithContext(ctx).Create(&movements[i]).Error; err != nil {
			return nil, err
		}
	}
	for _, itemID := range itemIDs {
		if err := writeBalance(ctx, tx, balances[itemID], created[itemID]); err != nil {
			return nil, err
		}
	}

	return movements, nil
}

// ApplyReversal writes one negated movement per original movement and folds
// the negations into the affected balances, cancelling the original receipt
// exactly. Same two-phase ordering as ApplyReceipt.
func ApplyReversal(
	ctx context.Context,
	tx *gorm.DB,
	genID *snowflake.Node,
	now time.Time,
	reversal *eventdomain.Event,
	originals []inventorydomain.Movement,
) ([]inventorydomain.Movement, error) {
	itemIDs := make([]string, 0, len(originals))
	seen := make(map[string]bool, len(originals))
	for _, m := range originals {
		if !seen[m.ItemID] {
			seen[m.ItemID] = true
			itemIDs = append(itemIDs, m.ItemID)
		}
	}
	if len(itemIDs) == 0 {
		return nil, nil
	}

	siteID := originals[0].SiteID
	balances, err := loadBalances(ctx, tx, reversal.TenantID, siteID, itemIDs)
	if err != nil {
		return nil, err
	}

	created := make(map[string]bool, len(itemIDs))
	movements := make([]inventorydomain.Movement, 0, len(originals))
	for _, original := range originals {
		balance, ok := balances[original.ItemID]
		if !ok {
			// A reversal for an item with no balance row means the original
			// posting predates balance tracking; start from zero.
			balance = &inventorydomain.Balance{
				ID:             genID.Generate(),
				TenantID:       reversal.TenantID,
				SiteID:         original.SiteID,
				ItemID:         original.ItemID,
				QtyOnHand:      decimal.Zero,
				AvgCostPerUnit: decimal.Zero,
				TotalValue:     decimal.Zero,
				CreatedAt:      now,
			}
			balances[original.ItemID] = balance
			created[original.ItemID] = true
		}

		originalID := original.ID
		movement := inventorydomain.Movement{
			ID:                 genID.Generate(),
			TenantID:           reversal.TenantID,
			SiteID:             original.SiteID,
			ItemID:             original.ItemID,
			EventID:            reversal.ID,
			EventType:          reversal.Type,
			MovementType:       inventorydomain.MovementTypeReversal,
			Qty:                original.Qty.Neg(),
			UnitCost:           original.UnitCost,
			TotalCost:          original.TotalCost.Neg(),
			LotNumber:          original.LotNumber,
			ExpirationDate:     original.ExpirationDate,
			StorageLocation:    original.StorageLocation,
			ReversesMovementID: &originalID,
			CreatedAt:          now,
		}
		balance.Apply(&movement)
		balance.UpdatedAt = now
		movements = append(movements, movement)
	}

	for i := range movements {
		if err := tx.WithContext(ctx).Create(&movements[i]).Error; err != nil {
			return nil, err
		}
	}
	for _, itemID := range itemIDs {
		if err := writeBalance(ctx, tx, balances[itemID], created[itemID]); err != nil {
			return nil, err
		}
	}

	return movements, nil
}

func loadBalances(ctx context.Context, tx *gorm.DB, tenantID, siteID snowflake.ID, itemIDs []string) (map[string]*inventorydomain.Balance, error) {
	var rows []inventorydomain.Balance
	if err := tx.WithContext(ctx).
		Where("tenant_id = ? AND site_id = ? AND item_id IN ?", tenantID, siteID, itemIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	balances := make(map[string]*inventorydomain.Balance, len(rows))
	for i := range rows {
		balances[rows[i].ItemID] = &rows[i]
	}
	return balances, nil
}

func writeBalance(ctx context.Context, tx *gorm.DB, balance *inventorydomain.Balance, isNew bool) error {
	if isNew {
		return tx.WithContext(ctx).Create(balance).Error
	}
	return tx.WithContext(ctx).
		Model(&inventorydomain.Balance{}).
		Where("id = ?", balance.ID).
		Updates(map[string]interface{}{
			"qty_on_hand":       balance.QtyOnHand,
			"avg_cost_per_unit": balance.AvgCostPerUnit,
			"total_value":       balance.TotalValue,
			"last_movement_id":  balance.LastMovementID,
			"updated_at":        balance.UpdatedAt,
		}).Error
}
