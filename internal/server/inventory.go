package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/farmbooks/farmbooks/internal/inventory/domain"
	"github.com/farmbooks/farmbooks/pkg/db/pagination"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type inventoryBalanceResponse struct {
	ID             snowflake.ID    `json:"id"`
	SiteID         snowflake.ID    `json:"site_id"`
	ItemID         string          `json:"item_id"`
	QtyOnHand      decimal.Decimal `json:"qty_on_hand"`
	AvgCostPerUnit decimal.Decimal `json:"avg_cost_per_unit"`
	TotalValue     decimal.Decimal `json:"total_value"`
	LastMovementID *snowflake.ID   `json:"last_movement_id,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type inventoryMovementResponse struct {
	ID           snowflake.ID    `json:"id"`
	SiteID       snowflake.ID    `json:"site_id"`
	ItemID       string          `json:"item_id"`
	EventID      snowflake.ID    `json:"event_id"`
	EventType    string          `json:"event_type"`
	MovementType string          `json:"movement_type"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`

	LotNumber       string     `json:"lot_number,omitempty"`
	ExpirationDate  *time.Time `json:"expiration_date,omitempty"`
	StorageLocation string     `json:"storage_location,omitempty"`

	ReversesMovementID *snowflake.ID `json:"reverses_movement_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) ListInventoryBalances(c *gin.Context) {
	tenantID := s.tenantID(c)
	limit := intQuery(c, "limit", 200)

	q := s.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Order("item_id ASC").
		Limit(limit)
	if raw := c.Query("site_id"); raw != "" {
		siteID, ok := parseID(raw)
		if !ok {
			AbortWithError(c, newValidationError("site_id", "invalid_id", "site_id must be a nonzero integer"))
			return
		}
		q = q.Where("site_id = ?", siteID)
	}
	if itemID := c.Query("item_id"); itemID != "" {
		q = q.Where("item_id = ?", itemID)
	}

	var balances []inventorydomain.Balance
	if err := q.Find(&balances).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]inventoryBalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, inventoryBalanceResponse{
			ID:             b.ID,
			SiteID:         b.SiteID,
			ItemID:         b.ItemID,
			QtyOnHand:      b.QtyOnHand,
			AvgCostPerUnit: b.AvgCostPerUnit,
			TotalValue:     b.TotalValue,
			LastMovementID: b.LastMovementID,
			UpdatedAt:      b.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (s *Server) ListInventoryMovements(c *gin.Context) {
	tenantID := s.tenantID(c)

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil || page.PageSize <= 0 {
		page.PageSize = 100
	}
	if page.PageSize > 250 {
		page.PageSize = 250
	}

	q := s.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(page.PageSize + 1)
	if itemID := c.Query("item_id"); itemID != "" {
		q = q.Where("item_id = ?", itemID)
	}
	if raw := c.Query("event_id"); raw != "" {
		eventID, ok := parseID(raw)
		if !ok {
			AbortWithError(c, newValidationError("event_id", "invalid_id", "event_id must be a nonzero integer"))
			return
		}
		q = q.Where("event_id = ?", eventID)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_cursor", "page_token is not a valid cursor"))
			return
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var movements []inventorydomain.Movement
	if err := q.Find(&movements).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	movements, hasMore := pagination.Trim(movements, page.PageSize)
	pageInfo := pagination.PageInfo{HasMore: hasMore}
	if hasMore {
		last := movements[len(movements)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		pageInfo.NextPageToken = token
	}

	out := make([]inventoryMovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, inventoryMovementResponse{
			ID:                 m.ID,
			SiteID:             m.SiteID,
			ItemID:             m.ItemID,
			EventID:            m.EventID,
			EventType:          string(m.EventType),
			MovementType:       string(m.MovementType),
			Qty:                m.Qty,
			UnitCost:           m.UnitCost,
			TotalCost:          m.TotalCost,
			LotNumber:          m.LotNumber,
			ExpirationDate:     m.ExpirationDate,
			StorageLocation:    m.StorageLocation,
			ReversesMovementID: m.ReversesMovementID,
			CreatedAt:          m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"movements": out, "page_info": pageInfo})
}
