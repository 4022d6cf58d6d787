package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ledgerEntryResponse struct {
	ID         snowflake.ID    `json:"id"`
	LineNumber int             `json:"line_number"`
	AccountID  string          `json:"account_id"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	VendorID   *string         `json:"vendor_id,omitempty"`
	BillIDs    []string        `json:"bill_ids,omitempty"`
	Memo       string          `json:"memo,omitempty"`

	ReversesEntryID *snowflake.ID `json:"reverses_entry_id,omitempty"`
}

type ledgerTransactionResponse struct {
	ID              snowflake.ID    `json:"id"`
	TenantID        snowflake.ID    `json:"tenant_id"`
	SiteID          snowflake.ID    `json:"site_id"`
	SourceEventID   snowflake.ID    `json:"source_event_id"`
	SourceEventType string          `json:"source_event_type"`
	OccurredAt      time.Time       `json:"occurred_at"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	EntryCount      int             `json:"entry_count"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`

	ReversesTransactionID *snowflake.ID `json:"reverses_transaction_id,omitempty"`

	Entries []ledgerEntryResponse `json:"entries,omitempty"`
}

func toLedgerTransactionResponse(txn *accountingdomain.Transaction, entries []accountingdomain.Entry) ledgerTransactionResponse {
	out := ledgerTransactionResponse{
		ID:                    txn.ID,
		TenantID:              txn.TenantID,
		SiteID:                txn.SiteID,
		SourceEventID:         txn.SourceEventID,
		SourceEventType:       string(txn.SourceEventType),
		OccurredAt:            txn.OccurredAt,
		TotalAmount:           txn.TotalAmount,
		EntryCount:            txn.EntryCount,
		Status:                string(txn.Status),
		CreatedAt:             txn.CreatedAt,
		ReversesTransactionID: txn.ReversesTransactionID,
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, ledgerEntryResponse{
			ID:              e.ID,
			LineNumber:      e.LineNumber,
			AccountID:       e.AccountID,
			Debit:           e.Debit,
			Credit:          e.Credit,
			VendorID:        e.VendorID,
			BillIDs:         e.BillIDs,
			Memo:            e.Memo,
			ReversesEntryID: e.ReversesEntryID,
		})
	}
	return out
}

func (s *Server) ListLedgerTransactions(c *gin.Context) {
	tenantID := s.tenantID(c)
	limit := intQuery(c, "limit", 100)

	q := s.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if raw := c.Query("event_id"); raw != "" {
		eventID, ok := parseID(raw)
		if !ok {
			AbortWithError(c, newValidationError("event_id", "invalid_id", "event_id must be a nonzero integer"))
			return
		}
		q = q.Where("source_event_id = ?", eventID)
	}

	var txns []accountingdomain.Transaction
	if err := q.Find(&txns).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]ledgerTransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, toLedgerTransactionResponse(&txns[i], nil))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) GetLedgerTransactionByID(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "transaction id must be a nonzero integer"))
		return
	}
	tenantID := s.tenantID(c)

	var txn accountingdomain.Transaction
	err := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&txn).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var entries []accountingdomain.Entry
	if err := s.db.WithContext(c.Request.Context()).
		Where("transaction_id = ? AND tenant_id = ?", txn.ID, tenantID).
		Order("line_number ASC").
		Find(&entries).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLedgerTransactionResponse(&txn, entries))
}
