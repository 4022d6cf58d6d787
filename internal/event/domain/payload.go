package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine is one received purchase-order line.
type ReceiptLine struct {
	ItemID          string          `json:"item_id"`
	Category        string          `json:"category,omitempty"`
	QtyReceived     decimal.Decimal `json:"qty_received"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	LotNumber       string          `json:"lot_number,omitempty"`
	ExpirationDate  *time.Time      `json:"expiration_date,omitempty"`
	StorageLocation string          `json:"storage_location,omitempty"`
}

// ReceiptTotals carries the receipt-level totals.
type ReceiptTotals struct {
	TotalCost decimal.Decimal `json:"total_cost"`
}

// ReceiptPayload is the payload of a RECEIPT_POSTED event.
type ReceiptPayload struct {
	Lines    []ReceiptLine `json:"lines"`
	Totals   ReceiptTotals `json:"totals"`
	VendorID string        `json:"vendor_id,omitempty"`
}

// VariancePayload is the payload of a BILL_VARIANCE_POSTED event.
// VarianceAmount is bill total minus received total; positive means the
// vendor billed more than was received.
type VariancePayload struct {
	BillID         string          `json:"bill_id"`
	VarianceAmount decimal.Decimal `json:"variance_amount"`
	VendorID       string          `json:"vendor_id,omitempty"`
}

// PaymentPayload is the payload of a PAYMENT_SENT event.
type PaymentPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	BillIDs  []string        `json:"bill_ids,omitempty"`
	VendorID string          `json:"vendor_id,omitempty"`
}

// DecodeReceiptPayload parses and returns the receipt payload of ev.
func (ev *Event) DecodeReceiptPayload() (ReceiptPayload, error) {
	var p ReceiptPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return ReceiptPayload{}, fmt.Errorf("decode receipt payload: %w", err)
	}
	return p, nil
}

// DecodeVariancePayload parses and returns the bill-variance payload of ev.
func (ev *Event) DecodeVariancePayload() (VariancePayload, error) {
	var p VariancePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return VariancePayload{}, fmt.Errorf("decode variance payload: %w", err)
	}
	return p, nil
}

// DecodePaymentPayload parses and returns the payment payload of ev.
func (ev *Event) DecodePaymentPayload() (PaymentPayload, error) {
	var p PaymentPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return PaymentPayload{}, fmt.Errorf("decode payment payload: %w", err)
	}
	return p, nil
}

// DecodePostingResults parses the stored posting results, if any.
func (ev *Event) DecodePostingResults() (*PostingResults, error) {
	if len(ev.PostingResults) == 0 {
		return nil, nil
	}
	var r PostingResults
	if err := json.Unmarshal(ev.PostingResults, &r); err != nil {
		return nil, fmt.Errorf("decode posting results: %w", err)
	}
	return &r, nil
}
