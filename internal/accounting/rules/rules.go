// Package rules maps business events to balanced double-entry ledger lines.
// Every function is pure: no store access, no clock, no side effects.
package rules

import (
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/shopspring/decimal"
)

// ForReceipt builds the lines for a RECEIPT_POSTED event: one debit per
// resolved inventory account (lines grouped by account, first-appearance
// order) and one accounts-payable credit for the grand total.
func ForReceipt(p eventdomain.ReceiptPayload, accounts accountingdomain.AccountSet) ([]accountingdomain.Line, error) {
	apAccount, err := accounts.Resolve(accountingdomain.RoleAccountsPayable)
	if err != nil {
		return nil, err
	}

	perAccount := make(map[string]decimal.Decimal)
	order := make([]string, 0, len(p.Lines))
	grandTotal := decimal.Zero
	for _, line := range p.Lines {
		account, err := accounts.InventoryFor(line.Category)
		if err != nil {
			return nil, err
		}
		if _, seen := perAccount[account]; !seen {
			order = append(order, account)
		}
		perAccount[account] = perAccount[account].Add(line.TotalCost)
		grandTotal = grandTotal.Add(line.TotalCost)
	}

	lines := make([]accountingdomain.Line, 0, len(order)+1)
	for _, account := range order {
		lines = append(lines, accountingdomain.Line{
			AccountID: account,
			Debit:     perAccount[account],
			Credit:    decimal.Zero,
			Memo:      "Goods receipt",
		})
	}
	lines = append(lines, accountingdomain.Line{
		AccountID: apAccount,
		Debit:     decimal.Zero,
		Credit:    grandTotal,
		VendorID:  p.VendorID,
		Memo:      "Goods receipt accrual",
	})
	return lines, nil
}

// ForBillVariance builds the lines for a BILL_VARIANCE_POSTED event.
// A positive variance (billed more than received) debits purchase price
// variance and credits accounts payable; a negative variance swaps the
// sides with the absolute value. A zero variance produces no lines.
func ForBillVariance(p eventdomain.VariancePayload, accounts accountingdomain.AccountSet) ([]accountingdomain.Line, error) {
	if p.VarianceAmount.IsZero() {
		return nil, nil
	}

	ppvAccount, err := accounts.Resolve(accountingdomain.RolePurchasePriceVariance)
	if err != nil {
		return nil, err
	}
	apAccount, err := accounts.Resolve(accountingdomain.RoleAccountsPayable)
	if err != nil {
		return nil, err
	}

	amount := p.VarianceAmount.Abs()
	memo := "Purchase price variance for bill " + p.BillID

	debitAccount, creditAccount := ppvAccount, apAccount
	if p.VarianceAmount.IsNegative() {
		debitAccount, creditAccount = apAccount, ppvAccount
	}

	return []accountingdomain.Line{
		{
			AccountID: debitAccount,
			Debit:     amount,
			Credit:    decimal.Zero,
			VendorID:  p.VendorID,
			BillIDs:   billIDs(p.BillID),
			Memo:      memo,
		},
		{
			AccountID: creditAccount,
			Debit:     decimal.Zero,
			Credit:    amount,
			VendorID:  p.VendorID,
			BillIDs:   billIDs(p.BillID),
			Memo:      memo,
		},
	}, nil
}

// ForPayment builds the lines for a PAYMENT_SENT event: debit accounts
// payable for the bills settled, credit cash for the full payment amount.
func ForPayment(p eventdomain.PaymentPayload, accounts accountingdomain.AccountSet) ([]accountingdomain.Line, error) {
	apAccount, err := accounts.Resolve(accountingdomain.RoleAccountsPayable)
	if err != nil {
		return nil, err
	}
	cashAccount, err := accounts.Resolve(accountingdomain.RoleCash)
	if err != nil {
		return nil, err
	}

	return []accountingdomain.Line{
		{
			AccountID: apAccount,
			Debit:     p.Amount,
			Credit:    decimal.Zero,
			VendorID:  p.VendorID,
			BillIDs:   p.BillIDs,
			Memo:      "Vendor payment",
		},
		{
			AccountID: cashAccount,
			Debit:     decimal.Zero,
			Credit:    p.Amount,
			VendorID:  p.VendorID,
			Memo:      "Vendor payment",
		},
	}, nil
}

func billIDs(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
