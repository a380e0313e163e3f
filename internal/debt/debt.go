// Package debt folds the three per-group running debts (commission, remarks,
// product taken on credit) from append-only records, and validates payments
// and returns against them.
package debt

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
)

// Epsilon absorbs cent rounding when deciding whether an entry is settled or
// a payment overshoots.
var Epsilon = decimal.NewFromFloat(0.01)

func settled(amount, paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(amount.Sub(Epsilon))
}

func checkPayment(amount, owed, paid decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: payment must be positive", domain.ErrInvalidQuantity)
	}
	remaining := owed.Sub(paid)
	if amount.GreaterThan(remaining.Add(Epsilon)) {
		return fmt.Errorf("%w: paying %s against %s remaining", domain.ErrOverPayment, amount.StringFixed(2), remaining.StringFixed(2))
	}
	return nil
}

// Commission builds the commission ledger from the group's sales. Only locked
// sales with a non-zero commission contribute; payments offset the aggregate.
func Commission(groupID string, sales []domain.Sale, payments []domain.GroupPayment) domain.CommissionLedger {
	ledger := domain.CommissionLedger{
		GroupID:  groupID,
		Entries:  []domain.CommissionEntry{},
		Payments: []domain.GroupPayment{},
		Total:    decimal.Zero,
		Paid:     decimal.Zero,
	}
	for _, s := range sales {
		if !s.Locked() || s.CommissionOwed.IsZero() {
			continue
		}
		ledger.Entries = append(ledger.Entries, domain.CommissionEntry{SaleID: s.ID, Date: s.Date, Amount: s.CommissionOwed})
		ledger.Total = ledger.Total.Add(s.CommissionOwed)
	}
	for _, p := range payments {
		if p.Kind != domain.PaymentCommission {
			continue
		}
		ledger.Payments = append(ledger.Payments, p)
		ledger.Paid = ledger.Paid.Add(p.Amount)
	}
	sort.Slice(ledger.Entries, func(i, j int) bool { return ledger.Entries[i].Date < ledger.Entries[j].Date })
	ledger.Remaining = ledger.Total.Sub(ledger.Paid)
	return ledger
}

// CheckCommissionPayment only requires a positive amount; commission
// payments are not capped by the outstanding balance.
func CheckCommissionPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: payment must be positive", domain.ErrInvalidQuantity)
	}
	return nil
}

// Remarks builds the remark ledger. Standalone remarks always count; remarks
// entered on a sale count once that sale is locked.
func Remarks(groupID string, remarks []domain.Remark, lockedSales map[string]bool) domain.RemarkLedger {
	ledger := domain.RemarkLedger{
		GroupID: groupID,
		Active:  []domain.RemarkEntry{},
		Settled: []domain.RemarkEntry{},
		Total:   decimal.Zero,
		Paid:    decimal.Zero,
	}
	for _, r := range remarks {
		if r.SaleID != "" && !lockedSales[r.SaleID] {
			continue
		}
		entry := domain.RemarkEntry{
			Remark:    r,
			Remaining: r.Amount.Sub(r.PaidAmount),
			FullyPaid: settled(r.Amount, r.PaidAmount),
		}
		ledger.Total = ledger.Total.Add(r.Amount)
		ledger.Paid = ledger.Paid.Add(r.PaidAmount)
		if entry.FullyPaid {
			ledger.Settled = append(ledger.Settled, entry)
		} else {
			ledger.Active = append(ledger.Active, entry)
		}
	}
	ledger.Remaining = ledger.Total.Sub(ledger.Paid)
	return ledger
}

// PayRemark applies a partial or full payment to one remark.
func PayRemark(r domain.Remark, amount decimal.Decimal) (domain.Remark, error) {
	if err := checkPayment(amount, r.Amount, r.PaidAmount); err != nil {
		return r, err
	}
	next := r
	next.PaidAmount = r.PaidAmount.Add(amount)
	return next, nil
}

// Total combines the three ledgers into the group's outstanding due.
func Total(group domain.Group, commission domain.CommissionLedger, remarks domain.RemarkLedger, taken domain.ProductTakenLedger) domain.GroupDue {
	return domain.GroupDue{
		GroupID:      group.ID,
		GroupName:    group.Name,
		Commission:   commission.Remaining,
		Remarks:      remarks.Remaining,
		ProductTaken: taken.Remaining,
		Total:        commission.Remaining.Add(remarks.Remaining).Add(taken.Remaining),
	}
}
