package debt

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/units"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCommissionLedgerCountsLockedSalesOnly(t *testing.T) {
	sales := []domain.Sale{
		{ID: "s1", Date: "2026-03-02", Status: domain.SaleLocked, CommissionOwed: dec("100")},
		{ID: "s2", Date: "2026-03-01", Status: domain.SaleLocked, CommissionOwed: dec("50")},
		{ID: "s3", Date: "2026-03-03", Status: domain.SaleCompleted, CommissionOwed: dec("75")},
		{ID: "s4", Date: "2026-03-04", Status: domain.SaleLocked, CommissionOwed: decimal.Zero},
	}
	payments := []domain.GroupPayment{
		{Kind: domain.PaymentCommission, Amount: dec("30")},
		{Kind: domain.PaymentRemark, Amount: dec("999")},
	}
	ledger := Commission("grp-1", sales, payments)
	if len(ledger.Entries) != 2 || ledger.Entries[0].SaleID != "s2" {
		t.Fatalf("unexpected entries %+v", ledger.Entries)
	}
	if !ledger.Total.Equal(dec("150")) || !ledger.Paid.Equal(dec("30")) || !ledger.Remaining.Equal(dec("120")) {
		t.Fatalf("unexpected totals total=%s paid=%s remaining=%s", ledger.Total, ledger.Paid, ledger.Remaining)
	}
}

func TestRemarkLedgerFiltersUnlockedSaleRemarks(t *testing.T) {
	remarks := []domain.Remark{
		{ID: "r1", Amount: dec("40"), PaidAmount: decimal.Zero},
		{ID: "r2", SaleID: "s1", Amount: dec("20"), PaidAmount: dec("20")},
		{ID: "r3", SaleID: "s2", Amount: dec("99"), PaidAmount: decimal.Zero},
	}
	ledger := Remarks("grp-1", remarks, map[string]bool{"s1": true})
	if len(ledger.Active) != 1 || ledger.Active[0].ID != "r1" {
		t.Fatalf("unexpected active remarks %+v", ledger.Active)
	}
	if len(ledger.Settled) != 1 || ledger.Settled[0].ID != "r2" {
		t.Fatalf("unexpected settled remarks %+v", ledger.Settled)
	}
	if !ledger.Remaining.Equal(dec("40")) {
		t.Fatalf("expected remaining 40, got %s", ledger.Remaining)
	}
}

func TestPayRemark(t *testing.T) {
	r := domain.Remark{ID: "r1", Amount: dec("40"), PaidAmount: decimal.Zero}
	r, err := PayRemark(r, dec("15"))
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := PayRemark(r, dec("25.02")); !errors.Is(err, domain.ErrOverPayment) {
		t.Fatalf("expected ErrOverPayment, got %v", err)
	}
	r, err = PayRemark(r, dec("25.01"))
	if err != nil {
		t.Fatalf("pay within epsilon: %v", err)
	}
	if !settled(r.Amount, r.PaidAmount) {
		t.Fatalf("expected remark settled")
	}
	if _, err := PayRemark(r, decimal.Zero); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for zero payment, got %v", err)
	}
}

func TestRemainingNeverNegativeUnderGuard(t *testing.T) {
	r := domain.Remark{Amount: dec("10"), PaidAmount: decimal.Zero}
	for _, amount := range []string{"3", "3", "3", "3", "1", "0.5"} {
		next, err := PayRemark(r, dec(amount))
		if err == nil {
			r = next
		}
		if r.Amount.Sub(r.PaidAmount).LessThan(Epsilon.Neg()) {
			t.Fatalf("remaining went negative: %s", r.Amount.Sub(r.PaidAmount))
		}
	}
}

func rice() domain.Product {
	return domain.Product{
		ID:               "prd-rice",
		GroupID:          "grp-1",
		Name:             "Rice",
		QuantityType:     units.Cartoon,
		PiecesPerUnit:    12,
		WholeUnits:       10,
		AvgUnitCost:      dec("10"),
		SellPricePerUnit: dec("120"),
	}
}

func TestTakeAndReturnProportionalPrice(t *testing.T) {
	record, product, tx, err := Take(rice(), units.Qty{Whole: 3}, dec("360"))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if product.TotalPieces() != 84 || tx.Reason != domain.ReasonProductTaken {
		t.Fatalf("unexpected stock after take: %d %+v", product.TotalPieces(), tx)
	}
	record.ID = "ptk-1"

	result, err := ReturnTaken(record, product, units.Qty{Whole: 1})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if result.Record.Whole != 2 || result.Record.Pieces != 0 {
		t.Fatalf("expected 2 cartons outstanding, got %+v", result.Record)
	}
	if !result.Record.TotalPrice.Equal(dec("240")) || !result.Return.PriceReduction.Equal(dec("120")) {
		t.Fatalf("expected price 240 after return, got %s", result.Record.TotalPrice)
	}
	if result.Product.TotalPieces() != 96 || result.Tx.DeltaPieces != 12 || result.Tx.Reason != domain.ReasonProductTakenReturn {
		t.Fatalf("expected 12 pieces credited back, got %d %+v", result.Product.TotalPieces(), result.Tx)
	}
}

func TestReturnExceedsTaken(t *testing.T) {
	record := domain.ProductTaken{QuantityType: units.Cartoon, PiecesPerUnit: 12, Whole: 1, TotalPrice: dec("120")}
	if _, err := ReturnTaken(record, rice(), units.Qty{Whole: 1, Pieces: 1}); !errors.Is(err, domain.ErrExceedsTaken) {
		t.Fatalf("expected ErrExceedsTaken, got %v", err)
	}
}

func TestReturnUsesRecordedUnitSize(t *testing.T) {
	record := domain.ProductTaken{QuantityType: units.Dozen, PiecesPerUnit: 12, Whole: 2, TotalPrice: dec("240")}
	product := rice()
	product.PiecesPerUnit = 24
	result, err := ReturnTaken(record, product, units.Qty{Whole: 1})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if result.Return.ReturnedPieces != 12 {
		t.Fatalf("expected 12 pieces using recorded unit size, got %d", result.Return.ReturnedPieces)
	}
}

func TestTakeInsufficientStock(t *testing.T) {
	if _, _, _, err := Take(rice(), units.Qty{Whole: 11}, dec("1")); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestGroupTotal(t *testing.T) {
	commission := domain.CommissionLedger{Remaining: dec("100")}
	remarks := domain.RemarkLedger{Remaining: dec("40")}
	taken := ProductTaken("grp-1", []domain.ProductTaken{{ID: "p1", TotalPrice: dec("240"), PaidAmount: dec("40")}}, nil)
	due := Total(domain.Group{ID: "grp-1", Name: "North"}, commission, remarks, taken)
	if !due.Total.Equal(dec("340")) {
		t.Fatalf("expected total due 340, got %s", due.Total)
	}
}
