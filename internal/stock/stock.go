// Package stock implements the weighted-average-cost stock ledger. Every
// function is pure: it takes a product snapshot and returns the next state
// plus the transaction that explains it. Stores run these inside their own
// atomic section.
package stock

import (
	"fmt"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/units"
)

// Add credits qty to the product and folds totalCost into the per-piece
// average cost.
func Add(p domain.Product, qty units.Qty, totalCost decimal.Decimal, reason string) (domain.Product, domain.StockTransaction, error) {
	if qty.Negative() || totalCost.IsNegative() {
		return p, domain.StockTransaction{}, fmt.Errorf("%w: add quantities and cost must not be negative", domain.ErrInvalidQuantity)
	}
	ppu := p.UnitSize()
	delta := qty.Total(ppu)
	if delta <= 0 {
		return p, domain.StockTransaction{}, fmt.Errorf("%w: add requires a positive quantity", domain.ErrInvalidQuantity)
	}

	current := p.TotalPieces()
	next := current + delta
	held := p.AvgUnitCost.Mul(decimal.NewFromInt(int64(current)))
	avg := held.Add(totalCost).Div(decimal.NewFromInt(int64(next)))

	updated := p
	updated.AvgUnitCost = avg
	updated.WholeUnits, updated.ExtraPieces = units.FromPieces(next, ppu)

	if reason == "" {
		reason = domain.ReasonRestock
	}
	return updated, transaction(updated, domain.TxKindAdd, reason, delta, totalCost), nil
}

// Withdraw debits qty without touching the average cost. A zero totalValue is
// recorded at the current cost basis.
func Withdraw(p domain.Product, qty units.Qty, totalValue decimal.Decimal, reason string) (domain.Product, domain.StockTransaction, error) {
	if qty.Negative() || totalValue.IsNegative() {
		return p, domain.StockTransaction{}, fmt.Errorf("%w: withdraw quantities and value must not be negative", domain.ErrInvalidQuantity)
	}
	ppu := p.UnitSize()
	delta := qty.Total(ppu)
	if delta <= 0 {
		return p, domain.StockTransaction{}, fmt.Errorf("%w: withdraw requires a positive quantity", domain.ErrInvalidQuantity)
	}
	current := p.TotalPieces()
	if delta > current {
		return p, domain.StockTransaction{}, fmt.Errorf("%w: %s has %d pieces, %d requested", domain.ErrInsufficientStock, p.Name, current, delta)
	}
	if totalValue.IsZero() {
		totalValue = CostOf(p, delta)
	}

	updated := p
	updated.WholeUnits, updated.ExtraPieces = units.FromPieces(current-delta, ppu)
	if reason == "" {
		reason = domain.ReasonWithdrawal
	}
	return updated, transaction(updated, domain.TxKindWithdraw, reason, delta, totalValue), nil
}

// Commit is the lock-time decrement for a sale line. It returns the cost basis
// of the sold pieces at the average cost held at commit time.
func Commit(p domain.Product, soldPieces int) (domain.Product, domain.StockTransaction, decimal.Decimal, error) {
	if soldPieces < 0 {
		return p, domain.StockTransaction{}, decimal.Zero, fmt.Errorf("%w: sold pieces must not be negative", domain.ErrInvalidQuantity)
	}
	current := p.TotalPieces()
	if soldPieces > current {
		return p, domain.StockTransaction{}, decimal.Zero, fmt.Errorf("%w: %s has %d pieces, %d sold", domain.ErrInsufficientStock, p.Name, current, soldPieces)
	}
	cost := CostOf(p, soldPieces)

	updated := p
	updated.WholeUnits, updated.ExtraPieces = units.FromPieces(current-soldPieces, p.UnitSize())
	return updated, transaction(updated, domain.TxKindWithdraw, domain.ReasonSale, soldPieces, cost), cost, nil
}

// CostOf values pieces at the product's current average cost.
func CostOf(p domain.Product, pieces int) decimal.Decimal {
	return p.AvgUnitCost.Mul(decimal.NewFromInt(int64(pieces))).Round(2)
}

func transaction(after domain.Product, kind string, reason string, delta int, total decimal.Decimal) domain.StockTransaction {
	return domain.StockTransaction{
		GroupID:          after.GroupID,
		ProductID:        after.ID,
		ProductName:      after.DisplayName(),
		Kind:             kind,
		Reason:           reason,
		DeltaPieces:      delta,
		TotalPrice:       total,
		AvgUnitCostAfter: after.AvgUnitCost,
		StockAfter:       after.TotalPieces(),
	}
}
