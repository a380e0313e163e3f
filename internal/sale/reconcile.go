// Package sale reconciles daily sale carts against stock and drives the sale
// lifecycle from submission to lock.
package sale

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/units"
)

// Line is a sale line bound to the product snapshot it was validated
// against. Edits return a new Line and leave the receiver untouched.
type Line struct {
	product  domain.Product
	request  units.Qty
	returned units.Qty
}

func NewLine(p domain.Product) Line {
	return Line{product: p}
}

func (l Line) WithRequest(q units.Qty) (Line, error) {
	if q.Negative() {
		return l, fmt.Errorf("%w: request for %s is negative", domain.ErrInvalidQuantity, l.product.Name)
	}
	requested := q.Total(l.product.UnitSize())
	if available := l.product.TotalPieces(); requested > available {
		return l, fmt.Errorf("%w: %s requested %d pieces, %d in stock", domain.ErrExceedsStock, l.product.Name, requested, available)
	}
	next := l
	next.request = q
	return next, nil
}

func (l Line) WithReturn(actor domain.Actor, q units.Qty) (Line, error) {
	if q.Negative() {
		return l, fmt.Errorf("%w: return for %s is negative", domain.ErrInvalidQuantity, l.product.Name)
	}
	ppu := l.product.UnitSize()
	returned := q.Total(ppu)
	if returned > 0 && !actor.CanEnterReturns() {
		return l, fmt.Errorf("%w: %s may not enter returns", domain.ErrForbidden, actor.Name())
	}
	if requested := l.request.Total(ppu); returned > requested {
		return l, fmt.Errorf("%w: %s returned %d pieces of %d requested", domain.ErrExceedsRequest, l.product.Name, returned, requested)
	}
	next := l
	next.returned = q
	return next, nil
}

func (l Line) RequestedPieces() int {
	return l.request.Total(l.product.UnitSize())
}

func (l Line) ReturnedPieces() int {
	return l.returned.Total(l.product.UnitSize())
}

// SoldPieces never goes below zero, even when a request edit drops under an
// earlier return.
func (l Line) SoldPieces() int {
	return max(0, l.RequestedPieces()-l.ReturnedPieces())
}

func (l Line) Item() domain.LineItem {
	ppu := l.product.UnitSize()
	sold := units.FromTotal(l.SoldPieces(), ppu)
	return domain.LineItem{
		ProductID:        l.product.ID,
		ProductName:      l.product.DisplayName(),
		QuantityType:     l.product.QuantityType,
		PiecesPerUnit:    ppu,
		Request:          l.request,
		Return:           l.returned,
		RequestedPieces:  l.RequestedPieces(),
		ReturnedPieces:   l.ReturnedPieces(),
		SoldPieces:       l.SoldPieces(),
		Sold:             sold,
		SellPricePerUnit: l.product.SellPricePerUnit,
		Price:            Price(l.product, sold),
	}
}

// Price is soldWhole*unitPrice + soldPieces*piecePrice, rounded to cents.
// The per-piece term multiplies before dividing so 18 pieces of a 12-piece
// carton at 120 is exactly 180.
func Price(p domain.Product, sold units.Qty) decimal.Decimal {
	unit := p.SellPricePerUnit
	ppu := decimal.NewFromInt(int64(p.UnitSize()))
	whole := unit.Mul(decimal.NewFromInt(int64(sold.Whole)))
	pieces := unit.Mul(decimal.NewFromInt(int64(sold.Pieces))).Div(ppu)
	return whole.Add(pieces).Round(2)
}

// BuildLine validates one requested line against the product snapshot.
func BuildLine(actor domain.Actor, p domain.Product, req domain.SaleLineRequest) (domain.LineItem, error) {
	line, err := NewLine(p).WithRequest(req.Request)
	if err != nil {
		return domain.LineItem{}, err
	}
	line, err = line.WithReturn(actor, req.Return)
	if err != nil {
		return domain.LineItem{}, err
	}
	return line.Item(), nil
}

type Summary struct {
	TotalAmount    decimal.Decimal
	RemarksTotal   decimal.Decimal
	Due            decimal.Decimal
	CommissionOwed decimal.Decimal
}

// Totals aggregates a cart. Due may be negative; commission equals due.
func Totals(items []domain.LineItem, cash decimal.Decimal, remarks []domain.Remark) Summary {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price)
	}
	remarkTotal := decimal.Zero
	for _, remark := range remarks {
		remarkTotal = remarkTotal.Add(remark.Amount)
	}
	due := total.Sub(cash).Sub(remarkTotal)
	return Summary{
		TotalAmount:    total,
		RemarksTotal:   remarkTotal,
		Due:            due,
		CommissionOwed: due,
	}
}

// Reconcile validates a submitted cart against the group's stock and returns
// the draft sale with every derived field filled in. products must hold the
// current snapshot of each referenced product.
func Reconcile(actor domain.Actor, products map[string]domain.Product, req domain.SaleSubmitRequest) (domain.Sale, error) {
	if req.CashReceived.IsNegative() {
		return domain.Sale{}, fmt.Errorf("%w: cash received must not be negative", domain.ErrInvalidQuantity)
	}

	seen := make(map[string]struct{}, len(req.Items))
	items := make([]domain.LineItem, 0, len(req.Items))
	for _, line := range req.Items {
		id := strings.TrimSpace(line.ProductID)
		if _, dup := seen[id]; dup {
			return domain.Sale{}, fmt.Errorf("%w: product %s appears twice", domain.ErrInvalidQuantity, id)
		}
		seen[id] = struct{}{}

		product, ok := products[id]
		if !ok || product.GroupID != req.GroupID {
			return domain.Sale{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
		item, err := BuildLine(actor, product, line)
		if err != nil {
			return domain.Sale{}, err
		}
		items = append(items, item)
	}

	remarks := make([]domain.Remark, 0, len(req.Remarks))
	for _, r := range req.Remarks {
		if r.Amount.IsNegative() {
			return domain.Sale{}, fmt.Errorf("%w: remark amount must not be negative", domain.ErrInvalidQuantity)
		}
		remarks = append(remarks, domain.Remark{
			GroupID:    req.GroupID,
			Date:       req.Date,
			Comment:    strings.TrimSpace(r.Comment),
			Amount:     r.Amount,
			PaidAmount: decimal.Zero,
		})
	}

	summary := Totals(items, req.CashReceived, remarks)
	return domain.Sale{
		GroupID:        req.GroupID,
		Date:           req.Date,
		Status:         domain.SaleDraft,
		Items:          items,
		CashReceived:   req.CashReceived,
		Remarks:        remarks,
		TotalAmount:    summary.TotalAmount,
		RemarksTotal:   summary.RemarksTotal,
		Due:            summary.Due,
		CommissionOwed: summary.CommissionOwed,
	}, nil
}
