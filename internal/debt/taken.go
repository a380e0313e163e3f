package debt

import (
	"fmt"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/stock"
	"distledger/internal/units"
)

// Take withdraws qty from the product and opens a credit record priced at
// totalPrice. The record keeps the product's unit size so later returns
// convert the same way even if the product is reconfigured.
func Take(p domain.Product, qty units.Qty, totalPrice decimal.Decimal) (domain.ProductTaken, domain.Product, domain.StockTransaction, error) {
	if totalPrice.IsNegative() {
		return domain.ProductTaken{}, p, domain.StockTransaction{}, fmt.Errorf("%w: total price must not be negative", domain.ErrInvalidQuantity)
	}
	updated, tx, err := stock.Withdraw(p, qty, totalPrice, domain.ReasonProductTaken)
	if err != nil {
		return domain.ProductTaken{}, p, domain.StockTransaction{}, err
	}
	ppu := p.UnitSize()
	whole, pieces := units.Normalize(qty.Whole, qty.Pieces, ppu)
	record := domain.ProductTaken{
		GroupID:       p.GroupID,
		ProductID:     p.ID,
		ProductName:   p.DisplayName(),
		QuantityType:  p.QuantityType,
		PiecesPerUnit: ppu,
		Whole:         whole,
		Pieces:        pieces,
		TotalPrice:    totalPrice,
		PaidAmount:    decimal.Zero,
	}
	return record, updated, tx, nil
}

func PayTaken(r domain.ProductTaken, amount decimal.Decimal) (domain.ProductTaken, error) {
	if err := checkPayment(amount, r.TotalPrice, r.PaidAmount); err != nil {
		return r, err
	}
	next := r
	next.PaidAmount = r.PaidAmount.Add(amount)
	return next, nil
}

type Returned struct {
	Record  domain.ProductTaken
	Product domain.Product
	Tx      domain.StockTransaction
	Return  domain.ProductTakenReturn
}

// ReturnTaken gives qty back against the record. The outstanding price drops
// in proportion to the outstanding quantity and the pieces are credited to
// stock at zero cost. Paid amounts are left as they are.
func ReturnTaken(r domain.ProductTaken, p domain.Product, qty units.Qty) (Returned, error) {
	if qty.Negative() {
		return Returned{}, fmt.Errorf("%w: return quantities must not be negative", domain.ErrInvalidQuantity)
	}
	ppu := units.PiecesPerUnit(r.QuantityType, r.PiecesPerUnit)
	returned := qty.Total(ppu)
	if returned <= 0 {
		return Returned{}, fmt.Errorf("%w: return requires a positive quantity", domain.ErrInvalidQuantity)
	}
	outstanding := r.OutstandingPieces()
	if returned > outstanding {
		return Returned{}, fmt.Errorf("%w: returning %d of %d pieces", domain.ErrExceedsTaken, returned, outstanding)
	}

	reduction := r.TotalPrice.Mul(decimal.NewFromInt(int64(returned))).Div(decimal.NewFromInt(int64(outstanding))).Round(2)
	next := r
	next.Whole, next.Pieces = units.FromPieces(outstanding-returned, ppu)
	next.TotalPrice = r.TotalPrice.Sub(reduction)
	if next.Whole == 0 && next.Pieces == 0 {
		next.TotalPrice = decimal.Zero
	}

	product, tx, err := stock.Add(p, units.Qty{Pieces: returned}, decimal.Zero, domain.ReasonProductTakenReturn)
	if err != nil {
		return Returned{}, err
	}
	tx.RefID = r.ID

	return Returned{
		Record:  next,
		Product: product,
		Tx:      tx,
		Return: domain.ProductTakenReturn{
			RecordID:       r.ID,
			GroupID:        r.GroupID,
			Whole:          qty.Whole,
			Pieces:         qty.Pieces,
			ReturnedPieces: returned,
			PriceReduction: reduction,
		},
	}, nil
}

// ProductTaken builds the product-taken ledger. returns may span records;
// they are attached to their record for display.
func ProductTaken(groupID string, records []domain.ProductTaken, returns []domain.ProductTakenReturn) domain.ProductTakenLedger {
	byRecord := make(map[string][]domain.ProductTakenReturn)
	for _, ret := range returns {
		byRecord[ret.RecordID] = append(byRecord[ret.RecordID], ret)
	}
	ledger := domain.ProductTakenLedger{
		GroupID: groupID,
		Entries: []domain.ProductTakenEntry{},
		Total:   decimal.Zero,
		Paid:    decimal.Zero,
	}
	for _, r := range records {
		ledger.Entries = append(ledger.Entries, domain.ProductTakenEntry{
			ProductTaken: r,
			Remaining:    r.TotalPrice.Sub(r.PaidAmount),
			FullyPaid:    settled(r.TotalPrice, r.PaidAmount),
			Returns:      byRecord[r.ID],
		})
		ledger.Total = ledger.Total.Add(r.TotalPrice)
		ledger.Paid = ledger.Paid.Add(r.PaidAmount)
	}
	ledger.Remaining = ledger.Total.Sub(ledger.Paid)
	return ledger
}
