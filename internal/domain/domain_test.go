package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"distledger/internal/units"
)

func TestProductDerivedPrices(t *testing.T) {
	p := Product{
		QuantityType:     units.Cartoon,
		PiecesPerUnit:    12,
		WholeUnits:       2,
		ExtraPieces:      3,
		AvgUnitCost:      decimal.NewFromInt(10),
		SellPricePerUnit: decimal.NewFromInt(120),
	}
	if got := p.TotalPieces(); got != 27 {
		t.Fatalf("expected 27 pieces, got %d", got)
	}
	if !p.SellPricePerPiece().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected sell price per piece 10, got %s", p.SellPricePerPiece())
	}
	if !p.BuyPricePerUnit().Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected buy price per unit 120, got %s", p.BuyPricePerUnit())
	}
	if !p.StockValue().Equal(decimal.NewFromInt(270)) {
		t.Fatalf("expected stock value 270, got %s", p.StockValue())
	}
}

func TestPiecesProductSellsAtUnitPrice(t *testing.T) {
	p := Product{QuantityType: units.Pieces, PiecesPerUnit: 12, SellPricePerUnit: decimal.NewFromInt(5)}
	if !p.SellPricePerPiece().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected per-piece price to equal unit price, got %s", p.SellPricePerPiece())
	}
}

func TestDisplayName(t *testing.T) {
	weight := decimal.NewFromInt(5)
	p := Product{Name: "Rice", WeightValue: &weight, WeightUnit: "kg"}
	if got := p.DisplayName(); got != "Rice (5kg)" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestShortageErrorMatchesInsufficientStock(t *testing.T) {
	err := fmt.Errorf("lock sale: %w", &ShortageError{Items: []Shortage{{ProductName: "Sugar", Requested: 5, Available: 2}}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected shortage to match ErrInsufficientStock")
	}
	var shortage *ShortageError
	if !errors.As(err, &shortage) || len(shortage.Items) != 1 {
		t.Fatalf("expected shortage details, got %v", err)
	}
	if Kind(err) != "insufficient_stock" {
		t.Fatalf("unexpected kind %q", Kind(err))
	}
}

func TestKindUnknown(t *testing.T) {
	if Kind(errors.New("boom")) != "" {
		t.Fatalf("expected empty kind for foreign error")
	}
	if Kind(fmt.Errorf("pay: %w", ErrOverPayment)) != "over_payment" {
		t.Fatalf("expected wrapped kind")
	}
}

func TestActorCapabilities(t *testing.T) {
	admin := Actor{Username: "boss", Role: RoleAdmin}
	rep := Actor{Username: "rep", Role: RoleRepresentative}
	if !admin.Elevated() || !admin.CanEnterReturns() {
		t.Fatalf("admin should be elevated")
	}
	if rep.Elevated() || rep.CanEnterReturns() {
		t.Fatalf("representative should not be elevated")
	}
}
