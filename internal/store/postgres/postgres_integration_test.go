package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/units"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("DISTLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DISTLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestLockSaleCommitsStockAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	groupID := fmt.Sprintf("grp-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	now := time.Now().UTC()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_transactions WHERE group_id = $1`, groupID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ledger_groups WHERE id = $1`, groupID)
	})

	if _, err := s.CreateGroup(ctx, domain.Group{ID: groupID, Name: "IT " + groupID, CreatedAt: now}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:               productID,
		GroupID:          groupID,
		Name:             "Soap",
		QuantityType:     units.Dozen,
		PiecesPerUnit:    12,
		WholeUnits:       2,
		AvgUnitCost:      decimal.NewFromInt(60),
		SellPricePerUnit: decimal.NewFromInt(120),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, &domain.StockTransaction{GroupID: groupID, Kind: domain.TxKindAdd, Reason: domain.ReasonInitial, DeltaPieces: 24, At: now}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := s.SaveSale(ctx, groupID, "2026-03-01", func(existing *domain.Sale, products map[string]domain.Product) (domain.Sale, error) {
		if existing != nil {
			return domain.Sale{}, errors.New("unexpected existing sale")
		}
		if _, ok := products[productID]; !ok {
			return domain.Sale{}, errors.New("product snapshot missing")
		}
		return domain.Sale{
			ID:        saleID,
			Status:    domain.SaleCompleted,
			Items:     []domain.LineItem{{ProductID: productID, SoldPieces: 18}},
			Remarks:   []domain.Remark{{GroupID: groupID, Date: "2026-03-01", Comment: "fuel", Amount: decimal.NewFromInt(5), CreatedAt: now}},
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	if err != nil {
		t.Fatalf("save sale: %v", err)
	}
	if len(sale.Remarks) != 1 || sale.Remarks[0].SaleID != saleID {
		t.Fatalf("expected sale remark attached, got %+v", sale.Remarks)
	}

	_, err = s.LockSale(ctx, saleID, func(current domain.Sale, _ map[string]domain.Product) (domain.Sale, store.Mutation, error) {
		return current, store.Mutation{}, domain.ErrInsufficientStock
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected callback error, got %v", err)
	}

	locked, err := s.LockSale(ctx, saleID, func(current domain.Sale, products map[string]domain.Product) (domain.Sale, store.Mutation, error) {
		p := products[productID]
		p.WholeUnits, p.ExtraPieces = 0, 6
		current.Status = domain.SaleLocked
		current.LockedAt = &now
		return current, store.Mutation{
			Products:     []domain.Product{p},
			Transactions: []domain.StockTransaction{{GroupID: groupID, ProductID: productID, Kind: domain.TxKindWithdraw, Reason: domain.ReasonSale, DeltaPieces: -18, At: now}},
		}, nil
	})
	if err != nil {
		t.Fatalf("lock sale: %v", err)
	}
	if !locked.Locked() {
		t.Fatalf("expected locked sale, got %s", locked.Status)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.TotalPieces() != 6 {
		t.Fatalf("expected 6 pieces after lock, got %d", product.TotalPieces())
	}
	txs, err := s.ListStockTransactions(ctx, groupID, 0)
	if err != nil {
		t.Fatalf("list stock transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected initial and sale transactions, got %d", len(txs))
	}

	got, err := s.GetSaleByDate(ctx, groupID, "2026-03-01")
	if err != nil {
		t.Fatalf("get sale by date: %v", err)
	}
	if got.LockedAt == nil || len(got.Items) != 1 || got.Items[0].SoldPieces != 18 {
		t.Fatalf("unexpected stored sale %+v", got)
	}
}
