package sale

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/stock"
)

// SubmitStatus is Completed for elevated actors and Pending otherwise.
func SubmitStatus(actor domain.Actor) string {
	if actor.Elevated() {
		return domain.SaleCompleted
	}
	return domain.SalePending
}

// Submit merges a reconciled draft into the sale already stored for the same
// group and date, if any. Resubmission overwrites everything but identity.
func Submit(existing *domain.Sale, draft domain.Sale, actor domain.Actor, id string, now time.Time) (domain.Sale, error) {
	next := draft
	next.Status = SubmitStatus(actor)
	next.SubmittedBy = actor.Name()
	next.UpdatedAt = now
	next.Profit = nil
	next.LockedBy = ""
	next.LockedAt = nil
	if actor.Elevated() {
		next.ConfirmedBy = actor.Name()
	}

	if existing != nil {
		if existing.Locked() {
			return *existing, fmt.Errorf("%w: %s on %s", domain.ErrSaleLocked, existing.GroupID, existing.Date)
		}
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
	} else {
		next.ID = id
		next.CreatedAt = now
	}
	next.Remarks = append([]domain.Remark(nil), draft.Remarks...)
	for i := range next.Remarks {
		next.Remarks[i].SaleID = next.ID
	}
	return next, nil
}

// Confirm moves a pending sale to completed.
func Confirm(s domain.Sale, actor domain.Actor, now time.Time) (domain.Sale, error) {
	if !actor.Elevated() {
		return s, fmt.Errorf("%w: confirming a sale requires an administrator", domain.ErrForbidden)
	}
	if s.Locked() {
		return s, fmt.Errorf("%w: %s", domain.ErrSaleLocked, s.ID)
	}
	if s.Status != domain.SalePending {
		return s, fmt.Errorf("%w: cannot confirm a %s sale", domain.ErrInvalidStatus, s.Status)
	}
	next := s
	next.Status = domain.SaleCompleted
	next.ConfirmedBy = actor.Name()
	next.UpdatedAt = now
	return next, nil
}

type LockResult struct {
	Sale         domain.Sale
	Products     []domain.Product
	Transactions []domain.StockTransaction
}

// Lock commits every line against the given product snapshots. Either every
// line commits or none does: on shortage the returned error lists every short
// product and the result is empty.
func Lock(s domain.Sale, products map[string]domain.Product, actor domain.Actor, now time.Time) (LockResult, error) {
	if !actor.Elevated() {
		return LockResult{}, fmt.Errorf("%w: locking a sale requires an administrator", domain.ErrForbidden)
	}
	if s.Locked() {
		return LockResult{}, fmt.Errorf("%w: %s", domain.ErrSaleLocked, s.ID)
	}
	if s.Status != domain.SalePending && s.Status != domain.SaleCompleted {
		return LockResult{}, fmt.Errorf("%w: cannot lock a %s sale", domain.ErrInvalidStatus, s.Status)
	}

	working := make(map[string]domain.Product, len(products))
	for id, p := range products {
		working[id] = p
	}

	next := s
	next.Items = append([]domain.LineItem(nil), s.Items...)
	var shortages []domain.Shortage
	var txs []domain.StockTransaction
	touched := make([]string, 0, len(s.Items))
	profit := decimal.Zero

	for i, item := range next.Items {
		p, ok := working[item.ProductID]
		if !ok {
			return LockResult{}, fmt.Errorf("%w: product %s on sale %s", domain.ErrNotFound, item.ProductID, s.ID)
		}
		if item.SoldPieces > p.TotalPieces() {
			shortages = append(shortages, domain.Shortage{
				ProductID:   p.ID,
				ProductName: p.DisplayName(),
				Requested:   item.SoldPieces,
				Available:   p.TotalPieces(),
			})
			continue
		}

		unitCost := p.AvgUnitCost
		cost := decimal.Zero
		if item.SoldPieces > 0 {
			updated, tx, basis, err := stock.Commit(p, item.SoldPieces)
			if err != nil {
				return LockResult{}, err
			}
			tx.RefID = s.ID
			tx.Actor = actor.Name()
			tx.At = now
			txs = append(txs, tx)
			working[p.ID] = updated
			touched = append(touched, p.ID)
			cost = basis
		}
		lineProfit := item.Price.Sub(cost)
		next.Items[i].UnitCostAtLock = &unitCost
		next.Items[i].Profit = &lineProfit
		profit = profit.Add(lineProfit)
	}

	if len(shortages) > 0 {
		return LockResult{}, &domain.ShortageError{Items: shortages}
	}

	next.Status = domain.SaleLocked
	next.Profit = &profit
	next.LockedBy = actor.Name()
	lockedAt := now
	next.LockedAt = &lockedAt
	next.UpdatedAt = now

	updated := make([]domain.Product, 0, len(touched))
	for _, id := range touched {
		p := working[id]
		p.UpdatedAt = now
		updated = append(updated, p)
	}
	return LockResult{Sale: next, Products: updated, Transactions: txs}, nil
}
