package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"distledger/internal/debt"
	"distledger/internal/domain"
	"distledger/internal/lock"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

func (s *Service) payment(actor domain.Actor, groupID string, kind string, refID string, amount decimal.Decimal, date string) domain.GroupPayment {
	return domain.GroupPayment{
		ID:      xid.New("pay"),
		GroupID: groupID,
		Kind:    kind,
		Amount:  amount,
		RefID:   refID,
		Date:    date,
		Actor:   actor.Name(),
		At:      s.now(),
	}
}

// AddRemark opens a standalone remark on the group ledger.
func (s *Service) AddRemark(ctx context.Context, actor domain.Actor, groupID string, req domain.RemarkCreateRequest) (domain.Remark, error) {
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return domain.Remark{}, fmt.Errorf("%w: remark comment is required", domain.ErrInvalidQuantity)
	}
	if !req.Amount.IsPositive() {
		return domain.Remark{}, fmt.Errorf("%w: remark amount must be positive", domain.ErrInvalidQuantity)
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.Remark{}, err
	}

	created, err := s.repo.CreateRemark(ctx, domain.Remark{
		ID:         xid.New("rmk"),
		GroupID:    groupID,
		Date:       date,
		Comment:    comment,
		Amount:     req.Amount,
		PaidAmount: decimal.Zero,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.Remark{}, err
	}
	s.invalidate(ctx, groupID)
	s.logger.WithFields(logrus.Fields{"module": "service", "group_id": groupID, "remark_id": created.ID, "actor": actor.Name()}).Info("remark added")
	return *created, nil
}

func (s *Service) PayRemark(ctx context.Context, actor domain.Actor, remarkID string, req domain.PaymentRequest) (domain.Remark, error) {
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.Remark{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.RemarkKey(remarkID))
	if err != nil {
		return domain.Remark{}, err
	}
	defer unlock()

	paid, err := s.repo.PayRemark(ctx, remarkID, func(current domain.Remark, saleStatus string) (domain.Remark, domain.GroupPayment, error) {
		// Resubmitting a sale replaces its remarks, so they only take
		// payments once the sale is locked.
		if current.SaleID != "" && saleStatus != domain.SaleLocked {
			return current, domain.GroupPayment{}, fmt.Errorf("%w: remark %s belongs to sale %s, which is not locked", domain.ErrInvalidStatus, current.ID, current.SaleID)
		}
		next, err := debt.PayRemark(current, req.Amount)
		if err != nil {
			return current, domain.GroupPayment{}, err
		}
		return next, s.payment(actor, current.GroupID, domain.PaymentRemark, current.ID, req.Amount, date), nil
	})
	if err != nil {
		return domain.Remark{}, err
	}
	s.invalidate(ctx, paid.GroupID)
	return *paid, nil
}

// PayCommission records an unattributed payment against the group's
// commission balance.
func (s *Service) PayCommission(ctx context.Context, actor domain.Actor, groupID string, req domain.PaymentRequest) (domain.GroupPayment, error) {
	if err := debt.CheckCommissionPayment(req.Amount); err != nil {
		return domain.GroupPayment{}, err
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.GroupPayment{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.GroupKey(groupID))
	if err != nil {
		return domain.GroupPayment{}, err
	}
	defer unlock()

	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.GroupPayment{}, err
	}
	payment := s.payment(actor, groupID, domain.PaymentCommission, "", req.Amount, date)
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return domain.GroupPayment{}, err
	}
	s.invalidate(ctx, groupID)
	return payment, nil
}

// TakeProduct withdraws stock on credit to the group.
func (s *Service) TakeProduct(ctx context.Context, actor domain.Actor, req domain.ProductTakenRequest) (domain.ProductTaken, error) {
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.ProductTaken{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.ProductKey(req.ProductID))
	if err != nil {
		return domain.ProductTaken{}, err
	}
	defer unlock()

	now := s.now()
	qty := units.Qty{Whole: req.Whole, Pieces: req.Pieces}
	record, err := s.repo.CreateProductTaken(ctx, req.ProductID, func(current domain.Product) (domain.ProductTaken, domain.Product, domain.StockTransaction, error) {
		if current.GroupID != req.GroupID {
			return domain.ProductTaken{}, current, domain.StockTransaction{}, fmt.Errorf("%w: product %s in group %s", domain.ErrNotFound, current.ID, req.GroupID)
		}
		record, product, tx, err := debt.Take(current, qty, req.TotalPrice)
		if err != nil {
			return domain.ProductTaken{}, current, domain.StockTransaction{}, err
		}
		record.ID = xid.New("ptk")
		record.Date = date
		record.TakenBy = actor.Name()
		record.CreatedAt = now
		product.UpdatedAt = now
		tx.ID = xid.New("stx")
		tx.RefID = record.ID
		tx.Actor = actor.Name()
		tx.At = now
		return record, product, tx, nil
	})
	if err != nil {
		return domain.ProductTaken{}, err
	}

	s.record(ctx, domain.HistoryEntry{
		GroupID:     record.GroupID,
		ProductID:   record.ProductID,
		ProductName: record.ProductName,
		Action:      domain.HistoryTaken,
		Description: fmt.Sprintf("Took %s of %s on credit for %s", units.Format(record.QuantityType, units.Qty{Whole: record.Whole, Pieces: record.Pieces}), record.ProductName, record.TotalPrice.StringFixed(2)),
		Actor:       actor.Name(),
		At:          now,
	})
	s.invalidate(ctx, record.GroupID)
	return *record, nil
}

func (s *Service) PayProductTaken(ctx context.Context, actor domain.Actor, recordID string, req domain.PaymentRequest) (domain.ProductTaken, error) {
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.ProductTaken{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.TakenKey(recordID))
	if err != nil {
		return domain.ProductTaken{}, err
	}
	defer unlock()

	paid, err := s.repo.PayProductTaken(ctx, recordID, func(current domain.ProductTaken) (domain.ProductTaken, domain.GroupPayment, error) {
		next, err := debt.PayTaken(current, req.Amount)
		if err != nil {
			return current, domain.GroupPayment{}, err
		}
		return next, s.payment(actor, current.GroupID, domain.PaymentProductTaken, current.ID, req.Amount, date), nil
	})
	if err != nil {
		return domain.ProductTaken{}, err
	}
	s.invalidate(ctx, paid.GroupID)
	return *paid, nil
}

// ReturnProductTaken gives part of a credit record back to stock.
func (s *Service) ReturnProductTaken(ctx context.Context, actor domain.Actor, recordID string, req domain.ProductTakenReturnRequest) (domain.ProductTaken, error) {
	existing, err := s.repo.GetProductTaken(ctx, recordID)
	if err != nil {
		return domain.ProductTaken{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.TakenKey(recordID), lock.ProductKey(existing.ProductID))
	if err != nil {
		return domain.ProductTaken{}, err
	}
	defer unlock()

	now := s.now()
	qty := units.Qty{Whole: req.Whole, Pieces: req.Pieces}
	var returnedPieces int
	updated, err := s.repo.ReturnProductTaken(ctx, recordID, func(current domain.ProductTaken, product domain.Product) (domain.ProductTaken, domain.ProductTakenReturn, store.Mutation, error) {
		result, err := debt.ReturnTaken(current, product, qty)
		if err != nil {
			return current, domain.ProductTakenReturn{}, store.Mutation{}, err
		}
		result.Return.ID = xid.New("ptr")
		result.Return.Actor = actor.Name()
		result.Return.At = now
		result.Product.UpdatedAt = now
		result.Tx.ID = xid.New("stx")
		result.Tx.Actor = actor.Name()
		result.Tx.At = now
		returnedPieces = result.Return.ReturnedPieces
		return result.Record, result.Return, store.Mutation{
			Products:     []domain.Product{result.Product},
			Transactions: []domain.StockTransaction{result.Tx},
		}, nil
	})
	if err != nil {
		return domain.ProductTaken{}, err
	}

	ppu := units.PiecesPerUnit(updated.QuantityType, updated.PiecesPerUnit)
	s.record(ctx, domain.HistoryEntry{
		GroupID:     updated.GroupID,
		ProductID:   updated.ProductID,
		ProductName: updated.ProductName,
		Action:      domain.HistoryReturned,
		Description: fmt.Sprintf("Returned %s of %s from credit", units.Format(updated.QuantityType, units.FromTotal(returnedPieces, ppu)), updated.ProductName),
		Actor:       actor.Name(),
		At:          now,
	})
	s.invalidate(ctx, updated.GroupID)
	return *updated, nil
}

func (s *Service) GetCommissionLedger(ctx context.Context, groupID string) (domain.CommissionLedger, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.CommissionLedger{}, err
	}
	return s.commissionLedger(ctx, groupID)
}

func (s *Service) commissionLedger(ctx context.Context, groupID string) (domain.CommissionLedger, error) {
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{GroupID: groupID, Status: domain.SaleLocked})
	if err != nil {
		return domain.CommissionLedger{}, err
	}
	payments, err := s.repo.ListPayments(ctx, groupID)
	if err != nil {
		return domain.CommissionLedger{}, err
	}
	return debt.Commission(groupID, sales, payments), nil
}

func (s *Service) GetRemarkLedger(ctx context.Context, groupID string) (domain.RemarkLedger, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.RemarkLedger{}, err
	}
	return s.remarkLedger(ctx, groupID)
}

func (s *Service) remarkLedger(ctx context.Context, groupID string) (domain.RemarkLedger, error) {
	remarks, err := s.repo.ListRemarks(ctx, groupID)
	if err != nil {
		return domain.RemarkLedger{}, err
	}
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{GroupID: groupID, Status: domain.SaleLocked})
	if err != nil {
		return domain.RemarkLedger{}, err
	}
	locked := make(map[string]bool, len(sales))
	for _, sale := range sales {
		locked[sale.ID] = true
	}
	return debt.Remarks(groupID, remarks, locked), nil
}

func (s *Service) GetProductTakenLedger(ctx context.Context, groupID string) (domain.ProductTakenLedger, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.ProductTakenLedger{}, err
	}
	return s.productTakenLedger(ctx, groupID)
}

func (s *Service) productTakenLedger(ctx context.Context, groupID string) (domain.ProductTakenLedger, error) {
	records, err := s.repo.ListProductTaken(ctx, groupID)
	if err != nil {
		return domain.ProductTakenLedger{}, err
	}
	returns, err := s.repo.ListProductTakenReturns(ctx, groupID)
	if err != nil {
		return domain.ProductTakenLedger{}, err
	}
	return debt.ProductTaken(groupID, records, returns), nil
}

// GetGroupDue reads through the summary cache. Cache failures fall back to
// recomputing from the ledgers.
func (s *Service) GetGroupDue(ctx context.Context, groupID string) (domain.GroupDue, error) {
	if cached, ok, err := s.summaries.Get(ctx, groupID); err != nil {
		s.logger.WithFields(logrus.Fields{"module": "cache", "group_id": groupID}).WithError(err).Warn("due summary cache read failed")
	} else if ok && cached != nil {
		return *cached, nil
	}

	gen := s.dueGeneration(groupID)
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return domain.GroupDue{}, err
	}
	due, err := s.computeDue(ctx, *group)
	if err != nil {
		return domain.GroupDue{}, err
	}
	s.cacheDue(ctx, due, gen)
	return due, nil
}

func (s *Service) computeDue(ctx context.Context, group domain.Group) (domain.GroupDue, error) {
	commission, err := s.commissionLedger(ctx, group.ID)
	if err != nil {
		return domain.GroupDue{}, err
	}
	remarks, err := s.remarkLedger(ctx, group.ID)
	if err != nil {
		return domain.GroupDue{}, err
	}
	taken, err := s.productTakenLedger(ctx, group.ID)
	if err != nil {
		return domain.GroupDue{}, err
	}
	return debt.Total(group, commission, remarks, taken), nil
}

func (s *Service) TotalDue(ctx context.Context) (domain.DueSummary, error) {
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return domain.DueSummary{}, err
	}
	summary := domain.DueSummary{Groups: make([]domain.GroupDue, 0, len(groups)), Total: decimal.Zero}
	for _, group := range groups {
		due, err := s.GetGroupDue(ctx, group.ID)
		if err != nil {
			return domain.DueSummary{}, err
		}
		summary.Groups = append(summary.Groups, due)
		summary.Total = summary.Total.Add(due.Total)
	}
	return summary, nil
}
