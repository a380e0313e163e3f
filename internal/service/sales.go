package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"distledger/internal/domain"
	"distledger/internal/lock"
	"distledger/internal/sale"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

func normalizeSubmit(req domain.SaleSubmitRequest) (domain.SaleSubmitRequest, error) {
	req.GroupID = strings.TrimSpace(req.GroupID)
	req.Date = strings.TrimSpace(req.Date)
	if req.GroupID == "" {
		return req, fmt.Errorf("%w: group is required", domain.ErrInvalidQuantity)
	}
	if _, err := parseDate(req.Date); err != nil {
		return req, err
	}
	return req, nil
}

// PreviewSale reconciles a cart against current stock without persisting
// anything. Clients use it to validate line edits while the sale is a draft.
func (s *Service) PreviewSale(ctx context.Context, actor domain.Actor, req domain.SaleSubmitRequest) (domain.Sale, error) {
	req, err := normalizeSubmit(req)
	if err != nil {
		return domain.Sale{}, err
	}
	products, err := s.repo.ListProducts(ctx, req.GroupID)
	if err != nil {
		return domain.Sale{}, err
	}
	return sale.Reconcile(actor, productMap(products), req)
}

// SubmitSale upserts the sale for (group, date). Representatives land in
// pending, administrators in completed.
func (s *Service) SubmitSale(ctx context.Context, actor domain.Actor, req domain.SaleSubmitRequest) (domain.Sale, error) {
	req, err := normalizeSubmit(req)
	if err != nil {
		return domain.Sale{}, err
	}

	unlock, err := s.locker.Lock(ctx, lock.SaleKey(req.GroupID, req.Date))
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	now := s.now()
	saved, err := s.repo.SaveSale(ctx, req.GroupID, req.Date, func(existing *domain.Sale, products map[string]domain.Product) (domain.Sale, error) {
		if existing != nil && existing.Locked() {
			return domain.Sale{}, fmt.Errorf("%w: %s on %s", domain.ErrSaleLocked, existing.GroupID, existing.Date)
		}
		draft, err := sale.Reconcile(actor, products, req)
		if err != nil {
			return domain.Sale{}, err
		}
		for i := range draft.Remarks {
			draft.Remarks[i].CreatedAt = now
		}
		return sale.Submit(existing, draft, actor, xid.New("sale"), now)
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"module":   "service",
		"sale_id":  saved.ID,
		"group_id": saved.GroupID,
		"date":     saved.Date,
		"status":   saved.Status,
		"actor":    actor.Name(),
	}).Info("sale submitted")
	return *saved, nil
}

func (s *Service) ConfirmSale(ctx context.Context, actor domain.Actor, id string) (domain.Sale, error) {
	if err := requireElevated(actor, "confirming a sale"); err != nil {
		return domain.Sale{}, err
	}
	current, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.SaleKey(current.GroupID, current.Date))
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	now := s.now()
	saved, err := s.repo.UpdateSale(ctx, id, func(current domain.Sale) (domain.Sale, error) {
		return sale.Confirm(current, actor, now)
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return *saved, nil
}

// LockSale commits every line of the sale to stock in one step. On a
// shortage nothing is committed and the sale keeps its status.
func (s *Service) LockSale(ctx context.Context, actor domain.Actor, id string) (domain.Sale, error) {
	if err := requireElevated(actor, "locking a sale"); err != nil {
		return domain.Sale{}, err
	}
	current, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}

	unlockSale, err := s.locker.Lock(ctx, lock.SaleKey(current.GroupID, current.Date))
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlockSale()

	// Items are stable while the sale key is held; re-read before taking the
	// product keys.
	current, err = s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	keys := make([]string, 0, len(current.Items))
	for _, item := range current.Items {
		keys = append(keys, lock.ProductKey(item.ProductID))
	}
	unlockProducts, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlockProducts()

	now := s.now()
	locked, err := s.repo.LockSale(ctx, id, func(current domain.Sale, products map[string]domain.Product) (domain.Sale, store.Mutation, error) {
		result, err := sale.Lock(current, products, actor, now)
		if err != nil {
			return current, store.Mutation{}, err
		}
		for i := range result.Transactions {
			result.Transactions[i].ID = xid.New("stx")
		}
		return result.Sale, store.Mutation{Products: result.Products, Transactions: result.Transactions}, nil
	})
	if err != nil {
		var shortage *domain.ShortageError
		if errors.As(err, &shortage) {
			s.logFailure("lock_sale", logrus.Fields{"sale_id": id, "short_products": len(shortage.Items)}, err)
		}
		return domain.Sale{}, err
	}

	for _, item := range locked.Items {
		if item.SoldPieces == 0 {
			continue
		}
		s.record(ctx, domain.HistoryEntry{
			GroupID:     locked.GroupID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Action:      domain.HistorySold,
			Description: fmt.Sprintf("Sold %s of %s on %s", units.Format(item.QuantityType, item.Sold), item.ProductName, locked.Date),
			Actor:       actor.Name(),
			At:          now,
		})
	}
	s.invalidate(ctx, locked.GroupID)
	s.logger.WithFields(logrus.Fields{
		"module":   "service",
		"sale_id":  locked.ID,
		"group_id": locked.GroupID,
		"date":     locked.Date,
		"actor":    actor.Name(),
	}).Info("sale locked")
	return *locked, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	found, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *found, nil
}

func (s *Service) GetSaleForDate(ctx context.Context, groupID string, date string) (domain.Sale, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return domain.Sale{}, err
	}
	found, err := s.repo.GetSaleByDate(ctx, groupID, date)
	if err != nil {
		return domain.Sale{}, err
	}
	return *found, nil
}

func (s *Service) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	if filter.GroupID != "" {
		if _, err := s.repo.GetGroup(ctx, filter.GroupID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListSales(ctx, filter)
}

func productMap(products []domain.Product) map[string]domain.Product {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}
