package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"distledger/internal/cache"
	"distledger/internal/domain"
	"distledger/internal/lock"
	"distledger/internal/logging"
	"distledger/internal/stock"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

const dateLayout = "2006-01-02"

type Config struct {
	SummaryTTL time.Duration
	Location   *time.Location
}

type Service struct {
	repo       store.Repository
	locker     lock.Locker
	summaries  cache.SummaryCache
	logger     *logrus.Logger
	summaryTTL time.Duration
	location   *time.Location
	now        func() time.Time

	// dueMu orders cache writes against invalidations; dueGen counts the
	// invalidations seen per group.
	dueMu  sync.Mutex
	dueGen map[string]uint64
}

func New(repo store.Repository, locker lock.Locker, summaries cache.SummaryCache, logger *logrus.Logger, cfg Config) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Service{
		repo:       repo,
		locker:     locker,
		summaries:  summaries,
		logger:     logger,
		summaryTTL: cfg.SummaryTTL,
		location:   cfg.Location,
		now:        func() time.Time { return time.Now().UTC() },
		dueGen:     make(map[string]uint64),
	}
}

func (s *Service) today() string {
	return s.now().In(s.location).Format(dateLayout)
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidQuantity, raw)
	}
	return t, nil
}

func (s *Service) dateOrToday(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.today(), nil
	}
	if _, err := parseDate(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func requireElevated(actor domain.Actor, action string) error {
	if !actor.Elevated() {
		return fmt.Errorf("%w: %s requires an administrator", domain.ErrForbidden, action)
	}
	return nil
}

func (s *Service) CreateGroup(ctx context.Context, actor domain.Actor, req domain.GroupCreateRequest) (domain.Group, error) {
	if err := requireElevated(actor, "creating a group"); err != nil {
		return domain.Group{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Group{}, fmt.Errorf("%w: group name is required", domain.ErrInvalidQuantity)
	}

	created, err := s.repo.CreateGroup(ctx, domain.Group{
		ID:        xid.New("grp"),
		Name:      name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Group{}, err
	}
	s.logger.WithFields(logrus.Fields{"module": "service", "group_id": created.ID, "actor": actor.Name()}).Info("group created")
	return *created, nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	return *group, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return s.repo.ListGroups(ctx)
}

// DeleteGroup removes the group and everything it owns. The stock
// transaction log and history stay behind as the audit trail.
func (s *Service) DeleteGroup(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireElevated(actor, "deleting a group"); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, lock.GroupKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, domain.HistoryEntry{
		GroupID:     id,
		Action:      domain.HistoryDeleted,
		Description: fmt.Sprintf("Deleted group %s", group.Name),
		Actor:       actor.Name(),
	})
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, actor domain.Actor, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireElevated(actor, "creating a product"); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", domain.ErrInvalidQuantity)
	}
	qtyType, err := units.ParseType(req.QuantityType)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", domain.ErrInvalidQuantity, err)
	}
	if qtyType != units.Pieces && req.PiecesPerUnit < 1 {
		return domain.Product{}, fmt.Errorf("%w: pieces per unit must be at least 1 for %s", domain.ErrInvalidQuantity, qtyType)
	}
	if req.InitialWhole < 0 || req.InitialPieces < 0 || req.AvgUnitCost.IsNegative() || req.SellPricePerUnit.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: stock, cost and price must not be negative", domain.ErrInvalidQuantity)
	}
	if req.WeightValue != nil && req.WeightValue.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: weight must not be negative", domain.ErrInvalidQuantity)
	}
	if _, err := s.repo.GetGroup(ctx, req.GroupID); err != nil {
		return domain.Product{}, err
	}

	ppu := units.PiecesPerUnit(qtyType, req.PiecesPerUnit)
	whole, pieces := units.Normalize(req.InitialWhole, req.InitialPieces, ppu)
	now := s.now()
	product := domain.Product{
		ID:               xid.New("prd"),
		GroupID:          req.GroupID,
		Name:             name,
		WeightValue:      req.WeightValue,
		WeightUnit:       strings.TrimSpace(req.WeightUnit),
		QuantityType:     qtyType,
		PiecesPerUnit:    ppu,
		WholeUnits:       whole,
		ExtraPieces:      pieces,
		AvgUnitCost:      req.AvgUnitCost,
		SellPricePerUnit: req.SellPricePerUnit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var initial *domain.StockTransaction
	if total := product.TotalPieces(); total > 0 {
		initial = &domain.StockTransaction{
			ID:               xid.New("stx"),
			GroupID:          product.GroupID,
			ProductName:      product.DisplayName(),
			Kind:             domain.TxKindAdd,
			Reason:           domain.ReasonInitial,
			DeltaPieces:      total,
			TotalPrice:       stock.CostOf(product, total),
			AvgUnitCostAfter: product.AvgUnitCost,
			StockAfter:       total,
			Actor:            actor.Name(),
			At:               now,
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initial)
	if err != nil {
		return domain.Product{}, err
	}
	s.record(ctx, domain.HistoryEntry{
		GroupID:     created.GroupID,
		ProductID:   created.ID,
		ProductName: created.DisplayName(),
		Action:      domain.HistoryCreated,
		Description: fmt.Sprintf("Created %s with %s", created.DisplayName(), units.Format(created.QuantityType, created.Stock())),
		Actor:       actor.Name(),
	})
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, groupID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, groupID)
}

// GetStockSnapshot lists the group's products with their derived prices and
// the value of stock held at average cost.
func (s *Service) GetStockSnapshot(ctx context.Context, groupID string) (domain.StockSnapshot, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.StockSnapshot{}, err
	}
	products, err := s.repo.ListProducts(ctx, groupID)
	if err != nil {
		return domain.StockSnapshot{}, err
	}
	snapshot := domain.StockSnapshot{
		GroupID:    groupID,
		Items:      make([]domain.StockItem, 0, len(products)),
		TotalValue: decimal.Zero,
	}
	for _, p := range products {
		item := p.View()
		snapshot.Items = append(snapshot.Items, item)
		snapshot.TotalValue = snapshot.TotalValue.Add(item.StockValue)
	}
	return snapshot, nil
}

func (s *Service) AddStock(ctx context.Context, actor domain.Actor, productID string, req domain.StockAddRequest) (domain.Product, domain.StockTransaction, error) {
	if err := requireElevated(actor, "adding stock"); err != nil {
		return domain.Product{}, domain.StockTransaction{}, err
	}
	if req.SellPricePerUnit != nil && req.SellPricePerUnit.IsNegative() {
		return domain.Product{}, domain.StockTransaction{}, fmt.Errorf("%w: sell price must not be negative", domain.ErrInvalidQuantity)
	}
	qty := units.Qty{Whole: req.Whole, Pieces: req.Pieces}

	return s.applyStock(ctx, actor, productID, domain.HistoryAdded, "Added", func(current domain.Product) (domain.Product, domain.StockTransaction, error) {
		next, tx, err := stock.Add(current, qty, req.TotalCost, domain.ReasonRestock)
		if err != nil {
			return current, tx, err
		}
		if req.SellPricePerUnit != nil {
			next.SellPricePerUnit = *req.SellPricePerUnit
		}
		return next, tx, nil
	})
}

func (s *Service) WithdrawStock(ctx context.Context, actor domain.Actor, productID string, req domain.StockWithdrawRequest) (domain.Product, domain.StockTransaction, error) {
	if err := requireElevated(actor, "withdrawing stock"); err != nil {
		return domain.Product{}, domain.StockTransaction{}, err
	}
	qty := units.Qty{Whole: req.Whole, Pieces: req.Pieces}

	return s.applyStock(ctx, actor, productID, domain.HistoryWithdrawn, "Withdrew", func(current domain.Product) (domain.Product, domain.StockTransaction, error) {
		return stock.Withdraw(current, qty, req.TotalValue, domain.ReasonWithdrawal)
	})
}

func (s *Service) applyStock(ctx context.Context, actor domain.Actor, productID string, action string, verb string, fn store.StockFunc) (domain.Product, domain.StockTransaction, error) {
	unlock, err := s.locker.Lock(ctx, lock.ProductKey(productID))
	if err != nil {
		return domain.Product{}, domain.StockTransaction{}, err
	}
	defer unlock()

	now := s.now()
	product, tx, err := s.repo.ApplyStock(ctx, productID, func(current domain.Product) (domain.Product, domain.StockTransaction, error) {
		next, tx, err := fn(current)
		if err != nil {
			return current, tx, err
		}
		next.UpdatedAt = now
		tx.ID = xid.New("stx")
		tx.Actor = actor.Name()
		tx.At = now
		return next, tx, nil
	})
	if err != nil {
		return domain.Product{}, domain.StockTransaction{}, err
	}

	moved := units.FromTotal(tx.DeltaPieces, product.UnitSize())
	s.record(ctx, domain.HistoryEntry{
		GroupID:     product.GroupID,
		ProductID:   product.ID,
		ProductName: product.DisplayName(),
		Action:      action,
		Description: fmt.Sprintf("%s %s of %s", verb, units.Format(product.QuantityType, moved), product.DisplayName()),
		Actor:       actor.Name(),
	})
	s.logger.WithFields(logrus.Fields{
		"module":       "service",
		"product_id":   product.ID,
		"reason":       tx.Reason,
		"delta_pieces": tx.DeltaPieces,
		"stock_after":  tx.StockAfter,
	}).Info("stock updated")
	return *product, *tx, nil
}

func (s *Service) DeleteProduct(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireElevated(actor, "deleting a product"); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, lock.ProductKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	deleted, err := s.repo.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}
	s.record(ctx, domain.HistoryEntry{
		GroupID:     deleted.GroupID,
		ProductID:   deleted.ID,
		ProductName: deleted.DisplayName(),
		Action:      domain.HistoryDeleted,
		Description: fmt.Sprintf("Deleted %s", deleted.DisplayName()),
		Actor:       actor.Name(),
	})
	return nil
}

// GetHistory merges the stock transaction log with lifecycle entries in
// chronological order. limit bounds each source, not the merged result.
func (s *Service) GetHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryItem, error) {
	txs, err := s.repo.ListStockTransactions(ctx, groupID, limit)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, groupID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]domain.HistoryItem, 0, len(txs)+len(entries))
	for i := range txs {
		items = append(items, domain.HistoryItem{At: txs[i].At, Transaction: &txs[i]})
	}
	for i := range entries {
		items = append(items, domain.HistoryItem{At: entries[i].At, Entry: &entries[i]})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].At.Equal(items[j].At) {
			return items[i].Transaction != nil && items[j].Transaction == nil
		}
		return items[i].At.Before(items[j].At)
	})
	return items, nil
}

// record writes a history entry. Failure is logged and does not fail the
// operation that produced it.
func (s *Service) record(ctx context.Context, entry domain.HistoryEntry) {
	entry.ID = xid.New("hst")
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	if err := s.repo.CreateHistory(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"module":   "history",
			"group_id": entry.GroupID,
			"action":   entry.Action,
		}).WithError(err).Warn("failed to write history entry")
	}
}

func (s *Service) invalidate(ctx context.Context, groupID string) {
	s.dueMu.Lock()
	defer s.dueMu.Unlock()
	s.dueGen[groupID]++
	if err := s.summaries.Delete(ctx, groupID); err != nil {
		s.logger.WithFields(logrus.Fields{"module": "cache", "group_id": groupID}).WithError(err).Warn("failed to invalidate due summary")
	}
}

func (s *Service) dueGeneration(groupID string) uint64 {
	s.dueMu.Lock()
	defer s.dueMu.Unlock()
	return s.dueGen[groupID]
}

// cacheDue stores a computed summary unless the group was invalidated after
// the computation started.
func (s *Service) cacheDue(ctx context.Context, due domain.GroupDue, gen uint64) {
	s.dueMu.Lock()
	defer s.dueMu.Unlock()
	if s.dueGen[due.GroupID] != gen {
		return
	}
	if err := s.summaries.Set(ctx, due.GroupID, &due, s.summaryTTL); err != nil {
		s.logger.WithFields(logrus.Fields{"module": "cache", "group_id": due.GroupID}).WithError(err).Warn("due summary cache write failed")
	}
}

func (s *Service) logFailure(operation string, fields logrus.Fields, err error) {
	logging.LogError(s.logger, "service", operation, fields, err)
}
