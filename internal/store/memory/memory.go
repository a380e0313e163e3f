package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	groups          map[string]domain.Group
	groupNames      map[string]string
	products        map[string]domain.Product
	stockTxs        []domain.StockTransaction
	history         []domain.HistoryEntry
	sales           map[string]domain.Sale
	saleByKey       map[string]string
	remarks         map[string]domain.Remark
	payments        []domain.GroupPayment
	taken           map[string]domain.ProductTaken
	takenReturns    []domain.ProductTakenReturn
	expenses        []domain.Expense
	targets         map[string]domain.MonthlyTarget
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		groups:          make(map[string]domain.Group),
		groupNames:      make(map[string]string),
		products:        make(map[string]domain.Product),
		stockTxs:        make([]domain.StockTransaction, 0, 128),
		history:         make([]domain.HistoryEntry, 0, 128),
		sales:           make(map[string]domain.Sale),
		saleByKey:       make(map[string]string),
		remarks:         make(map[string]domain.Remark),
		taken:           make(map[string]domain.ProductTaken),
		targets:         make(map[string]domain.MonthlyTarget),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_REP_PASSWORD, with dev defaults and a warning
// when unset. Production runs on PostgreSQL and never sees these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	repPwd := envOr("SEED_REP_PASSWORD", "rep12345")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_REP_PASSWORD") == "" {
		logrus.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_REP_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"rep", repPwd, domain.RoleRepresentative},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, one group and a few products.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	group := domain.Group{ID: "grp-demo", Name: "Demo Route", CreatedAt: now}
	s.groups[group.ID] = group
	s.groupNames[nameKey(group.Name)] = group.ID

	weight := decimal.NewFromInt(5)
	for _, p := range []domain.Product{
		{ID: "prd-demo-rice", Name: "Rice", WeightValue: &weight, WeightUnit: "kg", QuantityType: units.Cartoon, PiecesPerUnit: 12, WholeUnits: 20, AvgUnitCost: decimal.NewFromInt(10), SellPricePerUnit: decimal.NewFromInt(144)},
		{ID: "prd-demo-soap", Name: "Soap", QuantityType: units.Dozen, PiecesPerUnit: 12, WholeUnits: 10, AvgUnitCost: decimal.NewFromInt(3), SellPricePerUnit: decimal.NewFromInt(48)},
		{ID: "prd-demo-chips", Name: "Chips", QuantityType: units.Poly, PiecesPerUnit: 24, WholeUnits: 8, AvgUnitCost: decimal.NewFromInt(1), SellPricePerUnit: decimal.NewFromInt(36)},
	} {
		p.GroupID = group.ID
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func saleKey(groupID string, date string) string {
	return groupID + "|" + date
}

func (s *Store) CreateGroup(_ context.Context, group domain.Group) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groupNames[nameKey(group.Name)]; exists {
		return nil, fmt.Errorf("%w: group %q already exists", domain.ErrConflict, group.Name)
	}
	if group.ID == "" {
		group.ID = xid.New("grp")
	}
	group.StockValue = decimal.Zero
	s.groups[group.ID] = group
	s.groupNames[nameKey(group.Name)] = group.ID
	created := group
	return &created, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groups[id]
	if !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	group.StockValue = s.stockValueLocked(id)
	return &group, nil
}

func (s *Store) ListGroups(_ context.Context) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		g.StockValue = s.stockValueLocked(g.ID)
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b domain.Group) int {
		return strings.Compare(a.Name, b.Name)
	})
	return groups, nil
}

func (s *Store) stockValueLocked(groupID string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.products {
		if p.GroupID == groupID {
			total = total.Add(p.StockValue())
		}
	}
	return total.Round(2)
}

// DeleteGroup cascades to everything the group owns. Stock transactions and
// history stay behind with their snapshotted names.
func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[id]
	if !exists {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	delete(s.groups, id)
	delete(s.groupNames, nameKey(group.Name))

	for pid, p := range s.products {
		if p.GroupID == id {
			delete(s.products, pid)
		}
	}
	for sid, sale := range s.sales {
		if sale.GroupID == id {
			delete(s.sales, sid)
			delete(s.saleByKey, saleKey(sale.GroupID, sale.Date))
		}
	}
	for rid, r := range s.remarks {
		if r.GroupID == id {
			delete(s.remarks, rid)
		}
	}
	for tid, r := range s.taken {
		if r.GroupID == id {
			delete(s.taken, tid)
		}
	}
	s.payments = slices.DeleteFunc(s.payments, func(p domain.GroupPayment) bool { return p.GroupID == id })
	s.takenReturns = slices.DeleteFunc(s.takenReturns, func(r domain.ProductTakenReturn) bool { return r.GroupID == id })
	for key, t := range s.targets {
		if t.GroupID == id {
			delete(s.targets, key)
		}
	}
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initial *domain.StockTransaction) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[product.GroupID]; !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, product.GroupID)
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", domain.ErrConflict, product.ID)
	}
	s.products[product.ID] = product
	if initial != nil {
		tx := *initial
		tx.ProductID = product.ID
		s.appendTxLocked(tx)
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, groupID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.groups[groupID]; !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	products := s.groupProductsLocked(groupID)
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) groupProductsLocked(groupID string) []domain.Product {
	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.GroupID == groupID {
			products = append(products, p)
		}
	}
	return products
}

func (s *Store) DeleteProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	delete(s.products, id)
	return &product, nil
}

func (s *Store) ApplyStock(_ context.Context, productID string, fn store.StockFunc) (*domain.Product, *domain.StockTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[productID]
	if !exists {
		return nil, nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	next, tx, err := fn(current)
	if err != nil {
		return nil, nil, err
	}
	next.ID = current.ID
	next.GroupID = current.GroupID
	s.products[productID] = next
	tx = s.appendTxLocked(tx)
	return &next, &tx, nil
}

func (s *Store) appendTxLocked(tx domain.StockTransaction) domain.StockTransaction {
	if tx.ID == "" {
		tx.ID = xid.New("stx")
	}
	s.stockTxs = append(s.stockTxs, tx)
	return tx
}

func (s *Store) applyMutationLocked(m store.Mutation) {
	for _, p := range m.Products {
		s.products[p.ID] = p
	}
	for _, tx := range m.Transactions {
		s.appendTxLocked(tx)
	}
}

func (s *Store) ListStockTransactions(_ context.Context, groupID string, limit int) ([]domain.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockTransaction, 0)
	for i := len(s.stockTxs) - 1; i >= 0; i-- {
		if s.stockTxs[i].GroupID != groupID {
			continue
		}
		result = append(result, s.stockTxs[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) SaveSale(_ context.Context, groupID string, date string, fn store.SaleFunc) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[groupID]; !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}

	var existing *domain.Sale
	if id, ok := s.saleByKey[saleKey(groupID, date)]; ok {
		current := s.saleLocked(id)
		existing = &current
	}

	products := make(map[string]domain.Product)
	for _, p := range s.groupProductsLocked(groupID) {
		products[p.ID] = p
	}

	next, err := fn(existing, products)
	if err != nil {
		return nil, err
	}
	next.GroupID = groupID
	next.Date = date

	if existing != nil {
		for rid, r := range s.remarks {
			if r.SaleID == existing.ID {
				delete(s.remarks, rid)
			}
		}
	}
	for i := range next.Remarks {
		if next.Remarks[i].ID == "" {
			next.Remarks[i].ID = xid.New("rmk")
		}
		next.Remarks[i].SaleID = next.ID
		s.remarks[next.Remarks[i].ID] = next.Remarks[i]
	}
	s.putSaleLocked(next)
	saved := s.saleLocked(next.ID)
	return &saved, nil
}

func (s *Store) UpdateSale(_ context.Context, id string, fn func(current domain.Sale) (domain.Sale, error)) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
	}
	next, err := fn(s.saleLocked(id))
	if err != nil {
		return nil, err
	}
	s.putSaleLocked(next)
	saved := s.saleLocked(id)
	return &saved, nil
}

// LockSale hands the sale and a snapshot of all its products to fn, then
// commits the sale and every stock write together.
func (s *Store) LockSale(_ context.Context, id string, fn store.LockFunc) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
	}
	current := s.saleLocked(id)
	products := make(map[string]domain.Product, len(current.Items))
	for _, item := range current.Items {
		if p, ok := s.products[item.ProductID]; ok {
			products[p.ID] = p
		}
	}

	next, mutation, err := fn(current, products)
	if err != nil {
		return nil, err
	}
	s.applyMutationLocked(mutation)
	s.putSaleLocked(next)
	saved := s.saleLocked(id)
	return &saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.sales[id]; !exists {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
	}
	sale := s.saleLocked(id)
	return &sale, nil
}

func (s *Store) GetSaleByDate(_ context.Context, groupID string, date string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.saleByKey[saleKey(groupID, date)]
	if !ok {
		return nil, fmt.Errorf("%w: no sale for %s on %s", domain.ErrNotFound, groupID, date)
	}
	sale := s.saleLocked(id)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0)
	for id, sale := range s.sales {
		if filter.GroupID != "" && sale.GroupID != filter.GroupID {
			continue
		}
		if filter.From != "" && sale.Date < filter.From {
			continue
		}
		if filter.To != "" && sale.Date > filter.To {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		sales = append(sales, s.saleLocked(id))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Date == b.Date {
			return strings.Compare(a.GroupID, b.GroupID)
		}
		return strings.Compare(a.Date, b.Date)
	})
	return sales, nil
}

func (s *Store) putSaleLocked(sale domain.Sale) {
	stored := cloneSale(sale)
	stored.Remarks = nil
	s.sales[sale.ID] = stored
	s.saleByKey[saleKey(sale.GroupID, sale.Date)] = sale.ID
}

// saleLocked returns a copy of the sale with its remarks attached.
func (s *Store) saleLocked(id string) domain.Sale {
	sale := cloneSale(s.sales[id])
	sale.Remarks = make([]domain.Remark, 0)
	for _, r := range s.remarks {
		if r.SaleID == id {
			sale.Remarks = append(sale.Remarks, r)
		}
	}
	sortRemarks(sale.Remarks)
	return sale
}

func (s *Store) CreateRemark(_ context.Context, remark domain.Remark) (*domain.Remark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[remark.GroupID]; !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, remark.GroupID)
	}
	if remark.ID == "" {
		remark.ID = xid.New("rmk")
	}
	s.remarks[remark.ID] = remark
	created := remark
	return &created, nil
}

func (s *Store) ListRemarks(_ context.Context, groupID string) ([]domain.Remark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	remarks := make([]domain.Remark, 0)
	for _, r := range s.remarks {
		if r.GroupID == groupID {
			remarks = append(remarks, r)
		}
	}
	sortRemarks(remarks)
	return remarks, nil
}

func (s *Store) PayRemark(_ context.Context, id string, fn store.RemarkPayFunc) (*domain.Remark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.remarks[id]
	if !exists {
		return nil, fmt.Errorf("%w: remark %s", domain.ErrNotFound, id)
	}
	saleStatus := ""
	if current.SaleID != "" {
		saleStatus = s.sales[current.SaleID].Status
	}
	next, payment, err := fn(current, saleStatus)
	if err != nil {
		return nil, err
	}
	s.remarks[id] = next
	s.appendPaymentLocked(payment)
	return &next, nil
}

func (s *Store) appendPaymentLocked(payment domain.GroupPayment) {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	s.payments = append(s.payments, payment)
}

func (s *Store) CreatePayment(_ context.Context, payment domain.GroupPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[payment.GroupID]; !exists {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, payment.GroupID)
	}
	s.appendPaymentLocked(payment)
	return nil
}

func (s *Store) ListPayments(_ context.Context, groupID string) ([]domain.GroupPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.GroupPayment, 0)
	for _, p := range s.payments {
		if p.GroupID == groupID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (s *Store) CreateProductTaken(_ context.Context, productID string, fn store.TakeFunc) (*domain.ProductTaken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[productID]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	record, product, tx, err := fn(current)
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		record.ID = xid.New("ptk")
	}
	tx.RefID = record.ID
	s.products[productID] = product
	s.appendTxLocked(tx)
	s.taken[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) GetProductTaken(_ context.Context, id string) (*domain.ProductTaken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.taken[id]
	if !exists {
		return nil, fmt.Errorf("%w: product taken record %s", domain.ErrNotFound, id)
	}
	return &record, nil
}

func (s *Store) ListProductTaken(_ context.Context, groupID string) ([]domain.ProductTaken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ProductTaken, 0)
	for _, r := range s.taken {
		if r.GroupID == groupID {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b domain.ProductTaken) int {
		if a.Date == b.Date {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return strings.Compare(a.Date, b.Date)
	})
	return records, nil
}

func (s *Store) PayProductTaken(_ context.Context, id string, fn store.TakenPayFunc) (*domain.ProductTaken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.taken[id]
	if !exists {
		return nil, fmt.Errorf("%w: product taken record %s", domain.ErrNotFound, id)
	}
	next, payment, err := fn(current)
	if err != nil {
		return nil, err
	}
	s.taken[id] = next
	s.appendPaymentLocked(payment)
	return &next, nil
}

func (s *Store) ReturnProductTaken(_ context.Context, id string, fn store.TakenReturnFunc) (*domain.ProductTaken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.taken[id]
	if !exists {
		return nil, fmt.Errorf("%w: product taken record %s", domain.ErrNotFound, id)
	}
	product, exists := s.products[current.ProductID]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, current.ProductID)
	}
	next, ret, mutation, err := fn(current, product)
	if err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("ptr")
	}
	s.taken[id] = next
	s.applyMutationLocked(mutation)
	s.takenReturns = append(s.takenReturns, ret)
	return &next, nil
}

func (s *Store) ListProductTakenReturns(_ context.Context, groupID string) ([]domain.ProductTakenReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.ProductTakenReturn, 0)
	for _, r := range s.takenReturns {
		if r.GroupID == groupID {
			returns = append(returns, r)
		}
	}
	return returns, nil
}

func (s *Store) CreateHistory(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("hst")
	}
	s.history = append(s.history, entry)
	return nil
}

func (s *Store) ListHistory(_ context.Context, groupID string, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HistoryEntry, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].GroupID != groupID {
			continue
		}
		result = append(result, s.history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, from string, to string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0)
	for _, e := range s.expenses {
		if from != "" && e.Date < from {
			continue
		}
		if to != "" && e.Date > to {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortStableFunc(expenses, func(a, b domain.Expense) int {
		return strings.Compare(a.Date, b.Date)
	})
	return expenses, nil
}

func (s *Store) UpsertTarget(_ context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[target.GroupID]; !exists {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, target.GroupID)
	}
	s.targets[target.GroupID+"|"+target.Month] = target
	saved := target
	return &saved, nil
}

func (s *Store) GetTarget(_ context.Context, groupID string, month string) (*domain.MonthlyTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, exists := s.targets[groupID+"|"+month]
	if !exists {
		return nil, fmt.Errorf("%w: no target for %s in %s", domain.ErrNotFound, groupID, month)
	}
	return &target, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrInvalidQuantity)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleRepresentative
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortRemarks(remarks []domain.Remark) {
	slices.SortFunc(remarks, func(a, b domain.Remark) int {
		if a.Date != b.Date {
			return strings.Compare(a.Date, b.Date)
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = append([]domain.LineItem(nil), src.Items...)
	dst.Remarks = append([]domain.Remark(nil), src.Remarks...)
	return dst
}
