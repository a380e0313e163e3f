package store

import (
	"context"
	"errors"

	"distledger/internal/domain"
)

// ErrDuplicateUser is returned by CreateUser for an existing username.
var ErrDuplicateUser = errors.New("username already exists")

// StockFunc computes the next product state and the transaction explaining
// it. It runs inside the store's atomic section; returning an error aborts
// the write.
type StockFunc func(current domain.Product) (domain.Product, domain.StockTransaction, error)

// SaleFunc builds the sale to persist for a (group, date) key. existing is nil
// when nothing has been submitted for that key. products is the group's
// current stock snapshot.
type SaleFunc func(existing *domain.Sale, products map[string]domain.Product) (domain.Sale, error)

// Mutation is a batch of stock writes committed together with the record
// that caused them.
type Mutation struct {
	Products     []domain.Product
	Transactions []domain.StockTransaction
}

type LockFunc func(current domain.Sale, products map[string]domain.Product) (domain.Sale, Mutation, error)

// RemarkPayFunc pays one remark. saleStatus is the status of the sale the
// remark was entered on, read in the same atomic section, or "" for a
// standalone remark.
type RemarkPayFunc func(current domain.Remark, saleStatus string) (domain.Remark, domain.GroupPayment, error)

type TakeFunc func(current domain.Product) (domain.ProductTaken, domain.Product, domain.StockTransaction, error)

type TakenPayFunc func(current domain.ProductTaken) (domain.ProductTaken, domain.GroupPayment, error)

type TakenReturnFunc func(current domain.ProductTaken, product domain.Product) (domain.ProductTaken, domain.ProductTakenReturn, Mutation, error)

// SaleFilter narrows ListSales. Empty fields match everything; dates are
// inclusive YYYY-MM-DD bounds.
type SaleFilter struct {
	GroupID string
	From    string
	To      string
	Status  string
}

type Repository interface {
	CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error)
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product domain.Product, initial *domain.StockTransaction) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, groupID string) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)
	ApplyStock(ctx context.Context, productID string, fn StockFunc) (*domain.Product, *domain.StockTransaction, error)
	ListStockTransactions(ctx context.Context, groupID string, limit int) ([]domain.StockTransaction, error)

	SaveSale(ctx context.Context, groupID string, date string, fn SaleFunc) (*domain.Sale, error)
	UpdateSale(ctx context.Context, id string, fn func(current domain.Sale) (domain.Sale, error)) (*domain.Sale, error)
	LockSale(ctx context.Context, id string, fn LockFunc) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByDate(ctx context.Context, groupID string, date string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	CreateRemark(ctx context.Context, remark domain.Remark) (*domain.Remark, error)
	ListRemarks(ctx context.Context, groupID string) ([]domain.Remark, error)
	PayRemark(ctx context.Context, id string, fn RemarkPayFunc) (*domain.Remark, error)

	CreatePayment(ctx context.Context, payment domain.GroupPayment) error
	ListPayments(ctx context.Context, groupID string) ([]domain.GroupPayment, error)

	CreateProductTaken(ctx context.Context, productID string, fn TakeFunc) (*domain.ProductTaken, error)
	GetProductTaken(ctx context.Context, id string) (*domain.ProductTaken, error)
	ListProductTaken(ctx context.Context, groupID string) ([]domain.ProductTaken, error)
	PayProductTaken(ctx context.Context, id string, fn TakenPayFunc) (*domain.ProductTaken, error)
	ReturnProductTaken(ctx context.Context, id string, fn TakenReturnFunc) (*domain.ProductTaken, error)
	ListProductTakenReturns(ctx context.Context, groupID string) ([]domain.ProductTakenReturn, error)

	CreateHistory(ctx context.Context, entry domain.HistoryEntry) error
	ListHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryEntry, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error)
	UpsertTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error)
	GetTarget(ctx context.Context, groupID string, month string) (*domain.MonthlyTarget, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
