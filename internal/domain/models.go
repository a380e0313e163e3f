package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"distledger/internal/units"
)

const (
	RoleAdmin          = "admin"
	RoleRepresentative = "representative"
)

// Actor is passed explicitly into every mutating operation.
type Actor struct {
	Username string
	Role     string
}

func (a Actor) Elevated() bool {
	return a.Role == RoleAdmin
}

// CanEnterReturns reports whether the actor may record returned quantities on
// a sale line.
func (a Actor) CanEnterReturns() bool {
	return a.Elevated()
}

func (a Actor) Name() string {
	if a.Username == "" {
		return "system"
	}
	return a.Username
}

type Group struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	StockValue decimal.Decimal `json:"stock_value"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Product struct {
	ID               string           `json:"id"`
	GroupID          string           `json:"group_id"`
	Name             string           `json:"name"`
	WeightValue      *decimal.Decimal `json:"weight_value,omitempty"`
	WeightUnit       string           `json:"weight_unit,omitempty"`
	QuantityType     units.Type       `json:"quantity_type"`
	PiecesPerUnit    int              `json:"pieces_per_unit"`
	WholeUnits       int              `json:"whole_units"`
	ExtraPieces      int              `json:"extra_pieces"`
	AvgUnitCost      decimal.Decimal  `json:"avg_unit_cost"`
	SellPricePerUnit decimal.Decimal  `json:"sell_price_per_unit"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// UnitSize is the effective pieces-per-unit factor used for every conversion.
func (p Product) UnitSize() int {
	return units.PiecesPerUnit(p.QuantityType, p.PiecesPerUnit)
}

func (p Product) TotalPieces() int {
	return units.ToPieces(p.WholeUnits, p.ExtraPieces, p.UnitSize())
}

func (p Product) Stock() units.Qty {
	return units.Qty{Whole: p.WholeUnits, Pieces: p.ExtraPieces}
}

func (p Product) SellPricePerPiece() decimal.Decimal {
	return p.SellPricePerUnit.Div(decimal.NewFromInt(int64(p.UnitSize())))
}

func (p Product) BuyPricePerUnit() decimal.Decimal {
	return p.AvgUnitCost.Mul(decimal.NewFromInt(int64(p.UnitSize())))
}

func (p Product) StockValue() decimal.Decimal {
	return p.AvgUnitCost.Mul(decimal.NewFromInt(int64(p.TotalPieces())))
}

// DisplayName renders the product with its weight, e.g. "Rice (5kg)".
func (p Product) DisplayName() string {
	if p.WeightValue == nil || p.WeightUnit == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s%s)", p.Name, p.WeightValue.String(), p.WeightUnit)
}

// StockItem is the read model served for stock snapshots.
type StockItem struct {
	Product
	TotalPieces       int             `json:"total_pieces"`
	SellPricePerPiece decimal.Decimal `json:"sell_price_per_piece"`
	BuyPricePerUnit   decimal.Decimal `json:"buy_price_per_unit"`
	StockValue        decimal.Decimal `json:"stock_value"`
}

func (p Product) View() StockItem {
	return StockItem{
		Product:           p,
		TotalPieces:       p.TotalPieces(),
		SellPricePerPiece: p.SellPricePerPiece().Round(2),
		BuyPricePerUnit:   p.BuyPricePerUnit().Round(2),
		StockValue:        p.StockValue().Round(2),
	}
}

type StockSnapshot struct {
	GroupID    string          `json:"group_id"`
	Items      []StockItem     `json:"items"`
	TotalValue decimal.Decimal `json:"total_value"`
}

const (
	TxKindAdd      = "add"
	TxKindWithdraw = "withdraw"
)

const (
	ReasonInitial            = "initial"
	ReasonRestock            = "restock"
	ReasonWithdrawal         = "withdrawal"
	ReasonSale               = "sale"
	ReasonProductTaken       = "product_taken"
	ReasonProductTakenReturn = "product_taken_return"
)

// StockTransaction is immutable once written.
type StockTransaction struct {
	ID               string          `json:"id"`
	GroupID          string          `json:"group_id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Kind             string          `json:"kind"`
	Reason           string          `json:"reason"`
	DeltaPieces      int             `json:"delta_pieces"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	AvgUnitCostAfter decimal.Decimal `json:"avg_unit_cost_after"`
	StockAfter       int             `json:"stock_after"`
	RefID            string          `json:"ref_id,omitempty"`
	Actor            string          `json:"actor"`
	At               time.Time       `json:"at"`
}

const (
	HistoryCreated   = "created"
	HistoryAdded     = "added"
	HistoryWithdrawn = "withdrawn"
	HistorySold      = "sold"
	HistoryTaken     = "taken"
	HistoryReturned  = "returned"
	HistoryDeleted   = "deleted"
)

type HistoryEntry struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	At          time.Time `json:"at"`
}

// HistoryItem is one row of the merged chronological history: exactly one of
// Transaction or Entry is set.
type HistoryItem struct {
	At          time.Time         `json:"at"`
	Transaction *StockTransaction `json:"transaction,omitempty"`
	Entry       *HistoryEntry     `json:"entry,omitempty"`
}

const (
	SaleDraft     = "draft"
	SalePending   = "pending"
	SaleCompleted = "completed"
	SaleLocked    = "locked"
)

type LineItem struct {
	ProductID        string           `json:"product_id"`
	ProductName      string           `json:"product_name"`
	QuantityType     units.Type       `json:"quantity_type"`
	PiecesPerUnit    int              `json:"pieces_per_unit"`
	Request          units.Qty        `json:"request"`
	Return           units.Qty        `json:"return"`
	RequestedPieces  int              `json:"requested_pieces"`
	ReturnedPieces   int              `json:"returned_pieces"`
	SoldPieces       int              `json:"sold_pieces"`
	Sold             units.Qty        `json:"sold"`
	SellPricePerUnit decimal.Decimal  `json:"sell_price_per_unit"`
	Price            decimal.Decimal  `json:"price"`
	UnitCostAtLock   *decimal.Decimal `json:"unit_cost_at_lock,omitempty"`
	Profit           *decimal.Decimal `json:"profit,omitempty"`
}

type Sale struct {
	ID             string           `json:"id"`
	GroupID        string           `json:"group_id"`
	Date           string           `json:"date"`
	Status         string           `json:"status"`
	Items          []LineItem       `json:"items"`
	CashReceived   decimal.Decimal  `json:"cash_received"`
	Remarks        []Remark         `json:"remarks"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	RemarksTotal   decimal.Decimal  `json:"remarks_total"`
	Due            decimal.Decimal  `json:"due"`
	CommissionOwed decimal.Decimal  `json:"commission_owed"`
	Profit         *decimal.Decimal `json:"profit,omitempty"`
	SubmittedBy    string           `json:"submitted_by"`
	ConfirmedBy    string           `json:"confirmed_by,omitempty"`
	LockedBy       string           `json:"locked_by,omitempty"`
	LockedAt       *time.Time       `json:"locked_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (s Sale) Locked() bool {
	return s.Status == SaleLocked
}

// Remark is an expense note owed by a group. SaleID is set for remarks
// entered on a daily sale; those join the ledger once the sale is locked.
type Remark struct {
	ID         string          `json:"id"`
	GroupID    string          `json:"group_id"`
	SaleID     string          `json:"sale_id,omitempty"`
	Date       string          `json:"date"`
	Comment    string          `json:"comment"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ProductTaken struct {
	ID            string          `json:"id"`
	GroupID       string          `json:"group_id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	QuantityType  units.Type      `json:"quantity_type"`
	PiecesPerUnit int             `json:"pieces_per_unit"`
	Whole         int             `json:"whole"`
	Pieces        int             `json:"pieces"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Date          string          `json:"date"`
	TakenBy       string          `json:"taken_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OutstandingPieces uses the unit size captured when the record was created.
func (r ProductTaken) OutstandingPieces() int {
	return units.ToPieces(r.Whole, r.Pieces, units.PiecesPerUnit(r.QuantityType, r.PiecesPerUnit))
}

const (
	PaymentCommission   = "commission"
	PaymentRemark       = "remark"
	PaymentProductTaken = "product_taken"
)

type GroupPayment struct {
	ID      string          `json:"id"`
	GroupID string          `json:"group_id"`
	Kind    string          `json:"kind"`
	Amount  decimal.Decimal `json:"amount"`
	RefID   string          `json:"ref_id,omitempty"`
	Date    string          `json:"date"`
	Actor   string          `json:"actor"`
	At      time.Time       `json:"at"`
}

type ProductTakenReturn struct {
	ID             string          `json:"id"`
	RecordID       string          `json:"record_id"`
	GroupID        string          `json:"group_id"`
	Whole          int             `json:"whole"`
	Pieces         int             `json:"pieces"`
	ReturnedPieces int             `json:"returned_pieces"`
	PriceReduction decimal.Decimal `json:"price_reduction"`
	Actor          string          `json:"actor"`
	At             time.Time       `json:"at"`
}

type Expense struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type MonthlyTarget struct {
	GroupID   string          `json:"group_id"`
	Month     string          `json:"month"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
