package domain

import (
	"github.com/shopspring/decimal"

	"distledger/internal/units"
)

type GroupCreateRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type ProductCreateRequest struct {
	GroupID          string           `json:"group_id"`
	Name             string           `json:"name" validate:"required,max=160"`
	WeightValue      *decimal.Decimal `json:"weight_value,omitempty"`
	WeightUnit       string           `json:"weight_unit,omitempty" validate:"omitempty,oneof=g kg ml L"`
	QuantityType     string           `json:"quantity_type" validate:"required"`
	PiecesPerUnit    int              `json:"pieces_per_unit" validate:"gte=0"`
	InitialWhole     int              `json:"initial_whole"`
	InitialPieces    int              `json:"initial_pieces"`
	AvgUnitCost      decimal.Decimal  `json:"avg_unit_cost"`
	SellPricePerUnit decimal.Decimal  `json:"sell_price_per_unit"`
}

type StockAddRequest struct {
	Whole            int              `json:"whole"`
	Pieces           int              `json:"pieces"`
	TotalCost        decimal.Decimal  `json:"total_cost"`
	SellPricePerUnit *decimal.Decimal `json:"sell_price_per_unit,omitempty"`
}

type StockWithdrawRequest struct {
	Whole      int             `json:"whole"`
	Pieces     int             `json:"pieces"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type SaleLineRequest struct {
	ProductID string    `json:"product_id" validate:"required"`
	Request   units.Qty `json:"request"`
	Return    units.Qty `json:"return"`
}

type SaleRemarkRequest struct {
	Comment string          `json:"comment" validate:"required,max=500"`
	Amount  decimal.Decimal `json:"amount"`
}

type SaleSubmitRequest struct {
	GroupID      string              `json:"group_id" validate:"required"`
	Date         string              `json:"date" validate:"required,datetime=2006-01-02"`
	Items        []SaleLineRequest   `json:"items" validate:"dive"`
	CashReceived decimal.Decimal     `json:"cash_received"`
	Remarks      []SaleRemarkRequest `json:"remarks" validate:"dive"`
}

type RemarkCreateRequest struct {
	Comment string          `json:"comment" validate:"required,max=500"`
	Amount  decimal.Decimal `json:"amount"`
	Date    string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type ProductTakenRequest struct {
	GroupID    string          `json:"group_id" validate:"required"`
	ProductID  string          `json:"product_id" validate:"required"`
	Whole      int             `json:"whole"`
	Pieces     int             `json:"pieces"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Date       string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type ProductTakenReturnRequest struct {
	Whole  int `json:"whole"`
	Pieces int `json:"pieces"`
}

type ExpenseCreateRequest struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount"`
}

type TargetRequest struct {
	GroupID string          `json:"group_id" validate:"required"`
	Month   string          `json:"month" validate:"required,datetime=2006-01"`
	Amount  decimal.Decimal `json:"amount"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin representative"`
}
