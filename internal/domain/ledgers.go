package domain

import "github.com/shopspring/decimal"

type CommissionEntry struct {
	SaleID string          `json:"sale_id"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// CommissionLedger offsets payments against the aggregate, not per entry.
type CommissionLedger struct {
	GroupID   string            `json:"group_id"`
	Entries   []CommissionEntry `json:"entries"`
	Payments  []GroupPayment    `json:"payments"`
	Total     decimal.Decimal   `json:"total"`
	Paid      decimal.Decimal   `json:"paid"`
	Remaining decimal.Decimal   `json:"remaining"`
}

type RemarkEntry struct {
	Remark
	Remaining decimal.Decimal `json:"remaining"`
	FullyPaid bool            `json:"fully_paid"`
}

type RemarkLedger struct {
	GroupID   string          `json:"group_id"`
	Active    []RemarkEntry   `json:"active"`
	Settled   []RemarkEntry   `json:"settled"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

type ProductTakenEntry struct {
	ProductTaken
	Remaining decimal.Decimal      `json:"remaining"`
	FullyPaid bool                 `json:"fully_paid"`
	Returns   []ProductTakenReturn `json:"returns,omitempty"`
}

type ProductTakenLedger struct {
	GroupID   string              `json:"group_id"`
	Entries   []ProductTakenEntry `json:"entries"`
	Total     decimal.Decimal     `json:"total"`
	Paid      decimal.Decimal     `json:"paid"`
	Remaining decimal.Decimal     `json:"remaining"`
}

type GroupDue struct {
	GroupID      string          `json:"group_id"`
	GroupName    string          `json:"group_name"`
	Commission   decimal.Decimal `json:"commission"`
	Remarks      decimal.Decimal `json:"remarks"`
	ProductTaken decimal.Decimal `json:"product_taken"`
	Total        decimal.Decimal `json:"total"`
}

type DueSummary struct {
	Groups []GroupDue      `json:"groups"`
	Total  decimal.Decimal `json:"total"`
}

type MonthlySalesReport struct {
	GroupID     string           `json:"group_id"`
	Month       string           `json:"month"`
	Sales       []Sale           `json:"sales"`
	Total       decimal.Decimal  `json:"total"`
	Target      *decimal.Decimal `json:"target,omitempty"`
	Achievement *decimal.Decimal `json:"achievement_percent,omitempty"`
}

type MonthTotal struct {
	Month int             `json:"month"`
	Total decimal.Decimal `json:"total"`
}

type YearlySalesReport struct {
	GroupID string          `json:"group_id"`
	Year    int             `json:"year"`
	Months  []MonthTotal    `json:"months"`
	Total   decimal.Decimal `json:"total"`
}

type ProfitReport struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	ExpenseList []Expense       `json:"expense_list,omitempty"`
}

type MonthlyProfitReport struct {
	Month string          `json:"month"`
	Days  []ProfitReport  `json:"days"`
	Net   decimal.Decimal `json:"net_profit"`
}

type Dashboard struct {
	Date            string          `json:"date"`
	SalesThisYear   decimal.Decimal `json:"sales_this_year"`
	SalesThisMonth  decimal.Decimal `json:"sales_this_month"`
	ProfitThisYear  decimal.Decimal `json:"profit_this_year"`
	ProfitThisMonth decimal.Decimal `json:"profit_this_month"`
	TotalDue        decimal.Decimal `json:"total_due"`
}
