package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/xid"
)

const monthLayout = "2006-01"

var hundred = decimal.NewFromInt(100)

func monthBounds(year int, month int) (string, string, error) {
	if year < 1 || month < 1 || month > 12 {
		return "", "", fmt.Errorf("%w: invalid month %d-%02d", domain.ErrInvalidQuantity, year, month)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format(dateLayout), last.Format(dateLayout), nil
}

func salesTotal(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.TotalAmount)
	}
	return total
}

// MonthlySales lists the month's submitted sales for a group with the target
// achievement when a target was set.
func (s *Service) MonthlySales(ctx context.Context, groupID string, year int, month int) (domain.MonthlySalesReport, error) {
	from, to, err := monthBounds(year, month)
	if err != nil {
		return domain.MonthlySalesReport{}, err
	}
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.MonthlySalesReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{GroupID: groupID, From: from, To: to})
	if err != nil {
		return domain.MonthlySalesReport{}, err
	}

	report := domain.MonthlySalesReport{
		GroupID: groupID,
		Month:   fmt.Sprintf("%04d-%02d", year, month),
		Sales:   sales,
		Total:   salesTotal(sales),
	}
	target, err := s.repo.GetTarget(ctx, groupID, report.Month)
	switch {
	case err == nil:
		amount := target.Amount
		report.Target = &amount
		if amount.IsPositive() {
			achievement := report.Total.Mul(hundred).Div(amount).Round(2)
			report.Achievement = &achievement
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.MonthlySalesReport{}, err
	}
	return report, nil
}

func (s *Service) YearlySales(ctx context.Context, groupID string, year int) (domain.YearlySalesReport, error) {
	if year < 1 {
		return domain.YearlySalesReport{}, fmt.Errorf("%w: invalid year %d", domain.ErrInvalidQuantity, year)
	}
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.YearlySalesReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{
		GroupID: groupID,
		From:    fmt.Sprintf("%04d-01-01", year),
		To:      fmt.Sprintf("%04d-12-31", year),
	})
	if err != nil {
		return domain.YearlySalesReport{}, err
	}

	months := make([]domain.MonthTotal, 12)
	for i := range months {
		months[i] = domain.MonthTotal{Month: i + 1, Total: decimal.Zero}
	}
	total := decimal.Zero
	for _, sale := range sales {
		t, err := parseDate(sale.Date)
		if err != nil {
			continue
		}
		idx := int(t.Month()) - 1
		months[idx].Total = months[idx].Total.Add(sale.TotalAmount)
		total = total.Add(sale.TotalAmount)
	}
	return domain.YearlySalesReport{GroupID: groupID, Year: year, Months: months, Total: total}, nil
}

// lockedProfit sums revenue and cost of goods over locked sales only; cost
// is what each line's profit left out of its price at lock time.
func lockedProfit(sales []domain.Sale) (revenue decimal.Decimal, cogs decimal.Decimal) {
	revenue, cogs = decimal.Zero, decimal.Zero
	for _, sale := range sales {
		if !sale.Locked() {
			continue
		}
		for _, item := range sale.Items {
			revenue = revenue.Add(item.Price)
			if item.Profit != nil {
				cogs = cogs.Add(item.Price.Sub(*item.Profit))
			}
		}
	}
	return revenue, cogs
}

func expenseTotal(expenses []domain.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

func profitReport(date string, sales []domain.Sale, expenses []domain.Expense) domain.ProfitReport {
	revenue, cogs := lockedProfit(sales)
	spent := expenseTotal(expenses)
	gross := revenue.Sub(cogs)
	return domain.ProfitReport{
		Date:        date,
		Revenue:     revenue,
		COGS:        cogs,
		GrossProfit: gross,
		Expenses:    spent,
		NetProfit:   gross.Sub(spent),
		ExpenseList: expenses,
	}
}

// DailyProfit covers every group for one date.
func (s *Service) DailyProfit(ctx context.Context, date string) (domain.ProfitReport, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{From: date, To: date, Status: domain.SaleLocked})
	if err != nil {
		return domain.ProfitReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, date, date)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	return profitReport(date, sales, expenses), nil
}

// MonthlyProfit breaks the month down by day across every group.
func (s *Service) MonthlyProfit(ctx context.Context, year int, month int) (domain.MonthlyProfitReport, error) {
	from, to, err := monthBounds(year, month)
	if err != nil {
		return domain.MonthlyProfitReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{From: from, To: to, Status: domain.SaleLocked})
	if err != nil {
		return domain.MonthlyProfitReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	if err != nil {
		return domain.MonthlyProfitReport{}, err
	}

	salesByDay := make(map[string][]domain.Sale)
	for _, sale := range sales {
		salesByDay[sale.Date] = append(salesByDay[sale.Date], sale)
	}
	expensesByDay := make(map[string][]domain.Expense)
	for _, e := range expenses {
		expensesByDay[e.Date] = append(expensesByDay[e.Date], e)
	}

	report := domain.MonthlyProfitReport{Month: from[:7], Net: decimal.Zero}
	start, _ := parseDate(from)
	end, _ := parseDate(to)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		daily := profitReport(date, salesByDay[date], expensesByDay[date])
		daily.ExpenseList = nil
		report.Days = append(report.Days, daily)
		report.Net = report.Net.Add(daily.NetProfit)
	}
	return report, nil
}

// Dashboard summarizes sales, profit and outstanding due around date.
func (s *Service) Dashboard(ctx context.Context, date string) (domain.Dashboard, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return domain.Dashboard{}, err
	}
	day, _ := parseDate(date)
	yearFrom := fmt.Sprintf("%04d-01-01", day.Year())
	yearTo := fmt.Sprintf("%04d-12-31", day.Year())
	monthFrom, monthTo, err := monthBounds(day.Year(), int(day.Month()))
	if err != nil {
		return domain.Dashboard{}, err
	}

	sales, err := s.repo.ListSales(ctx, store.SaleFilter{From: yearFrom, To: yearTo})
	if err != nil {
		return domain.Dashboard{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, yearFrom, yearTo)
	if err != nil {
		return domain.Dashboard{}, err
	}

	var monthSales []domain.Sale
	for _, sale := range sales {
		if sale.Date >= monthFrom && sale.Date <= monthTo {
			monthSales = append(monthSales, sale)
		}
	}
	var monthExpenses []domain.Expense
	for _, e := range expenses {
		if e.Date >= monthFrom && e.Date <= monthTo {
			monthExpenses = append(monthExpenses, e)
		}
	}

	due, err := s.TotalDue(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	yearProfit := profitReport(date, sales, expenses)
	monthProfit := profitReport(date, monthSales, monthExpenses)
	return domain.Dashboard{
		Date:            date,
		SalesThisYear:   salesTotal(sales),
		SalesThisMonth:  salesTotal(monthSales),
		ProfitThisYear:  yearProfit.NetProfit,
		ProfitThisMonth: monthProfit.NetProfit,
		TotalDue:        due.Total,
	}, nil
}

func (s *Service) AddExpense(ctx context.Context, actor domain.Actor, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := requireElevated(actor, "recording an expense"); err != nil {
		return domain.Expense{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Expense{}, fmt.Errorf("%w: expense description is required", domain.ErrInvalidQuantity)
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must be positive", domain.ErrInvalidQuantity)
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		return domain.Expense{}, err
	}
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		Date:        date,
		Description: description,
		Amount:      req.Amount,
		CreatedBy:   actor.Name(),
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	for _, raw := range []string{from, to} {
		if raw == "" {
			continue
		}
		if _, err := parseDate(raw); err != nil {
			return nil, err
		}
	}
	return s.repo.ListExpenses(ctx, from, to)
}

func (s *Service) SetMonthlyTarget(ctx context.Context, actor domain.Actor, req domain.TargetRequest) (domain.MonthlyTarget, error) {
	if err := requireElevated(actor, "setting a target"); err != nil {
		return domain.MonthlyTarget{}, err
	}
	month := strings.TrimSpace(req.Month)
	if _, err := time.Parse(monthLayout, month); err != nil {
		return domain.MonthlyTarget{}, fmt.Errorf("%w: month %q must be YYYY-MM", domain.ErrInvalidQuantity, req.Month)
	}
	if req.Amount.IsNegative() {
		return domain.MonthlyTarget{}, fmt.Errorf("%w: target must not be negative", domain.ErrInvalidQuantity)
	}
	saved, err := s.repo.UpsertTarget(ctx, domain.MonthlyTarget{
		GroupID:   req.GroupID,
		Month:     month,
		Amount:    req.Amount,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	return *saved, nil
}
