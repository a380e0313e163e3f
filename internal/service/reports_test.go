package service

import (
	"context"
	"errors"
	"testing"

	"distledger/internal/domain"
	"distledger/internal/units"
)

func TestDailyProfitCountsLockedSalesAndExpenses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	group, product, _ := lockedBiscuitSale(t, svc)

	// A completed but unlocked sale on the same day contributes nothing.
	if _, err := svc.SubmitSale(ctx, admin, domain.SaleSubmitRequest{
		GroupID: group.ID,
		Date:    "2026-03-02",
		Items:   []domain.SaleLineRequest{{ProductID: product.ID, Request: units.Qty{Whole: 1}}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.AddExpense(ctx, rep, domain.ExpenseCreateRequest{Date: "2026-03-01", Description: "van", Amount: dec("20")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.AddExpense(ctx, admin, domain.ExpenseCreateRequest{Date: "2026-03-01", Description: "van", Amount: dec("20")}); err != nil {
		t.Fatalf("expense: %v", err)
	}

	report, err := svc.DailyProfit(ctx, "2026-03-01")
	if err != nil {
		t.Fatalf("daily profit: %v", err)
	}
	if !report.Revenue.Equal(dec("180")) || !report.COGS.Equal(dec("108")) || !report.GrossProfit.Equal(dec("72")) {
		t.Fatalf("unexpected gross figures %+v", report)
	}
	if !report.Expenses.Equal(dec("20")) || !report.NetProfit.Equal(dec("52")) || len(report.ExpenseList) != 1 {
		t.Fatalf("unexpected net figures %+v", report)
	}

	next, err := svc.DailyProfit(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("daily profit: %v", err)
	}
	if !next.Revenue.IsZero() {
		t.Fatalf("expected unlocked sale excluded, got revenue %s", next.Revenue)
	}

	monthly, err := svc.MonthlyProfit(ctx, 2026, 3)
	if err != nil {
		t.Fatalf("monthly profit: %v", err)
	}
	if len(monthly.Days) != 31 || !monthly.Net.Equal(dec("52")) {
		t.Fatalf("expected 31 days netting 52, got %d days netting %s", len(monthly.Days), monthly.Net)
	}
}

func TestSalesReportsWithTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	group, _, _ := lockedBiscuitSale(t, svc)

	if _, err := svc.SetMonthlyTarget(ctx, admin, domain.TargetRequest{GroupID: group.ID, Month: "March", Amount: dec("360")}); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected bad month rejected, got %v", err)
	}
	if _, err := svc.SetMonthlyTarget(ctx, admin, domain.TargetRequest{GroupID: group.ID, Month: "2026-03", Amount: dec("360")}); err != nil {
		t.Fatalf("target: %v", err)
	}

	monthly, err := svc.MonthlySales(ctx, group.ID, 2026, 3)
	if err != nil {
		t.Fatalf("monthly sales: %v", err)
	}
	if len(monthly.Sales) != 1 || !monthly.Total.Equal(dec("180")) {
		t.Fatalf("unexpected monthly sales %+v", monthly)
	}
	if monthly.Achievement == nil || !monthly.Achievement.Equal(dec("50")) {
		t.Fatalf("expected 50%% achievement, got %v", monthly.Achievement)
	}

	empty, err := svc.MonthlySales(ctx, group.ID, 2026, 4)
	if err != nil {
		t.Fatalf("april: %v", err)
	}
	if empty.Target != nil || empty.Achievement != nil || !empty.Total.IsZero() {
		t.Fatalf("expected no target in april, got %+v", empty)
	}

	yearly, err := svc.YearlySales(ctx, group.ID, 2026)
	if err != nil {
		t.Fatalf("yearly: %v", err)
	}
	if len(yearly.Months) != 12 || !yearly.Months[2].Total.Equal(dec("180")) || !yearly.Total.Equal(dec("180")) {
		t.Fatalf("unexpected yearly report %+v", yearly)
	}

	if _, err := svc.MonthlySales(ctx, group.ID, 2026, 13); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid month, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lockedBiscuitSale(t, svc)

	dashboard, err := svc.Dashboard(ctx, "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dashboard.Date != "2026-03-01" {
		t.Fatalf("expected dashboard for today, got %s", dashboard.Date)
	}
	if !dashboard.SalesThisYear.Equal(dec("180")) || !dashboard.SalesThisMonth.Equal(dec("180")) {
		t.Fatalf("unexpected sales figures %+v", dashboard)
	}
	if !dashboard.ProfitThisMonth.Equal(dec("72")) || !dashboard.TotalDue.Equal(dec("80")) {
		t.Fatalf("unexpected profit or due %+v", dashboard)
	}
}

func TestStockSnapshotTotalsValue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	group := mustGroup(t, svc, "North")
	mustCartoon(t, svc, group.ID, "Soap", 2, "5", "100")
	mustCartoon(t, svc, group.ID, "Rice", 1, "10", "150")

	snapshot, err := svc.GetStockSnapshot(ctx, group.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.Items) != 2 || !snapshot.TotalValue.Equal(dec("240")) {
		t.Fatalf("expected two items worth 240, got %+v", snapshot)
	}
}
