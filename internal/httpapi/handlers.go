package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"distledger/internal/domain"
	"distledger/internal/store"
)

func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	groups, err := a.service.ListGroups(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.GroupCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	group, err := a.service.CreateGroup(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"group": group})
}

func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	group, err := a.service.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": group})
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if err := a.service.DeleteGroup(r.Context(), actor, r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	products, err := a.service.ListProducts(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.GroupID = r.PathValue("id")
	product, err := a.service.CreateProduct(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product.View()})
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	snapshot, err := a.service.GetStockSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)
	items, err := a.service.GetHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product.View()})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if err := a.service.DeleteProduct(r.Context(), actor, r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddStock(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.StockAddRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, tx, err := a.service.AddStock(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product.View(), "transaction": tx})
}

func (a *API) handleWithdrawStock(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.StockWithdrawRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, tx, err := a.service.WithdrawStock(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product.View(), "transaction": tx})
}

func (a *API) handleSubmitSale(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.SaleSubmitRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.SubmitSale(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handlePreviewSale(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.SaleSubmitRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.PreviewSale(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleConfirmSale(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	sale, err := a.service.ConfirmSale(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleLockSale(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	sale, err := a.service.LockSale(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// handleGroupSales returns the single sale for ?date=, otherwise the sales
// matching ?month= or ?from=&to= and ?status=.
func (a *API) handleGroupSales(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	query := r.URL.Query()
	groupID := r.PathValue("id")
	if date := strings.TrimSpace(query.Get("date")); date != "" {
		sale, err := a.service.GetSaleForDate(r.Context(), groupID, date)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
		return
	}

	filter := store.SaleFilter{
		GroupID: groupID,
		From:    strings.TrimSpace(query.Get("from")),
		To:      strings.TrimSpace(query.Get("to")),
		Status:  strings.TrimSpace(query.Get("status")),
	}
	if month := strings.TrimSpace(query.Get("month")); month != "" {
		year, m, err := parseMonth(month)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		report, err := a.service.MonthlySales(r.Context(), groupID, year, m)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": report.Sales, "total": report.Total})
		return
	}
	sales, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	groupID := r.PathValue("id")
	var (
		ledger any
		err    error
	)
	switch r.PathValue("kind") {
	case "commission":
		ledger, err = a.service.GetCommissionLedger(r.Context(), groupID)
	case "remarks":
		ledger, err = a.service.GetRemarkLedger(r.Context(), groupID)
	case "product-taken":
		ledger, err = a.service.GetProductTakenLedger(r.Context(), groupID)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown ledger %q", r.PathValue("kind")))
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (a *API) handleGroupDue(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	due, err := a.service.GetGroupDue(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (a *API) handleTotalDue(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	summary, err := a.service.TotalDue(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handlePayCommission(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.PaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	payment, err := a.service.PayCommission(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handleAddRemark(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.RemarkCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	remark, err := a.service.AddRemark(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"remark": remark})
}

func (a *API) handlePayRemark(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.PaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	remark, err := a.service.PayRemark(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remark": remark})
}

func (a *API) handleTakeProduct(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ProductTakenRequest
	if !a.decode(w, r, &req) {
		return
	}
	record, err := a.service.TakeProduct(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"record": record})
}

func (a *API) handlePayProductTaken(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.PaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	record, err := a.service.PayProductTaken(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}

func (a *API) handleReturnProductTaken(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ProductTakenReturnRequest
	if !a.decode(w, r, &req) {
		return
	}
	record, err := a.service.ReturnProductTaken(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}

func (a *API) handleMonthlySales(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	query := r.URL.Query()
	year, month, err := parseMonth(query.Get("month"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	report, err := a.service.MonthlySales(r.Context(), query.Get("group_id"), year, month)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleYearlySales(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	query := r.URL.Query()
	year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	if err != nil {
		a.writeServiceError(w, fmt.Errorf("%w: year %q", domain.ErrInvalidQuantity, query.Get("year")))
		return
	}
	report, err := a.service.YearlySales(r.Context(), query.Get("group_id"), year)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleProfit serves the daily report for ?date= (default today) or the
// day-by-day breakdown for ?month=.
func (a *API) handleProfit(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	query := r.URL.Query()
	if month := strings.TrimSpace(query.Get("month")); month != "" {
		year, m, err := parseMonth(month)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		report, err := a.service.MonthlyProfit(r.Context(), year, m)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}
	report, err := a.service.DailyProfit(r.Context(), query.Get("date"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	dashboard, err := a.service.Dashboard(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	query := r.URL.Query()
	expenses, err := a.service.ListExpenses(r.Context(), strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ExpenseCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	expense, err := a.service.AddExpense(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleSetTarget(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.TargetRequest
	if !a.decode(w, r, &req) {
		return
	}
	target, err := a.service.SetMonthlyTarget(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target})
}
