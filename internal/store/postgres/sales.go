package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/xid"
)

const saleColumns = `
	id, group_id, to_char(sale_date, 'YYYY-MM-DD'), status, items, cash_received,
	total_amount, remarks_total, due, commission_owed, profit,
	submitted_by, confirmed_by, locked_by, locked_at, created_at, updated_at
`

func scanSale(row scanner) (domain.Sale, error) {
	var sale domain.Sale
	var items []byte
	var profit decimal.NullDecimal
	var lockedAt sql.NullTime
	if err := row.Scan(&sale.ID, &sale.GroupID, &sale.Date, &sale.Status, &items, &sale.CashReceived,
		&sale.TotalAmount, &sale.RemarksTotal, &sale.Due, &sale.CommissionOwed, &profit,
		&sale.SubmittedBy, &sale.ConfirmedBy, &sale.LockedBy, &lockedAt, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.Sale{}, fmt.Errorf("decode sale items %s: %w", sale.ID, err)
	}
	if profit.Valid {
		p := profit.Decimal
		sale.Profit = &p
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		sale.LockedAt = &t
	}
	return sale, nil
}

func getSale(ctx context.Context, q queryer, where string, forUpdate bool, args ...any) (domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Sale{}, err
	}
	remarks, err := listRemarks(ctx, q, `sale_id = $1`, sale.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Remarks = remarks
	return sale, nil
}

func upsertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, group_id, sale_date, status, items, cash_received, total_amount, remarks_total,
			due, commission_owed, profit, submitted_by, confirmed_by, locked_by, locked_at,
			created_at, updated_at
		) VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			items = EXCLUDED.items,
			cash_received = EXCLUDED.cash_received,
			total_amount = EXCLUDED.total_amount,
			remarks_total = EXCLUDED.remarks_total,
			due = EXCLUDED.due,
			commission_owed = EXCLUDED.commission_owed,
			profit = EXCLUDED.profit,
			submitted_by = EXCLUDED.submitted_by,
			confirmed_by = EXCLUDED.confirmed_by,
			locked_by = EXCLUDED.locked_by,
			locked_at = EXCLUDED.locked_at,
			updated_at = EXCLUDED.updated_at
	`, sale.ID, sale.GroupID, sale.Date, sale.Status, items, sale.CashReceived, sale.TotalAmount, sale.RemarksTotal,
		sale.Due, sale.CommissionOwed, nullDecimal(sale.Profit), sale.SubmittedBy, sale.ConfirmedBy, sale.LockedBy,
		nullTime(sale.LockedAt), sale.CreatedAt, sale.UpdatedAt)
	return err
}

func (s *Store) SaveSale(ctx context.Context, groupID string, date string, fn store.SaleFunc) (*domain.Sale, error) {
	var saved domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_groups WHERE id = $1)`, groupID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
		}

		var existing *domain.Sale
		current, err := getSale(ctx, tx, `group_id = $1 AND sale_date = $2::date`, true, groupID, date)
		switch {
		case err == nil:
			existing = &current
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		products, err := lockProducts(ctx, tx, `group_id = $1`, groupID)
		if err != nil {
			return err
		}

		next, err := fn(existing, products)
		if err != nil {
			return err
		}
		next.GroupID = groupID
		next.Date = date
		if err := upsertSale(ctx, tx, next); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM remarks WHERE sale_id = $1`, next.ID); err != nil {
			return err
		}
		for i := range next.Remarks {
			if next.Remarks[i].ID == "" {
				next.Remarks[i].ID = xid.New("rmk")
			}
			next.Remarks[i].SaleID = next.ID
			if err := insertRemark(ctx, tx, next.Remarks[i]); err != nil {
				return err
			}
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) UpdateSale(ctx context.Context, id string, fn func(current domain.Sale) (domain.Sale, error)) (*domain.Sale, error) {
	var saved domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getSale(ctx, tx, `id = $1`, true, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
			}
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if err := upsertSale(ctx, tx, next); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// LockSale locks the sale row and every referenced product row, lets fn
// commit stock, and writes the sale and stock changes in one transaction.
func (s *Store) LockSale(ctx context.Context, id string, fn store.LockFunc) (*domain.Sale, error) {
	var saved domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getSale(ctx, tx, `id = $1`, true, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
			}
			return err
		}
		ids := make([]string, 0, len(current.Items))
		for _, item := range current.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := lockProducts(ctx, tx, `id = ANY($1)`, ids)
		if err != nil {
			return err
		}

		next, mutation, err := fn(current, products)
		if err != nil {
			return err
		}
		if err := applyMutation(ctx, tx, mutation); err != nil {
			return err
		}
		if err := upsertSale(ctx, tx, next); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := getSale(ctx, s.db, `id = $1`, false, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSaleByDate(ctx context.Context, groupID string, date string) (*domain.Sale, error) {
	sale, err := getSale(ctx, s.db, `group_id = $1 AND sale_date = $2::date`, false, groupID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no sale for %s on %s", domain.ErrNotFound, groupID, date)
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	clauses := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.GroupID != "" {
		add("group_id = $%d", filter.GroupID)
	}
	if filter.From != "" {
		add("sale_date >= $%d::date", filter.From)
	}
	if filter.To != "" {
		add("sale_date <= $%d::date", filter.To)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+strings.Join(clauses, " AND ")+` ORDER BY sale_date, group_id`, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(sales) == 0 {
		return sales, nil
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	remarks, err := listRemarks(ctx, s.db, `sale_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	bySale := make(map[string][]domain.Remark, len(sales))
	for _, r := range remarks {
		bySale[r.SaleID] = append(bySale[r.SaleID], r)
	}
	for i := range sales {
		sales[i].Remarks = bySale[sales[i].ID]
		if sales[i].Remarks == nil {
			sales[i].Remarks = []domain.Remark{}
		}
	}
	return sales, nil
}
