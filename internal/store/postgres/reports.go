package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distledger/internal/domain"
	"distledger/internal/xid"
)

func (s *Store) CreateHistory(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("hst")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history_entries (id, group_id, product_id, product_name, action, description, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.GroupID, entry.ProductID, entry.ProductName, entry.Action, entry.Description, entry.Actor, entry.At)
	return err
}

func (s *Store) ListHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, product_id, product_name, action, description, actor, at
		FROM history_entries
		WHERE group_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.ProductID, &e.ProductName, &e.Action, &e.Description, &e.Actor, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, expense_date, description, amount, created_by, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6)
	`, expense.ID, expense.Date, expense.Description, expense.Amount, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	query := `SELECT id, to_char(expense_date, 'YYYY-MM-DD'), description, amount, created_by, created_at FROM expenses WHERE 1=1`
	args := []any{}
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(` AND expense_date >= $%d::date`, len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(` AND expense_date <= $%d::date`, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY expense_date, created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Date, &e.Description, &e.Amount, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) UpsertTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_targets (group_id, month, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, month) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
	`, target.GroupID, target.Month, target.Amount, target.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, target.GroupID)
		}
		return nil, err
	}
	return &target, nil
}

func (s *Store) GetTarget(ctx context.Context, groupID string, month string) (*domain.MonthlyTarget, error) {
	var t domain.MonthlyTarget
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, month, amount, updated_at FROM monthly_targets WHERE group_id = $1 AND month = $2
	`, groupID, month).Scan(&t.GroupID, &t.Month, &t.Amount, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no target for %s in %s", domain.ErrNotFound, groupID, month)
		}
		return nil, err
	}
	return &t, nil
}
