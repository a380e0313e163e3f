package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

const remarkColumns = `id, group_id, COALESCE(sale_id, ''), to_char(remark_date, 'YYYY-MM-DD'), comment, amount, paid_amount, created_at`

func scanRemark(row scanner) (domain.Remark, error) {
	var r domain.Remark
	err := row.Scan(&r.ID, &r.GroupID, &r.SaleID, &r.Date, &r.Comment, &r.Amount, &r.PaidAmount, &r.CreatedAt)
	return r, err
}

func listRemarks(ctx context.Context, q queryer, where string, arg any) ([]domain.Remark, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+remarkColumns+` FROM remarks WHERE `+where+` ORDER BY remark_date, created_at, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	remarks := make([]domain.Remark, 0)
	for rows.Next() {
		r, err := scanRemark(rows)
		if err != nil {
			return nil, err
		}
		remarks = append(remarks, r)
	}
	return remarks, rows.Err()
}

func insertRemark(ctx context.Context, q queryer, r domain.Remark) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO remarks (id, group_id, sale_id, remark_date, comment, amount, paid_amount, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
	`, r.ID, r.GroupID, nullIfEmpty(r.SaleID), r.Date, r.Comment, r.Amount, r.PaidAmount, r.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, r.GroupID)
	}
	return err
}

func (s *Store) CreateRemark(ctx context.Context, remark domain.Remark) (*domain.Remark, error) {
	if remark.ID == "" {
		remark.ID = xid.New("rmk")
	}
	if err := insertRemark(ctx, s.db, remark); err != nil {
		return nil, err
	}
	return &remark, nil
}

func (s *Store) ListRemarks(ctx context.Context, groupID string) ([]domain.Remark, error) {
	return listRemarks(ctx, s.db, `group_id = $1`, groupID)
}

func (s *Store) PayRemark(ctx context.Context, id string, fn store.RemarkPayFunc) (*domain.Remark, error) {
	var saved domain.Remark
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanRemark(tx.QueryRowContext(ctx, `SELECT `+remarkColumns+` FROM remarks WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: remark %s", domain.ErrNotFound, id)
			}
			return err
		}
		saleStatus := ""
		if current.SaleID != "" {
			err := tx.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1 FOR SHARE`, current.SaleID).Scan(&saleStatus)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		next, payment, err := fn(current, saleStatus)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE remarks SET paid_amount = $2 WHERE id = $1`, id, next.PaidAmount); err != nil {
			return err
		}
		if err := insertPayment(ctx, tx, payment); err != nil {
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

func insertPayment(ctx context.Context, q queryer, p domain.GroupPayment) error {
	if p.ID == "" {
		p.ID = xid.New("pay")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO group_payments (id, group_id, kind, amount, ref_id, payment_date, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8)
	`, p.ID, p.GroupID, p.Kind, p.Amount, p.RefID, p.Date, p.Actor, p.At)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, p.GroupID)
	}
	return err
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.GroupPayment) error {
	return insertPayment(ctx, s.db, payment)
}

func (s *Store) ListPayments(ctx context.Context, groupID string) ([]domain.GroupPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, kind, amount, ref_id, to_char(payment_date, 'YYYY-MM-DD'), actor, at
		FROM group_payments
		WHERE group_id = $1
		ORDER BY at, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.GroupPayment, 0)
	for rows.Next() {
		var p domain.GroupPayment
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Kind, &p.Amount, &p.RefID, &p.Date, &p.Actor, &p.At); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const takenColumns = `
	id, group_id, product_id, product_name, quantity_type, pieces_per_unit, whole, pieces,
	total_price, paid_amount, to_char(taken_date, 'YYYY-MM-DD'), taken_by, created_at
`

func scanTaken(row scanner) (domain.ProductTaken, error) {
	var r domain.ProductTaken
	var qtyType string
	if err := row.Scan(&r.ID, &r.GroupID, &r.ProductID, &r.ProductName, &qtyType, &r.PiecesPerUnit, &r.Whole, &r.Pieces,
		&r.TotalPrice, &r.PaidAmount, &r.Date, &r.TakenBy, &r.CreatedAt); err != nil {
		return domain.ProductTaken{}, err
	}
	r.QuantityType = units.Type(qtyType)
	return r, nil
}

func getTaken(ctx context.Context, tx *sql.Tx, id string) (domain.ProductTaken, error) {
	r, err := scanTaken(tx.QueryRowContext(ctx, `SELECT `+takenColumns+` FROM product_taken WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductTaken{}, fmt.Errorf("%w: product taken record %s", domain.ErrNotFound, id)
		}
		return domain.ProductTaken{}, err
	}
	return r, nil
}

func (s *Store) CreateProductTaken(ctx context.Context, productID string, fn store.TakeFunc) (*domain.ProductTaken, error) {
	var saved domain.ProductTaken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getProduct(ctx, tx, productID, true)
		if err != nil {
			return err
		}
		record, product, stockTx, err := fn(current)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record.ID = xid.New("ptk")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_taken (`+takenColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::date,$12,$13)
		`, record.ID, record.GroupID, record.ProductID, record.ProductName, string(record.QuantityType), record.PiecesPerUnit,
			record.Whole, record.Pieces, record.TotalPrice, record.PaidAmount, record.Date, record.TakenBy, record.CreatedAt)
		if err != nil {
			return err
		}
		stockTx.RefID = record.ID
		if err := applyMutation(ctx, tx, store.Mutation{
			Products:     []domain.Product{product},
			Transactions: []domain.StockTransaction{stockTx},
		}); err != nil {
			return err
		}
		saved = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetProductTaken(ctx context.Context, id string) (*domain.ProductTaken, error) {
	r, err := scanTaken(s.db.QueryRowContext(ctx, `SELECT `+takenColumns+` FROM product_taken WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product taken record %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListProductTaken(ctx context.Context, groupID string) ([]domain.ProductTaken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+takenColumns+` FROM product_taken WHERE group_id = $1 ORDER BY taken_date, created_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ProductTaken, 0)
	for rows.Next() {
		r, err := scanTaken(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) PayProductTaken(ctx context.Context, id string, fn store.TakenPayFunc) (*domain.ProductTaken, error) {
	var saved domain.ProductTaken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getTaken(ctx, tx, id)
		if err != nil {
			return err
		}
		next, payment, err := fn(current)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_taken SET paid_amount = $2 WHERE id = $1`, id, next.PaidAmount); err != nil {
			return err
		}
		if err := insertPayment(ctx, tx, payment); err != nil {
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

func (s *Store) ReturnProductTaken(ctx context.Context, id string, fn store.TakenReturnFunc) (*domain.ProductTaken, error) {
	var saved domain.ProductTaken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getTaken(ctx, tx, id)
		if err != nil {
			return err
		}
		product, err := getProduct(ctx, tx, current.ProductID, true)
		if err != nil {
			return err
		}
		next, ret, mutation, err := fn(current, product)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE product_taken SET whole = $2, pieces = $3, total_price = $4 WHERE id = $1
		`, id, next.Whole, next.Pieces, next.TotalPrice); err != nil {
			return err
		}
		if ret.ID == "" {
			ret.ID = xid.New("ptr")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_taken_returns (id, record_id, group_id, whole, pieces, returned_pieces, price_reduction, actor, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ret.ID, ret.RecordID, ret.GroupID, ret.Whole, ret.Pieces, ret.ReturnedPieces, ret.PriceReduction, ret.Actor, ret.At); err != nil {
			return err
		}
		if err := applyMutation(ctx, tx, mutation); err != nil {
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

func (s *Store) ListProductTakenReturns(ctx context.Context, groupID string) ([]domain.ProductTakenReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, group_id, whole, pieces, returned_pieces, price_reduction, actor, at
		FROM product_taken_returns
		WHERE group_id = $1
		ORDER BY at, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.ProductTakenReturn, 0)
	for rows.Next() {
		var r domain.ProductTakenReturn
		if err := rows.Scan(&r.ID, &r.RecordID, &r.GroupID, &r.Whole, &r.Pieces, &r.ReturnedPieces, &r.PriceReduction, &r.Actor, &r.At); err != nil {
			return nil, err
		}
		returns = append(returns, r)
	}
	return returns, rows.Err()
}
