package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"distledger/internal/domain"
	"distledger/internal/store"
	"distledger/internal/units"
	"distledger/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// inTx runs fn in a serializable transaction and commits when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return conflictOr(err)
	}
	return conflictOr(tx.Commit())
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	if group.ID == "" {
		group.ID = xid.New("grp")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_groups (id, name, created_at) VALUES ($1, $2, $3)
	`, group.ID, group.Name, group.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group %q already exists", domain.ErrConflict, group.Name)
		}
		return nil, err
	}
	group.StockValue = decimal.Zero
	return &group, nil
}

const groupSelect = `
	SELECT g.id, g.name, g.created_at,
		COALESCE(SUM(p.avg_unit_cost * (p.whole_units * p.pieces_per_unit + p.extra_pieces)), 0)
	FROM ledger_groups g
	LEFT JOIN products p ON p.group_id = g.id
`

func scanGroup(row scanner) (domain.Group, error) {
	var g domain.Group
	if err := row.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.StockValue); err != nil {
		return domain.Group{}, err
	}
	g.StockValue = g.StockValue.Round(2)
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, groupSelect+` WHERE g.id = $1 GROUP BY g.id`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, groupSelect+` GROUP BY g.id ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domain.Group, 0, 16)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup relies on ON DELETE CASCADE for owned records. Stock
// transactions and history carry no foreign key and are kept.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	return nil
}

const productColumns = `
	id, group_id, name, weight_value, weight_unit, quantity_type, pieces_per_unit,
	whole_units, extra_pieces, avg_unit_cost, sell_price_per_unit, created_at, updated_at
`

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var weight decimal.NullDecimal
	var qtyType string
	if err := row.Scan(&p.ID, &p.GroupID, &p.Name, &weight, &p.WeightUnit, &qtyType, &p.PiecesPerUnit,
		&p.WholeUnits, &p.ExtraPieces, &p.AvgUnitCost, &p.SellPricePerUnit, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.QuantityType = units.Type(qtyType)
	if weight.Valid {
		w := weight.Decimal
		p.WeightValue = &w
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initial *domain.StockTransaction) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, product.ID, product.GroupID, product.Name, nullDecimal(product.WeightValue), product.WeightUnit,
			string(product.QuantityType), product.PiecesPerUnit, product.WholeUnits, product.ExtraPieces,
			product.AvgUnitCost, product.SellPricePerUnit, product.CreatedAt, product.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: group %s", domain.ErrNotFound, product.GroupID)
			}
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: product %s already exists", domain.ErrConflict, product.ID)
			}
			return err
		}
		if initial != nil {
			entry := *initial
			entry.ProductID = product.ID
			if err := insertStockTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := getProduct(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getProduct(ctx context.Context, q queryer, id string, forUpdate bool) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, groupID string) ([]domain.Product, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE group_id = $1 ORDER BY name`, groupID)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	defer rows.Close()
	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// lockProducts selects the given products FOR UPDATE so a lock or submit sees
// stock that no concurrent writer can change before commit.
func lockProducts(ctx context.Context, tx *sql.Tx, where string, arg any) (map[string]domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+where+` ORDER BY id FOR UPDATE`, arg)
	if err != nil {
		return nil, err
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	var deleted domain.Product
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProduct(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
			return err
		}
		deleted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *Store) ApplyStock(ctx context.Context, productID string, fn store.StockFunc) (*domain.Product, *domain.StockTransaction, error) {
	var product domain.Product
	var entry domain.StockTransaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getProduct(ctx, tx, productID, true)
		if err != nil {
			return err
		}
		next, stockTx, err := fn(current)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.GroupID = current.GroupID
		if err := updateProduct(ctx, tx, next); err != nil {
			return err
		}
		if stockTx.ID == "" {
			stockTx.ID = xid.New("stx")
		}
		if err := insertStockTx(ctx, tx, stockTx); err != nil {
			return err
		}
		product, entry = next, stockTx
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &product, &entry, nil
}

func updateProduct(ctx context.Context, tx *sql.Tx, p domain.Product) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET whole_units = $2, extra_pieces = $3, avg_unit_cost = $4, sell_price_per_unit = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.WholeUnits, p.ExtraPieces, p.AvgUnitCost, p.SellPricePerUnit, p.UpdatedAt)
	return err
}

func insertStockTx(ctx context.Context, tx *sql.Tx, e domain.StockTransaction) error {
	if e.ID == "" {
		e.ID = xid.New("stx")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_transactions (
			id, group_id, product_id, product_name, kind, reason, delta_pieces,
			total_price, avg_unit_cost_after, stock_after, ref_id, actor, at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.ID, e.GroupID, e.ProductID, e.ProductName, e.Kind, e.Reason, e.DeltaPieces,
		e.TotalPrice, e.AvgUnitCostAfter, e.StockAfter, e.RefID, e.Actor, e.At)
	return err
}

func applyMutation(ctx context.Context, tx *sql.Tx, m store.Mutation) error {
	for _, p := range m.Products {
		if err := updateProduct(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, e := range m.Transactions {
		if err := insertStockTx(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListStockTransactions(ctx context.Context, groupID string, limit int) ([]domain.StockTransaction, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, product_id, product_name, kind, reason, delta_pieces,
			total_price, avg_unit_cost_after, stock_after, ref_id, actor, at
		FROM stock_transactions
		WHERE group_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockTransaction, 0, limit)
	for rows.Next() {
		var e domain.StockTransaction
		if err := rows.Scan(&e.ID, &e.GroupID, &e.ProductID, &e.ProductName, &e.Kind, &e.Reason, &e.DeltaPieces,
			&e.TotalPrice, &e.AvgUnitCostAfter, &e.StockAfter, &e.RefID, &e.Actor, &e.At); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isSerializationFailure(err error) bool {
	return pgCode(err) == "40001"
}

func conflictOr(err error) error {
	if err != nil && isSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent update, retry", domain.ErrConflict)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
