package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kasirtoko/backend/internal/domain"
	"kasirtoko/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

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

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, c.ID, c.Name, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: category %q already exists", store.ErrValidation, c.Name)
		}
		return err
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, sku, barcode, name, category_id, selling_price, unit,
			min_stock, non_barcode, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, nullIfEmpty(p.SKU), nullIfEmpty(p.Barcode), p.Name, nullIfEmpty(p.CategoryID),
		p.SellingPrice, p.Unit, p.MinStock, p.NonBarcode, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: barcode %q already registered", store.ErrValidation, p.Barcode)
		}
		return err
	}
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET barcode = $2, name = $3, category_id = $4, selling_price = $5,
			unit = $6, min_stock = $7, non_barcode = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, nullIfEmpty(p.Barcode), p.Name, nullIfEmpty(p.CategoryID), p.SellingPrice,
		p.Unit, p.MinStock, p.NonBarcode, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: barcode %q already registered", store.ErrValidation, p.Barcode)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const productColumns = `
	p.id, COALESCE(p.sku,''), COALESCE(p.barcode,''), p.name,
	COALESCE(p.category_id::text,''), COALESCE(c.name,''), p.selling_price,
	p.unit, p.min_stock, p.non_barcode, p.active, p.created_at, p.updated_at
`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.CategoryID, &p.CategoryName,
		&p.SellingPrice, &p.Unit, &p.MinStock, &p.NonBarcode, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return p, err
	}
	return p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.barcode = $1 AND p.active = true
	`, barcode)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w: barcode %s", store.ErrNotFound, barcode)
		}
		return p, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ($1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.barcode = $1 OR p.sku = $1)
	`
	if f.ActiveOnly {
		query += ` AND p.active = true`
	}
	if f.NonBarcodeOnly {
		query += ` AND p.non_barcode = true`
	}
	query += ` ORDER BY p.name`

	rows, err := s.db.QueryContext(ctx, query, f.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) SetProductActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET active = $2, updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) TotalStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_batches
		WHERE product_id = $1
	`, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) GetStockDetail(ctx context.Context, productID string) (domain.StockDetail, error) {
	var detail domain.StockDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, COALESCE(c.name,''), COALESCE(p.barcode,''), p.unit
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, productID).Scan(&detail.ProductID, &detail.ProductName, &detail.CategoryName, &detail.Barcode, &detail.Unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return detail, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		return detail, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, to_char(stock_date, 'YYYY-MM-DD'),
			quantity_initial, quantity_remaining, cost_price, created_at
		FROM stock_batches
		WHERE product_id = $1 AND quantity_remaining > 0
		ORDER BY stock_date ASC, created_at ASC, id ASC
	`, productID)
	if err != nil {
		return detail, err
	}
	defer rows.Close()

	detail.TotalStock = decimal.Zero
	detail.Batches = make([]domain.StockBatch, 0, 8)
	for rows.Next() {
		var b domain.StockBatch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.StockDate, &b.QuantityInitial, &b.QuantityRemaining, &b.CostPrice, &b.CreatedAt); err != nil {
			return detail, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		detail.TotalStock = detail.TotalStock.Add(b.QuantityRemaining)
		detail.Batches = append(detail.Batches, b)
	}
	if err := rows.Err(); err != nil {
		return detail, err
	}
	return detail, nil
}

func (s *Store) ListStockSummaries(ctx context.Context, search string) ([]domain.ProductStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(p.barcode,''), COALESCE(c.name,''), p.unit, p.active,
			COALESCE(SUM(b.quantity_remaining), 0),
			COUNT(b.id) FILTER (WHERE b.quantity_remaining > 0)
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN stock_batches b ON b.product_id = p.id
		WHERE ($1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.barcode = $1)
		GROUP BY p.id, p.name, p.barcode, c.name, p.unit, p.active
		ORDER BY p.name
	`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.ProductStock, 0, 128)
	for rows.Next() {
		var ps domain.ProductStock
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.Barcode, &ps.CategoryName, &ps.Unit, &ps.Active, &ps.TotalStock, &ps.BatchCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) AddStockBatch(ctx context.Context, b domain.StockBatch) (domain.AddStockResult, error) {
	var result domain.AddStockResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var active bool
	err = pgTx.QueryRowContext(ctx, `SELECT active FROM products WHERE id = $1`, b.ProductID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("%w: product %s", store.ErrNotFound, b.ProductID)
		}
		return result, err
	}
	if !active {
		return result, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, b.ProductID)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_batches (
			id, product_id, stock_date, quantity_initial, quantity_remaining, cost_price, created_at
		)
		VALUES ($1,$2,$3,$4,$4,$5,$6)
	`, b.ID, b.ProductID, b.StockDate, b.QuantityInitial, b.CostPrice, b.CreatedAt)
	if err != nil {
		return result, err
	}

	var total decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_batches
		WHERE product_id = $1
	`, b.ProductID).Scan(&total)
	if err != nil {
		return result, err
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.BatchID = b.ID
	result.ProductID = b.ProductID
	result.TotalStock = total
	return result, nil
}

// lockAvailableBatches loads a product's batches with stock, oldest stock date
// first, creation order breaking ties, and locks them for the caller's walk.
func lockAvailableBatches(ctx context.Context, pgTx *sql.Tx, productID string) ([]domain.StockBatch, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, quantity_remaining, cost_price
		FROM stock_batches
		WHERE product_id = $1 AND quantity_remaining > 0
		ORDER BY stock_date ASC, created_at ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.StockBatch, 0, 8)
	for rows.Next() {
		var b domain.StockBatch
		if err := rows.Scan(&b.ID, &b.QuantityRemaining, &b.CostPrice); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) RemoveStock(ctx context.Context, productID string, qty decimal.Decimal) (domain.RemoveStockResult, error) {
	var result domain.RemoveStockResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return result, err
	}
	if !exists {
		return result, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}

	batches, err := lockAvailableBatches(ctx, pgTx, productID)
	if err != nil {
		return result, err
	}

	available := decimal.Zero
	for _, b := range batches {
		available = available.Add(b.QuantityRemaining)
	}
	if available.Cmp(qty) < 0 {
		return result, &store.StockShortage{ProductID: productID, Requested: qty, Available: available}
	}

	remaining := qty
	usages := make([]domain.BatchUsage, 0, len(batches))
	for _, b := range batches {
		if remaining.Sign() == 0 {
			break
		}
		used := remaining
		if used.Cmp(b.QuantityRemaining) > 0 {
			used = b.QuantityRemaining
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE stock_batches
			SET quantity_remaining = quantity_remaining - $1
			WHERE id = $2
		`, used, b.ID)
		if err != nil {
			return result, err
		}
		usages = append(usages, domain.BatchUsage{BatchID: b.ID, RemovedQty: used, CostPrice: b.CostPrice})
		remaining = remaining.Sub(used)
	}
	if remaining.Sign() > 0 {
		return result, fmt.Errorf("%w: fifo walk left %s unplaced for product %s", store.ErrConsistency, remaining, productID)
	}

	var total decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_batches
		WHERE product_id = $1
	`, productID).Scan(&total)
	if err != nil {
		return result, err
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.ProductID = productID
	result.RemovedQty = qty
	result.TotalStock = total
	result.Usages = usages
	return result, nil
}

func (s *Store) UpdateStockBatch(ctx context.Context, batchID string, req domain.UpdateStockBatchRequest) (domain.StockBatchResult, error) {
	var result domain.StockBatchResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var productID string
	var initial, remaining decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT product_id, quantity_initial, quantity_remaining
		FROM stock_batches
		WHERE id = $1
		FOR UPDATE
	`, batchID).Scan(&productID, &initial, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("%w: batch %s", store.ErrNotFound, batchID)
		}
		return result, err
	}

	used := initial.Sub(remaining)
	if req.QuantityInitial.Cmp(used) < 0 {
		return result, fmt.Errorf("%w: new quantity %s below already used %s", store.ErrValidation, req.QuantityInitial, used)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE stock_batches
		SET quantity_initial = $2, quantity_remaining = $3, cost_price = $4, stock_date = $5
		WHERE id = $1
	`, batchID, req.QuantityInitial, req.QuantityInitial.Sub(used), req.CostPrice, req.StockDate)
	if err != nil {
		return result, err
	}

	var total decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_batches
		WHERE product_id = $1
	`, productID).Scan(&total)
	if err != nil {
		return result, err
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.BatchID = batchID
	result.ProductID = productID
	result.TotalStock = total
	return result, nil
}

func (s *Store) DeleteStockBatch(ctx context.Context, batchID string) (domain.StockBatchResult, error) {
	var result domain.StockBatchResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var productID string
	var initial, remaining decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT product_id, quantity_initial, quantity_remaining
		FROM stock_batches
		WHERE id = $1
		FOR UPDATE
	`, batchID).Scan(&productID, &initial, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("%w: batch %s", store.ErrNotFound, batchID)
		}
		return result, err
	}

	if initial.Cmp(remaining) != 0 {
		return result, fmt.Errorf("%w: batch %s already partially consumed", store.ErrValidation, batchID)
	}

	// A fully restored batch looks untouched but keeps its item history.
	var referenced bool
	err = pgTx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transaction_items WHERE batch_id = $1)`, batchID).Scan(&referenced)
	if err != nil {
		return result, err
	}
	if referenced {
		return result, fmt.Errorf("%w: batch %s is referenced by transactions", store.ErrValidation, batchID)
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM stock_batches WHERE id = $1`, batchID)
	if err != nil {
		return result, err
	}

	var total decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_batches
		WHERE product_id = $1
	`, productID).Scan(&total)
	if err != nil {
		return result, err
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.BatchID = batchID
	result.ProductID = productID
	result.TotalStock = total
	return result, nil
}

func (s *Store) ProcessSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleResult, error) {
	var result domain.SaleResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Placeholder row first so item inserts have their FK target; totals are
	// finalized just before commit.
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, number, total_amount, total_profit, payment_amount, change_amount,
			type, reference_id, voided, created_at
		)
		VALUES ($1,$2,0,0,$3,0,$4,NULL,false,$5)
	`, draft.ID, draft.Number, draft.PaymentAmount, domain.TxTypeSale, draft.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return result, fmt.Errorf("transaction number collision: %s", draft.Number)
		}
		return result, err
	}

	totalAmount := int64(0)
	totalProfit := int64(0)
	for _, line := range draft.Lines {
		if line.NonBarcode {
			subtotal := mulMoney(line.Quantity, line.SellingPrice)
			_, err = pgTx.ExecContext(ctx, `
				INSERT INTO transaction_items (
					id, transaction_id, product_id, batch_id, name,
					quantity, selling_price, cost_price, subtotal, profit
				)
				VALUES ($1,$2,$3,NULL,$4,$5,$6,0,$7,$7)
			`, uuid.NewString(), draft.ID, nullIfEmpty(line.ProductID), nullIfEmpty(line.Name),
				line.Quantity, line.SellingPrice, subtotal)
			if err != nil {
				return result, err
			}
			totalAmount += subtotal
			totalProfit += subtotal
			continue
		}

		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
			return result, err
		}
		if !exists {
			return result, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}

		batches, err := lockAvailableBatches(ctx, pgTx, line.ProductID)
		if err != nil {
			return result, err
		}
		available := decimal.Zero
		for _, b := range batches {
			available = available.Add(b.QuantityRemaining)
		}
		if available.Cmp(line.Quantity) < 0 {
			return result, &store.StockShortage{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}

		remaining := line.Quantity
		for _, b := range batches {
			if remaining.Sign() == 0 {
				break
			}
			used := remaining
			if used.Cmp(b.QuantityRemaining) > 0 {
				used = b.QuantityRemaining
			}
			_, err = pgTx.ExecContext(ctx, `
				UPDATE stock_batches
				SET quantity_remaining = quantity_remaining - $1
				WHERE id = $2
			`, used, b.ID)
			if err != nil {
				return result, err
			}

			subtotal := mulMoney(used, line.SellingPrice)
			profit := mulMoney(used, line.SellingPrice-b.CostPrice)
			_, err = pgTx.ExecContext(ctx, `
				INSERT INTO transaction_items (
					id, transaction_id, product_id, batch_id, name,
					quantity, selling_price, cost_price, subtotal, profit
				)
				VALUES ($1,$2,$3,$4,NULL,$5,$6,$7,$8,$9)
			`, uuid.NewString(), draft.ID, line.ProductID, b.ID,
				used, line.SellingPrice, b.CostPrice, subtotal, profit)
			if err != nil {
				return result, err
			}
			totalAmount += subtotal
			totalProfit += profit
			remaining = remaining.Sub(used)
		}
		if remaining.Sign() > 0 {
			return result, fmt.Errorf("%w: fifo walk left %s unplaced for product %s", store.ErrConsistency, remaining, line.ProductID)
		}
	}

	changeAmount := draft.PaymentAmount - totalAmount
	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET total_amount = $2, total_profit = $3, change_amount = $4
		WHERE id = $1
	`, draft.ID, totalAmount, totalProfit, changeAmount)
	if err != nil {
		return result, err
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.TransactionID = draft.ID
	result.TransactionNumber = draft.Number
	result.TotalAmount = totalAmount
	result.TotalProfit = totalProfit
	result.ChangeAmount = changeAmount
	return result, nil
}

func (s *Store) VoidSale(ctx context.Context, draft domain.VoidDraft) (domain.VoidResult, error) {
	var result domain.VoidResult

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return result, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var original domain.Transaction
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, number, total_amount, total_profit, payment_amount, change_amount, type, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, draft.OriginalID).Scan(&original.ID, &original.Number, &original.TotalAmount,
		&original.TotalProfit, &original.PaymentAmount, &original.ChangeAmount,
		&original.Type, &original.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("%w: transaction %s", store.ErrNotFound, draft.OriginalID)
		}
		return result, err
	}

	if original.Type != domain.TxTypeSale {
		return result, fmt.Errorf("%w: transaction %s is not a sale", store.ErrVoidNotAllowed, original.ID)
	}

	var alreadyVoided bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE type = $1 AND reference_id = $2
		)
	`, domain.TxTypeVoid, original.ID).Scan(&alreadyVoided)
	if err != nil {
		return result, err
	}
	if alreadyVoided {
		return result, fmt.Errorf("%w: transaction %s already voided", store.ErrVoidNotAllowed, original.ID)
	}

	createdAt := original.CreatedAt.UTC()
	if createdAt.Before(draft.DayStart) || !createdAt.Before(draft.DayEnd) {
		return result, fmt.Errorf("%w: transaction %s outside current business day", store.ErrVoidNotAllowed, original.ID)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET voided = true
		WHERE id = $1
	`, original.ID)
	if err != nil {
		return result, err
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT COALESCE(product_id::text,''), COALESCE(batch_id::text,''), COALESCE(name,''),
			quantity, selling_price, cost_price, subtotal, profit
		FROM transaction_items
		WHERE transaction_id = $1
	`, original.ID)
	if err != nil {
		return result, err
	}
	items := make([]domain.TransactionItem, 0, 8)
	for itemRows.Next() {
		var item domain.TransactionItem
		if err := itemRows.Scan(&item.ProductID, &item.BatchID, &item.Name,
			&item.Quantity, &item.SellingPrice, &item.CostPrice, &item.Subtotal, &item.Profit); err != nil {
			_ = itemRows.Close()
			return result, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return result, err
	}
	_ = itemRows.Close()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, number, total_amount, total_profit, payment_amount, change_amount,
			type, reference_id, voided, created_at
		)
		VALUES ($1,$2,$3,$4,0,0,$5,$6,false,$7)
	`, draft.ID, draft.Number, -original.TotalAmount, -original.TotalProfit,
		domain.TxTypeVoid, original.ID, draft.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return result, fmt.Errorf("transaction number collision: %s", draft.Number)
		}
		return result, err
	}

	for _, item := range items {
		// Manual lines never consumed stock, so only batch-backed lines are
		// restored. The guard clause keeps remaining <= initial: a failed
		// update means the ledger no longer matches the sale and the whole
		// void must abort.
		if item.BatchID != "" {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE stock_batches
				SET quantity_remaining = quantity_remaining + $1
				WHERE id = $2 AND quantity_remaining + $1 <= quantity_initial
			`, item.Quantity, item.BatchID)
			if err != nil {
				return result, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return result, err
			}
			if affected == 0 {
				return result, fmt.Errorf("%w: restoring batch %s would exceed its initial quantity", store.ErrConsistency, item.BatchID)
			}
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (
				id, transaction_id, product_id, batch_id, name,
				quantity, selling_price, cost_price, subtotal, profit
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, uuid.NewString(), draft.ID, nullIfEmpty(item.ProductID), nullIfEmpty(item.BatchID),
			nullIfEmpty(item.Name), item.Quantity.Neg(), item.SellingPrice, item.CostPrice,
			-item.Subtotal, -item.Profit)
		if err != nil {
			return result, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return result, err
	}

	result.VoidTransactionID = draft.ID
	result.VoidTransactionNumber = draft.Number
	return result, nil
}

func (s *Store) GetTransactionDetail(ctx context.Context, id string) (domain.TransactionDetail, error) {
	var detail domain.TransactionDetail

	var referenceID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.number, t.total_amount, t.total_profit, t.payment_amount,
			t.change_amount, t.type, t.reference_id, t.created_at,
			EXISTS (SELECT 1 FROM transactions v WHERE v.type = $2 AND v.reference_id = t.id)
		FROM transactions t
		WHERE t.id = $1
	`, id, domain.TxTypeVoid).Scan(&detail.Transaction.ID, &detail.Transaction.Number,
		&detail.Transaction.TotalAmount, &detail.Transaction.TotalProfit,
		&detail.Transaction.PaymentAmount, &detail.Transaction.ChangeAmount,
		&detail.Transaction.Type, &referenceID, &detail.Transaction.CreatedAt,
		&detail.Transaction.Voided)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return detail, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return detail, err
	}
	if referenceID.Valid {
		detail.Transaction.ReferenceID = referenceID.String
	}
	detail.Transaction.CreatedAt = detail.Transaction.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.id, ti.transaction_id, COALESCE(ti.product_id::text,''),
			COALESCE(ti.batch_id::text,''), COALESCE(p.name, ti.name, 'Item Manual'),
			ti.quantity, ti.selling_price, ti.cost_price, ti.subtotal, ti.profit
		FROM transaction_items ti
		LEFT JOIN products p ON p.id = ti.product_id
		WHERE ti.transaction_id = $1
		ORDER BY ti.id
	`, id)
	if err != nil {
		return detail, err
	}
	defer rows.Close()

	detail.Items = make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.BatchID,
			&item.Name, &item.Quantity, &item.SellingPrice, &item.CostPrice, &item.Subtotal, &item.Profit); err != nil {
			return detail, err
		}
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return detail, err
	}
	return detail, nil
}

func (s *Store) ListTransactions(ctx context.Context, from, to time.Time) ([]domain.TransactionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.number, t.total_amount, t.created_at,
			EXISTS (SELECT 1 FROM transactions v WHERE v.type = $3 AND v.reference_id = t.id)
		FROM transactions t
		WHERE t.type = $4
			AND t.created_at >= $1
			AND t.created_at < $2
		ORDER BY t.created_at DESC
	`, from, to, domain.TxTypeVoid, domain.TxTypeSale)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.TransactionSummary, 0, 64)
	for rows.Next() {
		var t domain.TransactionSummary
		if err := rows.Scan(&t.ID, &t.Number, &t.TotalAmount, &t.CreatedAt, &t.Voided); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		summaries = append(summaries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// notVoidedSales is the filter every report shares: sale rows that no void
// transaction references. The denormalized voided column is deliberately not
// consulted here.
const notVoidedSales = `
	t.type = 'sale'
	AND NOT EXISTS (
		SELECT 1 FROM transactions v
		WHERE v.type = 'void' AND v.reference_id = t.id
	)
`

func (s *Store) DailySummary(ctx context.Context, dayStart, dayEnd time.Time) (domain.DailySummary, error) {
	var summary domain.DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(t.total_amount),0)::bigint,
			COALESCE(SUM(t.total_profit),0)::bigint
		FROM transactions t
		WHERE `+notVoidedSales+`
			AND t.created_at >= $1
			AND t.created_at < $2
	`, dayStart, dayEnd).Scan(&summary.TotalTransactions, &summary.TotalRevenue, &summary.TotalProfit)
	if err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Store) HourlyAnalytics(ctx context.Context, dayStart, dayEnd time.Time, offset time.Duration) ([]domain.HourlyBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			to_char(t.created_at + make_interval(secs => $3), 'HH24') AS hour,
			COUNT(*)::bigint,
			COALESCE(SUM(t.total_amount),0)::bigint,
			COALESCE(SUM(t.total_profit),0)::bigint
		FROM transactions t
		WHERE `+notVoidedSales+`
			AND t.created_at >= $1
			AND t.created_at < $2
		GROUP BY hour
		ORDER BY hour
	`, dayStart, dayEnd, offset.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]domain.HourlyBucket, 0, 24)
	for rows.Next() {
		var b domain.HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Transactions, &b.Revenue, &b.Profit); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Store) TopProducts(ctx context.Context, dayStart, dayEnd time.Time, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(p.name, ti.name, 'Item Manual'), SUM(ti.quantity)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		LEFT JOIN products p ON p.id = ti.product_id
		WHERE `+notVoidedSales+`
			AND t.created_at >= $1
			AND t.created_at < $2
			AND ti.quantity > 0
		GROUP BY 1
		ORDER BY 2 DESC
		LIMIT $3
	`, dayStart, dayEnd, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var tp domain.TopProduct
		if err := rows.Scan(&tp.ProductName, &tp.TotalQty); err != nil {
			return nil, err
		}
		top = append(top, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top, nil
}

func (s *Store) LowStockProducts(ctx context.Context, limit int) ([]domain.LowStockProduct, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, p.unit, p.min_stock, COALESCE(SUM(b.quantity_remaining), 0) AS total
		FROM products p
		LEFT JOIN stock_batches b ON b.product_id = p.id
		WHERE p.active = true AND p.non_barcode = false
		GROUP BY p.id, p.name, p.unit, p.min_stock
		HAVING COALESCE(SUM(b.quantity_remaining), 0) <= p.min_stock
		ORDER BY total ASC, p.name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	low := make([]domain.LowStockProduct, 0, limit)
	for rows.Next() {
		var lp domain.LowStockProduct
		if err := rows.Scan(&lp.ProductName, &lp.Unit, &lp.MinStock, &lp.TotalStock); err != nil {
			return nil, err
		}
		low = append(low, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return low, nil
}

func (s *Store) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.ProductSalesSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(ti.product_id::text,''), COALESCE(p.barcode,''),
			COALESCE(p.name, ti.name, 'Item Manual'), COALESCE(c.name,''),
			SUM(ti.quantity),
			COALESCE(SUM(ti.subtotal),0)::bigint,
			COALESCE(SUM(ti.profit),0)::bigint
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		LEFT JOIN products p ON p.id = ti.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE `+notVoidedSales+`
			AND t.created_at >= $1
			AND t.created_at < $2
			AND ti.quantity > 0
		GROUP BY 1, 2, 3, 4
		ORDER BY 6 DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.ProductSalesSummary, 0, 64)
	for rows.Next() {
		var ps domain.ProductSalesSummary
		if err := rows.Scan(&ps.ProductID, &ps.Barcode, &ps.ProductName, &ps.CategoryName,
			&ps.TotalQty, &ps.TotalRevenue, &ps.TotalProfit); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ProductSalesDetail(ctx context.Context, productID string, from, to time.Time) (domain.ProductSalesDetail, error) {
	var detail domain.ProductSalesDetail

	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, COALESCE(p.barcode,''), p.name, COALESCE(c.name,'')
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, productID).Scan(&detail.Product.ProductID, &detail.Product.Barcode,
		&detail.Product.ProductName, &detail.Product.CategoryName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return detail, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		return detail, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.number, t.created_at, ti.quantity, ti.subtotal, ti.profit
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE `+notVoidedSales+`
			AND ti.product_id = $1
			AND t.created_at >= $2
			AND t.created_at < $3
			AND ti.quantity > 0
		ORDER BY t.created_at ASC
	`, productID, from, to)
	if err != nil {
		return detail, err
	}
	defer rows.Close()

	detail.Product.TotalQty = decimal.Zero
	detail.Items = make([]domain.ProductSalesItem, 0, 32)
	for rows.Next() {
		var item domain.ProductSalesItem
		if err := rows.Scan(&item.TransactionID, &item.Number, &item.CreatedAt,
			&item.Quantity, &item.Subtotal, &item.Profit); err != nil {
			return detail, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		detail.Product.TotalQty = detail.Product.TotalQty.Add(item.Quantity)
		detail.Product.TotalRevenue += item.Subtotal
		detail.Product.TotalProfit += item.Profit
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return detail, err
	}
	return detail, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
		}
		return u, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO NOTHING
	`, u.Username, u.Password, u.Role, u.Active, u.CreatedAt)
	return err
}

// mulMoney computes qty * unit price rounded to the nearest smallest currency
// unit; fractional quantities of weighed goods make rounding unavoidable.
func mulMoney(qty decimal.Decimal, price int64) int64 {
	return qty.Mul(decimal.NewFromInt(price)).Round(0).IntPart()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
