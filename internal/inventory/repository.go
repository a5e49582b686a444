package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const productColumns = `id, name, category, cost_price, sell_price, quantity, low_stock_threshold, barcode, owner_id, created_at, updated_at`

const barcodeConstraint = "products_barcode_key"

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// NewTxRepository binds a Repository to an open transaction owned by the caller.
func NewTxRepository(tx db.DBTX) *Repository {
	return &Repository{db: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// FindByID loads one product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// FindManyByIDs loads the products matching ids. Missing ids are simply absent
// from the result.
func (r *Repository) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// FindByNameCategory looks up the product identified by (name, category).
func (r *Repository) FindByNameCategory(ctx context.Context, name, category string) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE name = $1 AND category = $2 LIMIT 1`, name, category)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// FindByBarcode looks up a product by barcode.
func (r *Repository) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Create inserts p and fills its timestamps.
func (r *Repository) Create(ctx context.Context, p *Product) error {
	const q = `INSERT INTO products (id, name, category, cost_price, sell_price, quantity, low_stock_threshold, barcode, owner_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, q, p.ID, p.Name, p.Category, p.CostPrice, p.SellPrice, p.Quantity, p.LowStockThreshold, p.Barcode, p.OwnerID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, barcodeConstraint) {
			return fmt.Errorf("barcode %s already exists: %w", p.Barcode, shared.ErrConflict)
		}
		return err
	}
	return nil
}

// Save overwrites the descriptive attributes of p. Quantity only moves through
// Restock and DecrementStock; the stored value is copied back into p.
func (r *Repository) Save(ctx context.Context, p *Product) error {
	const q = `UPDATE products
SET name = $2, category = $3, cost_price = $4, sell_price = $5,
    low_stock_threshold = $6, barcode = $7, updated_at = NOW()
WHERE id = $1
RETURNING quantity, updated_at`
	err := r.db.QueryRow(ctx, q, p.ID, p.Name, p.Category, p.CostPrice, p.SellPrice, p.LowStockThreshold, p.Barcode).
		Scan(&p.Quantity, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product %s: %w", p.ID, shared.ErrNotFound)
		}
		if db.IsUniqueViolation(err, barcodeConstraint) {
			return fmt.Errorf("barcode %s already exists: %w", p.Barcode, shared.ErrConflict)
		}
		return err
	}
	return nil
}

// Delete removes a product that no sale references.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("product %s is referenced by sales: %w", id, shared.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// List returns a page of products, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var conditions []string
	var args []any
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR barcode ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// DecrementStock subtracts qty only while enough stock remains. ok is false
// when the row exists but holds less than qty.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (remaining int, ok bool, err error) {
	const q = `UPDATE products SET quantity = quantity - $2, updated_at = NOW()
WHERE id = $1 AND quantity >= $2
RETURNING quantity`
	err = r.db.QueryRow(ctx, q, id, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return remaining, true, nil
}

// Restock atomically adds qty and returns the updated product.
func (r *Repository) Restock(ctx context.Context, id uuid.UUID, qty int) (Product, error) {
	row := r.db.QueryRow(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1 RETURNING `+productColumns, id, qty)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// ListLowStock returns products whose quantity is under their threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE quantity < low_stock_threshold ORDER BY quantity, name`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var owner *string
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.CostPrice, &p.SellPrice, &p.Quantity,
		&p.LowStockThreshold, &p.Barcode, &owner, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if owner != nil {
		p.OwnerID = *owner
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
