package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	FindByID(ctx context.Context, id uuid.UUID) (Customer, error)
	FindByContact(ctx context.Context, email, phone *string) (Customer, error)
	Create(ctx context.Context, c *Customer) error
	Save(ctx context.Context, c *Customer) error
	List(ctx context.Context, filter ListFilter) ([]Detail, int, error)
	Stats(ctx context.Context, id uuid.UUID) (Stats, error)
	PaymentSummaries(ctx context.Context, filter PaymentFilter) ([]PaymentSummary, error)
	AdjustPending(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	AppendSaleRef(ctx context.Context, id, saleID uuid.UUID) error
}

const customerColumns = `c.id, c.name, c.phone, c.email, c.pending_amount, c.sale_ids, c.created_at, c.updated_at`

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// NewTxRepository binds the repository to a transaction owned by the caller.
func NewTxRepository(tx db.DBTX) Repository {
	return &repository{db: tx}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.id = $1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) FindByContact(ctx context.Context, email, phone *string) (Customer, error) {
	if email == nil && phone == nil {
		return Customer{}, shared.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c
WHERE ($1::text IS NOT NULL AND c.email = $1) OR ($2::text IS NOT NULL AND c.phone = $2)
LIMIT 1`, email, phone)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, c *Customer) error {
	const q = `INSERT INTO customers (id, name, phone, email, pending_amount, sale_ids)
VALUES ($1, $2, $3, $4, 0, '{}')
RETURNING pending_amount, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, c.ID, c.Name, c.Phone, c.Email).Scan(&c.PendingAmount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("customer already exists: %w", shared.ErrConflict)
		}
		return err
	}
	c.SaleIDs = []uuid.UUID{}
	return nil
}

// Save writes contact details. The balance and sale references are only
// changed through AdjustPending and AppendSaleRef.
func (r *repository) Save(ctx context.Context, c *Customer) error {
	const q = `UPDATE customers SET name = $2, phone = $3, email = $4, updated_at = NOW()
WHERE id = $1
RETURNING pending_amount, sale_ids, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, c.ID, c.Name, c.Phone, c.Email).Scan(&c.PendingAmount, &c.SaleIDs, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("customer %s: %w", c.ID, shared.ErrNotFound)
		}
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("contact already used by another customer: %w", shared.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Detail, int, error) {
	where := ""
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = "WHERE c.name ILIKE $1 OR c.email ILIKE $1 OR c.phone ILIKE $1"
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers c "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(s.sales_count, 0), COALESCE(s.total_spent, 0), s.last_purchase
		FROM customers c
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS sales_count, SUM(total) AS total_spent, MAX(created_at) AS last_purchase
			FROM sales WHERE customer_id = c.id
		) s ON TRUE
		%s
		ORDER BY c.created_at DESC, c.id
		LIMIT $%d OFFSET $%d
	`, customerColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var details []Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Email, &d.PendingAmount, &d.SaleIDs, &d.CreatedAt, &d.UpdatedAt,
			&d.SalesCount, &d.TotalSpent, &d.LastPurchaseDate); err != nil {
			return nil, 0, err
		}
		details = append(details, d)
	}
	return details, total, rows.Err()
}

func (r *repository) Stats(ctx context.Context, id uuid.UUID) (Stats, error) {
	var st Stats
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0), MAX(created_at) FROM sales WHERE customer_id = $1`, id).
		Scan(&st.SalesCount, &st.TotalSpent, &st.LastPurchaseDate)
	return st, err
}

func (r *repository) PaymentSummaries(ctx context.Context, filter PaymentFilter) ([]PaymentSummary, error) {
	where := ""
	switch filter {
	case PaymentFilterPaid:
		where = "WHERE c.pending_amount = 0"
	case PaymentFilterPending:
		where = "WHERE c.pending_amount > 0"
	}
	query := fmt.Sprintf(`
		SELECT c.id, c.name,
		       COUNT(s.id),
		       COUNT(s.id) FILTER (WHERE s.status = 'paid'),
		       COUNT(s.id) FILTER (WHERE s.status <> 'paid'),
		       c.pending_amount
		FROM customers c
		LEFT JOIN sales s ON s.customer_id = c.id
		%s
		GROUP BY c.id
		ORDER BY c.name, c.id
	`, where)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentSummary
	for rows.Next() {
		var ps PaymentSummary
		if err := rows.Scan(&ps.CustomerID, &ps.Name, &ps.TotalSales, &ps.PaidSales, &ps.PendingSales, &ps.PendingAmount); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// AdjustPending adds delta to the outstanding balance in a single statement.
func (r *repository) AdjustPending(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET pending_amount = pending_amount + $2, updated_at = NOW() WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// AppendSaleRef records saleID on the customer in a single statement.
func (r *repository) AppendSaleRef(ctx context.Context, id, saleID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET sale_ids = array_append(sale_ids, $2), updated_at = NOW() WHERE id = $1`, id, saleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.PendingAmount, &c.SaleIDs, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
