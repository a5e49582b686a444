package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ErrDuplicateIdempotencyKey is returned by SaleRepository.Create when the key
// was already used by another sale.
var ErrDuplicateIdempotencyKey = errors.New("sales: idempotency key already used")

// ProductRepository is the product access needed to record a sale.
type ProductRepository interface {
	FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (inventory.Product, error)
	// DecrementStock subtracts qty only if at least qty remains; ok reports
	// whether the update happened.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (remaining int, ok bool, err error)
}

// CustomerRepository is the ledger access needed to record a sale.
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (customers.Customer, error)
	AdjustPending(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	AppendSaleRef(ctx context.Context, id, saleID uuid.UUID) error
}

// SaleRepository persists sales.
type SaleRepository interface {
	Create(ctx context.Context, s *Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (Sale, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Sale, error)
	FindByDateRange(ctx context.Context, r DateRange) ([]Sale, error)
	List(ctx context.Context, filter ListSalesFilter) ([]Sale, int, error)
}

// TxRepositories are bound to one transaction.
type TxRepositories struct {
	Products  ProductRepository
	Customers CustomerRepository
	Sales     SaleRepository
}

// Store provides the transactional scope spanning product, sale and customer writes.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepositories) error) error
	Sales() SaleRepository
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction so that the conditional
// stock decrement re-checks its predicate after waiting on a concurrent writer.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, TxRepositories) error) error {
	return db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, TxRepositories{
			Products:  inventory.NewTxRepository(tx),
			Customers: customers.NewTxRepository(tx),
			Sales:     &saleRepository{db: tx},
		})
	})
}

// Sales returns a non-transactional sale reader.
func (s *PostgresStore) Sales() SaleRepository {
	return &saleRepository{db: s.pool}
}

const (
	saleColumns           = `id, discount, total, profit, payment_mode, paid_amount, status, customer_id, idempotency_key, created_at`
	idempotencyConstraint = "sales_idempotency_key_key"
)

type saleRepository struct {
	db db.DBTX
}

func (r *saleRepository) Create(ctx context.Context, s *Sale) error {
	const insertSale = `INSERT INTO sales (id, discount, total, profit, payment_mode, paid_amount, status, customer_id, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, insertSale, s.ID, s.Discount, s.Total, s.Profit, string(s.PaymentMode), s.PaidAmount,
		string(s.Status), s.CustomerID, s.IdempotencyKey, s.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, idempotencyConstraint) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	const insertLine = `INSERT INTO sale_lines (sale_id, line_no, product_id, product_name, quantity, unit_price, unit_cost)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, line := range s.Lines {
		if _, err := r.db.Exec(ctx, insertLine, s.ID, i+1, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.UnitCost); err != nil {
			return fmt.Errorf("insert sale line %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (Sale, error) {
	sale, err := scanSale(r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
		}
		return Sale{}, err
	}
	list := []Sale{sale}
	if err := r.attachLines(ctx, list); err != nil {
		return Sale{}, err
	}
	return list[0], nil
}

func (r *saleRepository) FindByIdempotencyKey(ctx context.Context, key string) (Sale, error) {
	sale, err := scanSale(r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	list := []Sale{sale}
	if err := r.attachLines(ctx, list); err != nil {
		return Sale{}, err
	}
	return list[0], nil
}

// FindByDateRange returns sale headers created inside rng. Lines are not loaded.
func (r *saleRepository) FindByDateRange(ctx context.Context, rng DateRange) ([]Sale, error) {
	where, args := rangeConditions(rng, nil, nil)
	rows, err := r.db.Query(ctx, `SELECT `+saleColumns+` FROM sales `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	return collectSales(rows)
}

func (r *saleRepository) List(ctx context.Context, filter ListSalesFilter) ([]Sale, int, error) {
	var conditions []string
	var args []any
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where, args := rangeConditions(filter.Range, conditions, args)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM sales %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	sales, err := collectSales(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachLines(ctx, sales); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (r *saleRepository) attachLines(ctx context.Context, sales []Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(sales))
	index := make(map[uuid.UUID]int, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		index[s.ID] = i
	}
	rows, err := r.db.Query(ctx, `SELECT sale_id, product_id, product_name, quantity, unit_price, unit_cost
FROM sale_lines WHERE sale_id = ANY($1) ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var saleID uuid.UUID
		var line SaleLine
		if err := rows.Scan(&saleID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.UnitCost); err != nil {
			return err
		}
		i := index[saleID]
		sales[i].Lines = append(sales[i].Lines, line)
	}
	return rows.Err()
}

func rangeConditions(rng DateRange, conditions []string, args []any) (string, []any) {
	if rng.Start != nil {
		args = append(args, *rng.Start)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if rng.End != nil {
		args = append(args, *rng.End)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var mode, status string
	err := row.Scan(&s.ID, &s.Discount, &s.Total, &s.Profit, &mode, &s.PaidAmount, &status, &s.CustomerID, &s.IdempotencyKey, &s.CreatedAt)
	if err != nil {
		return Sale{}, err
	}
	s.PaymentMode = PaymentMode(mode)
	s.Status = PaymentStatus(status)
	return s, nil
}

func collectSales(rows pgx.Rows) ([]Sale, error) {
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
