package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Dependencies are the optional collaborators of Service. Nil members are skipped.
type Dependencies struct {
	Cache    *ReportCache
	Events   EventPublisher
	Audit    AuditPort
	LowStock LowStockNotifier
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service coordinates sale creation and reads.
type Service struct {
	store    Store
	cache    *ReportCache
	events   EventPublisher
	audit    AuditPort
	lowStock LowStockNotifier
	metrics  *Metrics
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	reports  singleflight.Group
}

// NewService constructs a sales service.
func NewService(store Store, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		cache:    deps.Cache,
		events:   deps.Events,
		audit:    deps.Audit,
		lowStock: deps.LowStock,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: validator.New(),
		now:      now,
	}
}

// CreateSale records a sale. Stock decrements, the sale row and the customer
// ledger update commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest) (Sale, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.validateRequest(req); err != nil {
		s.metrics.observeRejected(rejectReason(err))
		return Sale{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.Sales().FindByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, shared.ErrNotFound):
			return Sale{}, s.internal(ctx, "create sale", err)
		}
	}

	var sale Sale
	var lowStock []uuid.UUID
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepositories) error {
		var err error
		sale, lowStock, err = s.recordSale(ctx, tx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			existing, ferr := s.store.Sales().FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr != nil {
				return Sale{}, s.internal(ctx, "create sale", ferr)
			}
			return existing, nil
		}
		s.metrics.observeRejected(rejectReason(err))
		if shared.IsDomainError(err) {
			return Sale{}, err
		}
		return Sale{}, s.internal(ctx, "create sale", err)
	}

	s.afterCommit(ctx, sale, lowStock)
	return sale, nil
}

func (s *Service) recordSale(ctx context.Context, tx TxRepositories, req CreateSaleRequest) (Sale, []uuid.UUID, error) {
	products, err := resolveProducts(ctx, tx.Products, req.Lines)
	if err != nil {
		return Sale{}, nil, err
	}
	if req.CustomerID != nil {
		if _, err := tx.Customers.FindByID(ctx, *req.CustomerID); err != nil {
			return Sale{}, nil, err
		}
	}

	requested, err := checkStock(products, req.Lines)
	if err != nil {
		return Sale{}, nil, err
	}

	ids := make([]uuid.UUID, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var lowStock []uuid.UUID
	for _, id := range ids {
		qty := requested[id]
		remaining, ok, err := tx.Products.DecrementStock(ctx, id, qty)
		if err != nil {
			return Sale{}, nil, fmt.Errorf("decrement stock for %s: %w", id, err)
		}
		if !ok {
			current, err := tx.Products.FindByID(ctx, id)
			if err != nil {
				return Sale{}, nil, err
			}
			return Sale{}, nil, &InsufficientStockError{
				ProductID:   id,
				ProductName: current.Name,
				Requested:   qty,
				Available:   current.Quantity,
			}
		}
		if remaining < products[id].LowStockThreshold {
			lowStock = append(lowStock, id)
		}
	}

	pricing, err := CalculateSale(products, req.Lines, req.Discount)
	if err != nil {
		return Sale{}, nil, err
	}
	paid := decimal.Zero
	switch {
	case req.PayInFull:
		paid = pricing.Total
	case req.PaidAmount != nil:
		paid = *req.PaidAmount
	}

	sale := Sale{
		ID:          uuid.New(),
		Lines:       pricing.Lines,
		Discount:    req.Discount,
		Total:       pricing.Total,
		Profit:      pricing.Profit,
		PaymentMode: req.PaymentMode,
		PaidAmount:  paid,
		Status:      ClassifyPayment(pricing.Total, paid),
		CustomerID:  req.CustomerID,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		sale.IdempotencyKey = &key
	}
	if err := tx.Sales.Create(ctx, &sale); err != nil {
		return Sale{}, nil, err
	}

	if sale.CustomerID != nil {
		if delta := sale.Outstanding(); sale.Status != PaymentStatusPaid && !delta.IsZero() {
			if err := tx.Customers.AdjustPending(ctx, *sale.CustomerID, delta); err != nil {
				return Sale{}, nil, err
			}
		}
		if err := tx.Customers.AppendSaleRef(ctx, *sale.CustomerID, sale.ID); err != nil {
			return Sale{}, nil, err
		}
	}
	return sale, lowStock, nil
}

// resolveProducts loads every referenced product, failing on the first id
// (in request order) that does not exist.
func resolveProducts(ctx context.Context, repo ProductRepository, lines []LineRequest) (map[uuid.UUID]inventory.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	found, err := repo.FindManyByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	products := make(map[uuid.UUID]inventory.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
		}
	}
	return products, nil
}

// checkStock walks lines in order keeping a running total per product and
// returns the aggregated quantity per product.
func checkStock(products map[uuid.UUID]inventory.Product, lines []LineRequest) (map[uuid.UUID]int, error) {
	requested := make(map[uuid.UUID]int, len(products))
	for _, line := range lines {
		p := products[line.ProductID]
		requested[p.ID] += line.Quantity
		if requested[p.ID] > p.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   requested[p.ID],
				Available:   p.Quantity,
			}
		}
	}
	return requested, nil
}

func (s *Service) afterCommit(ctx context.Context, sale Sale, lowStock []uuid.UUID) {
	s.metrics.observeCreated(sale)

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, sale.ID.String(), NewSaleCreatedEvent(sale)); err != nil {
			s.logger.WarnContext(ctx, "publish sale event failed", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		meta := map[string]any{
			"total":  sale.Total.String(),
			"status": string(sale.Status),
			"lines":  len(sale.Lines),
		}
		if sale.CustomerID != nil {
			meta["customer_id"] = sale.CustomerID.String()
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "sales:create",
			Entity:   "sale",
			EntityID: sale.ID.String(),
			Meta:     meta,
			At:       sale.CreatedAt,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit sale failed", slog.Any("error", err))
		}
	}
	if len(lowStock) > 0 && s.lowStock != nil {
		if err := s.lowStock.NotifyLowStock(ctx, lowStock); err != nil {
			s.logger.WarnContext(ctx, "enqueue low stock scan failed", slog.Any("error", err))
		}
	}
}

// GetSale returns a single sale.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	sale, err := s.store.Sales().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Sale{}, err
		}
		return Sale{}, s.internal(ctx, "get sale", err)
	}
	return sale, nil
}

// ListSales returns a page of sales, newest first.
func (s *Service) ListSales(ctx context.Context, filter ListSalesFilter) (SalePage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return SalePage{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	sales, total, err := s.store.Sales().List(ctx, filter)
	if err != nil {
		return SalePage{}, s.internal(ctx, "list sales", err)
	}
	if sales == nil {
		sales = []Sale{}
	}
	return SalePage{Data: sales, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// GetReport aggregates sales between the optional date bounds.
func (s *Service) GetReport(ctx context.Context, startDate, endDate string) (Report, error) {
	rng, err := ParseDateRange(startDate, endDate)
	if err != nil {
		return Report{}, err
	}
	return s.ReportForRange(ctx, rng)
}

// reportComputeTimeout bounds a shared report computation, which outlives the
// caller that started it.
const reportComputeTimeout = 30 * time.Second

// ReportForRange aggregates sales in rng, serving from the report cache when
// possible. Identical concurrent requests share one computation.
func (s *Service) ReportForRange(ctx context.Context, rng DateRange) (Report, error) {
	key, err := s.cache.BuildKey(ctx, "sales", "report", rng.cacheToken())
	if err != nil {
		s.logger.WarnContext(ctx, "report cache unavailable", slog.Any("error", err))
		return s.computeReport(ctx, rng)
	}

	ch := s.reports.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportComputeTimeout)
		defer cancel()
		var rep Report
		var loadErr error
		err := s.cache.FetchJSON(ctx, key, &rep, func(ctx context.Context) (any, error) {
			r, err := s.computeReport(ctx, rng)
			loadErr = err
			return r, err
		})
		if loadErr != nil {
			return Report{}, loadErr
		}
		if err != nil {
			s.logger.WarnContext(ctx, "report cache read failed", slog.String("key", key), slog.Any("error", err))
			return s.computeReport(ctx, rng)
		}
		return rep, nil
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) computeReport(ctx context.Context, rng DateRange) (Report, error) {
	sales, err := s.store.Sales().FindByDateRange(ctx, rng)
	if err != nil {
		return Report{}, s.internal(ctx, "sales report", err)
	}
	return Aggregate(sales), nil
}

func (s *Service) validateRequest(req CreateSaleRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", shared.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	for i, line := range req.Lines {
		if line.ProductID == uuid.Nil {
			return fmt.Errorf("%w: line %d has no product", shared.ErrValidation, i+1)
		}
	}
	if req.Discount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", shared.ErrValidation)
	}
	if req.PaidAmount != nil && req.PaidAmount.IsNegative() {
		return fmt.Errorf("%w: paid amount must not be negative", shared.ErrValidation)
	}
	if !isCents(req.Discount) {
		return fmt.Errorf("%w: discount has more than %d decimal places", shared.ErrValidation, moneyScale)
	}
	if req.PaidAmount != nil && !isCents(*req.PaidAmount) {
		return fmt.Errorf("%w: paid amount has more than %d decimal places", shared.ErrValidation, moneyScale)
	}
	return nil
}

// moneyScale matches the NUMERIC(18,2) money columns.
const moneyScale = 2

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyScale))
}

// internal logs err and returns an opaque error for the caller.
func (s *Service) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, op+" failed", slog.Any("error", err))
	return fmt.Errorf("%s: %w", op, shared.ErrInternal)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
