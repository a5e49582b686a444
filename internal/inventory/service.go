package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Store is the persistence surface used by the catalog service.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (Product, error)
	FindByNameCategory(ctx context.Context, name, category string) (Product, error)
	FindByBarcode(ctx context.Context, barcode string) (Product, error)
	Create(ctx context.Context, p *Product) error
	Save(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Restock(ctx context.Context, id uuid.UUID, qty int) (Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Store
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New(), now: time.Now}
}

// CreateProduct adds a product to the catalog. When a product with the same
// name and category exists its quantity is increased and its prices replaced.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, bool, error) {
	input.Name = normalizeLabel(input.Name)
	input.Category = normalizeLabel(input.Category)
	input.Barcode = strings.TrimSpace(input.Barcode)
	if err := s.validateStruct(input); err != nil {
		return Product{}, false, err
	}
	if err := validatePrices(input.CostPrice, input.SellPrice); err != nil {
		return Product{}, false, err
	}

	var product Product
	merged := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Store) error {
		existing, err := repo.FindByNameCategory(ctx, input.Name, input.Category)
		switch {
		case err == nil:
			existing.CostPrice = input.CostPrice
			existing.SellPrice = input.SellPrice
			if err := repo.Save(ctx, &existing); err != nil {
				return err
			}
			if input.Quantity > 0 {
				if existing, err = repo.Restock(ctx, existing.ID, input.Quantity); err != nil {
					return err
				}
			}
			product = existing
			merged = true
			return nil
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}

		barcode := input.Barcode
		if barcode == "" {
			barcode = GenerateBarcode()
		}
		if _, err := repo.FindByBarcode(ctx, barcode); err == nil {
			return fmt.Errorf("barcode %s already exists: %w", barcode, shared.ErrConflict)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		threshold := DefaultLowStockThreshold
		if input.LowStockThreshold != nil {
			threshold = *input.LowStockThreshold
		}
		product = Product{
			ID:                uuid.New(),
			Name:              input.Name,
			Category:          input.Category,
			CostPrice:         input.CostPrice,
			SellPrice:         input.SellPrice,
			Quantity:          input.Quantity,
			LowStockThreshold: threshold,
			Barcode:           barcode,
			OwnerID:           input.OwnerID,
		}
		return repo.Create(ctx, &product)
	})
	if err != nil {
		return Product{}, false, err
	}
	s.record(ctx, "products:create", product.ID, map[string]any{"merged": merged, "quantity": product.Quantity})
	return product, merged, nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.FindByID(ctx, id)
}

// ListProducts returns a page of products, newest first.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// UpdateProduct applies a partial update. Quantity is changed only through
// restocks and sales.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (Product, error) {
	if input.Name != nil {
		name := normalizeLabel(*input.Name)
		input.Name = &name
	}
	if input.Category != nil {
		category := normalizeLabel(*input.Category)
		input.Category = &category
	}
	if err := s.validateStruct(input); err != nil {
		return Product{}, err
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Store) error {
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if input.Barcode != nil && *input.Barcode != current.Barcode {
			other, err := repo.FindByBarcode(ctx, *input.Barcode)
			if err == nil && other.ID != id {
				return fmt.Errorf("barcode %s already exists: %w", *input.Barcode, shared.ErrConflict)
			}
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			current.Barcode = *input.Barcode
		}
		if input.Name != nil {
			current.Name = *input.Name
		}
		if input.Category != nil {
			current.Category = *input.Category
		}
		if input.CostPrice != nil {
			current.CostPrice = *input.CostPrice
		}
		if input.SellPrice != nil {
			current.SellPrice = *input.SellPrice
		}
		if input.LowStockThreshold != nil {
			current.LowStockThreshold = *input.LowStockThreshold
		}
		if err := validatePrices(current.CostPrice, current.SellPrice); err != nil {
			return err
		}
		if err := repo.Save(ctx, &current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "products:update", id, nil)
	return product, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "products:delete", id, nil)
	return nil
}

// Restock adds stock to a product.
func (s *Service) Restock(ctx context.Context, id uuid.UUID, input RestockInput) (Product, error) {
	if err := s.validateStruct(input); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Restock(ctx, id, input.Quantity)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "products:restock", id, map[string]any{"added": input.Quantity, "quantity": product.Quantity})
	return product, nil
}

// LowStock lists products whose quantity is under their threshold.
func (s *Service) LowStock(ctx context.Context) ([]LowStockAlert, error) {
	products, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	alerts := make([]LowStockAlert, 0, len(products))
	for _, p := range products {
		alerts = append(alerts, NewLowStockAlert(p, now))
	}
	return alerts, nil
}

// GenerateBarcode returns a random 10 character barcode.
func GenerateBarcode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:10])
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", shared.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

// normalizeLabel trims s and converts it to NFC so that names typed on
// different keyboards or imported from files merge into one product.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func validatePrices(cost, sell decimal.Decimal) error {
	if cost.IsNegative() {
		return fmt.Errorf("%w: cost_price must be >= 0", shared.ErrValidation)
	}
	if sell.IsNegative() {
		return fmt.Errorf("%w: sell_price must be >= 0", shared.ErrValidation)
	}
	if !cost.Equal(cost.Round(2)) || !sell.Equal(sell.Round(2)) {
		return fmt.Errorf("%w: prices allow at most 2 decimal places", shared.ErrValidation)
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "product", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
