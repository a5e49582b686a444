package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies when a product is created without one.
const DefaultLowStockThreshold = 5

// Product is a sellable catalog item with its on-hand quantity.
type Product struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Barcode           string          `json:"barcode"`
	OwnerID           string          `json:"owner_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsLowStock reports whether the on-hand quantity fell under the threshold.
func (p Product) IsLowStock() bool {
	return p.Quantity < p.LowStockThreshold
}

// CreateProductInput describes a new catalog entry. Creating a product whose
// name and category already exist adds to that product's quantity instead.
type CreateProductInput struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"required,max=100"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	Quantity          int             `json:"quantity" validate:"gte=0"`
	LowStockThreshold *int            `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Barcode           string          `json:"barcode,omitempty" validate:"omitempty,max=64"`
	OwnerID           string          `json:"owner_id,omitempty" validate:"omitempty,max=64"`
}

// UpdateProductInput carries partial updates.
type UpdateProductInput struct {
	Name              *string          `json:"name,omitempty" validate:"omitnil,min=1,max=200"`
	Category          *string          `json:"category,omitempty" validate:"omitnil,min=1,max=100"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	SellPrice         *decimal.Decimal `json:"sell_price,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Barcode           *string          `json:"barcode,omitempty" validate:"omitempty,min=1,max=64"`
}

// RestockInput adds quantity to an existing product.
type RestockInput struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Category string
	Search   string
	Page     int
	PerPage  int
}
