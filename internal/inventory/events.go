package inventory

import (
	"time"

	"github.com/google/uuid"
)

// LowStockAlert describes a product whose quantity fell under its threshold.
type LowStockAlert struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
	SeenAt    time.Time `json:"seen_at"`
}

// NewLowStockAlert snapshots p.
func NewLowStockAlert(p Product, at time.Time) LowStockAlert {
	return LowStockAlert{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  p.Quantity,
		Threshold: p.LowStockThreshold,
		SeenAt:    at,
	}
}
