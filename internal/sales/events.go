package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventSaleCreated is the type tag carried by SaleCreatedEvent.
const EventSaleCreated = "sale.created"

// EventPublisher delivers integration events keyed by aggregate id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// SaleCreatedEvent is emitted once a sale has been committed.
type SaleCreatedEvent struct {
	Type        string          `json:"type"`
	SaleID      uuid.UUID       `json:"sale_id"`
	CustomerID  *uuid.UUID      `json:"customer_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Profit      decimal.Decimal `json:"profit"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Status      PaymentStatus   `json:"status"`
	PaymentMode PaymentMode     `json:"payment_mode"`
	Lines       []SaleLine      `json:"lines"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewSaleCreatedEvent builds the event payload for s.
func NewSaleCreatedEvent(s Sale) SaleCreatedEvent {
	return SaleCreatedEvent{
		Type:        EventSaleCreated,
		SaleID:      s.ID,
		CustomerID:  s.CustomerID,
		Total:       s.Total,
		Profit:      s.Profit,
		PaidAmount:  s.PaidAmount,
		Status:      s.Status,
		PaymentMode: s.PaymentMode,
		Lines:       s.Lines,
		OccurredAt:  s.CreatedAt,
	}
}

// LowStockNotifier schedules a low-stock scan for the given products.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, productIDs []uuid.UUID) error
}
