package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer carries contact details and the outstanding-balance ledger.
type Customer struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Phone         *string         `json:"phone,omitempty"`
	Email         *string         `json:"email,omitempty"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	SaleIDs       []uuid.UUID     `json:"sale_ids"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Stats summarises a customer's purchase history.
type Stats struct {
	SalesCount       int             `json:"sales_count"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date"`
}

// Detail is a customer together with its purchase stats.
type Detail struct {
	Customer
	Stats
}

// PaymentFilter selects customers by outstanding balance.
type PaymentFilter string

const (
	// PaymentFilterAll keeps every customer.
	PaymentFilterAll PaymentFilter = ""
	// PaymentFilterPaid keeps customers without outstanding balance.
	PaymentFilterPaid PaymentFilter = "paid"
	// PaymentFilterPending keeps customers that still owe money.
	PaymentFilterPending PaymentFilter = "pending"
)

// PaymentSummary reports per-customer settlement state.
type PaymentSummary struct {
	CustomerID    uuid.UUID       `json:"customer_id"`
	Name          string          `json:"name"`
	TotalSales    int             `json:"total_sales"`
	PaidSales     int             `json:"paid_sales"`
	PendingSales  int             `json:"pending_sales"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
}

// CreateCustomerInput describes a new customer.
type CreateCustomerInput struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,min=3,max=50"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
}

// UpdateCustomerInput changes contact details. Nil fields are left alone; an
// empty phone or email clears it.
type UpdateCustomerInput struct {
	Name  *string `json:"name,omitempty" validate:"omitnil,min=1,max=200"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,min=3,max=50"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
}

// ListFilter pages through customers.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}
