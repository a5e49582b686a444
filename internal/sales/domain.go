package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// PaymentMode records how the customer intends to settle.
type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "cash"
	PaymentModeCredit PaymentMode = "credit"
)

// PaymentStatus is derived from (total, paid amount) at creation time.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPending PaymentStatus = "pending"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusPartial, PaymentStatusPending:
		return true
	}
	return false
}

// Sale is an immutable record of a completed purchase.
type Sale struct {
	ID             uuid.UUID       `json:"id"`
	Lines          []SaleLine      `json:"lines"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Profit         decimal.Decimal `json:"profit"`
	PaymentMode    PaymentMode     `json:"payment_mode"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         PaymentStatus   `json:"status"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outstanding is the amount still owed on the sale.
func (s Sale) Outstanding() decimal.Decimal {
	if s.Status == PaymentStatusPaid {
		return decimal.Zero
	}
	return s.Total.Sub(s.PaidAmount)
}

// SaleLine snapshots product pricing at sale time.
type SaleLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// LineTotal is UnitPrice × Quantity.
func (l SaleLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineRequest is one requested line item.
type LineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity" validate:"gte=1"`
}

// CreateSaleRequest is the input to CreateSale. When PayInFull is set the
// paid amount equals the computed total and PaidAmount is ignored.
type CreateSaleRequest struct {
	Lines          []LineRequest    `json:"products" validate:"required,min=1,max=500,dive"`
	Discount       decimal.Decimal  `json:"discount"`
	PaymentMode    PaymentMode      `json:"payment_mode" validate:"required,oneof=cash credit"`
	CustomerID     *uuid.UUID       `json:"customer_id,omitempty"`
	PaidAmount     *decimal.Decimal `json:"paid_amount,omitempty"`
	PayInFull      bool             `json:"pay_now"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"max=128"`
}

// ListSalesFilter narrows ListSales.
type ListSalesFilter struct {
	CustomerID *uuid.UUID
	Status     PaymentStatus
	Range      DateRange
	Page       int
	PerPage    int
}

// SalePage is one page of sales, newest first.
type SalePage struct {
	Data       []Sale            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// Report is the numeric rollup over a date range.
type Report struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	SalesCount   int             `json:"sales_count"`
}

// InsufficientStockError names the product that could not cover a line.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}
