package sales

import "github.com/shopspring/decimal"

// ClassifyPayment derives the payment status. A zero paid amount is always
// pending, including a zero total.
func ClassifyPayment(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.IsZero():
		return PaymentStatusPending
	case paid.GreaterThanOrEqual(total):
		return PaymentStatusPaid
	default:
		return PaymentStatusPartial
	}
}
