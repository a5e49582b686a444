package sales

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Pricing is the output of CalculateSale.
type Pricing struct {
	Total  decimal.Decimal
	Profit decimal.Decimal
	Lines  []SaleLine
}

// CalculateSale prices lines against the resolved products. The discount is
// subtracted once from the gross total and once from the gross profit, each
// result clamped at zero. Lines keep request order.
func CalculateSale(products map[uuid.UUID]inventory.Product, lines []LineRequest, discount decimal.Decimal) (Pricing, error) {
	gross := decimal.Zero
	grossProfit := decimal.Zero
	out := make([]SaleLine, 0, len(lines))

	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return Pricing{}, fmt.Errorf("product %s: %w", line.ProductID, shared.ErrNotFound)
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		gross = gross.Add(p.SellPrice.Mul(qty))
		grossProfit = grossProfit.Add(p.SellPrice.Sub(p.CostPrice).Mul(qty))
		out = append(out, SaleLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.SellPrice,
			UnitCost:    p.CostPrice,
		})
	}

	return Pricing{
		Total:  clampZero(gross.Sub(discount)),
		Profit: clampZero(grossProfit.Sub(discount)),
		Lines:  out,
	}, nil
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
