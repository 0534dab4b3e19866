package domain

import (
	"github.com/shopspring/decimal"
)

const (
	// DefaultShippingCap — верхняя граница доставки в минимальных денежных единицах.
	DefaultShippingCap int64 = 100
)

// DefaultShippingRate — доля подытога, начисляемая за доставку.
var DefaultShippingRate = decimal.RequireFromString("0.05")

// Totals — суммы заказа, рассчитанные в момент оформления.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

// PricingPolicy задаёт правило расчёта доставки.
type PricingPolicy struct {
	ShippingRate decimal.Decimal
	ShippingCap  int64
}

// DefaultPricing возвращает правило 5% с ограничением 100.
func DefaultPricing() PricingPolicy {
	return PricingPolicy{
		ShippingRate: DefaultShippingRate,
		ShippingCap:  DefaultShippingCap,
	}
}

// Compute считает subtotal, shipping = min(cap, round(subtotal × rate)) и total.
// Для пустого подытога доставка равна нулю.
func (p PricingPolicy) Compute(cart Cart) Totals {
	subtotal := cart.Subtotal()
	var shipping int64
	if subtotal > 0 {
		// Round(0) округляет половину от нуля, для положительных сумм это совпадает с округлением вверх.
		shipping = decimal.NewFromInt(subtotal).Mul(p.ShippingRate).Round(0).IntPart()
		if p.ShippingCap >= 0 && shipping > p.ShippingCap {
			shipping = p.ShippingCap
		}
	}
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
	}
}
