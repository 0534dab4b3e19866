package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// PurchaseOrder — запись об оформленном заказе. После создания не изменяется:
// позиции копируются из корзины, суммы считаются один раз при оформлении.
type PurchaseOrder struct {
	ID       string         `json:"id"`
	Items    []CartLineItem `json:"items"`
	Date     time.Time      `json:"date"`
	Subtotal int64          `json:"subtotal"`
	Shipping int64          `json:"shipping"`
	Total    int64          `json:"total"`
}

// NewPurchaseOrder создаёт заказ из снимка корзины.
func NewPurchaseOrder(id string, cart Cart, date time.Time, totals Totals) PurchaseOrder {
	return PurchaseOrder{
		ID:       id,
		Items:    cart.Clone(),
		Date:     date.UTC(),
		Subtotal: totals.Subtotal,
		Shipping: totals.Shipping,
		Total:    totals.Total,
	}
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o PurchaseOrder) Clone() PurchaseOrder {
	o.Items = Cart(o.Items).Clone()
	return o
}

// UnmarshalJSON принимает id заказа как строку или число (локально сгенерированные id-таймстемпы).
func (o *PurchaseOrder) UnmarshalJSON(data []byte) error {
	type plain PurchaseOrder
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = PurchaseOrder(raw.plain)
	o.ID = FlexibleID(raw.ID)
	return nil
}

// FlexibleID приводит JSON-строку или число к строковому id.
func FlexibleID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// PurchaseHistory — заказы, самые новые первыми.
type PurchaseHistory []PurchaseOrder

// Prepend возвращает новую историю с заказом в начале.
func (h PurchaseHistory) Prepend(order PurchaseOrder) PurchaseHistory {
	out := make(PurchaseHistory, 0, len(h)+1)
	out = append(out, order.Clone())
	for _, existing := range h {
		out = append(out, existing.Clone())
	}
	return out
}

// Clone возвращает глубокую копию истории.
func (h PurchaseHistory) Clone() PurchaseHistory {
	out := make(PurchaseHistory, len(h))
	for i, order := range h {
		out[i] = order.Clone()
	}
	return out
}

// CheckoutResult — ответ удалённого оформления заказа.
type CheckoutResult struct {
	OrderID string
	// Order заполнен, если коллаборатор вернул объект заказа.
	Order *PurchaseOrder
}
