package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinQuantity — минимальное количество единиц в позиции корзины.
const MinQuantity = 1

// ProductID — идентификатор товара; служит ключом слияния позиций корзины.
type ProductID int64

// String возвращает десятичное представление id для URL и ключей.
func (id ProductID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Valid сообщает, может ли id ссылаться на товар.
func (id ProductID) Valid() bool {
	return id > 0
}

// UnmarshalJSON принимает id числом или строкой с целым числом.
// Нечисловые строковые id не поддерживаются.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("product id %q: %w", s, ErrProductIDInvalid)
		}
		*id = ProductID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = ProductID(v)
	return nil
}

// ParseProductID разбирает id из пути или аргумента командной строки.
func ParseProductID(raw string) (ProductID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrProductIDInvalid
	}
	id := ProductID(v)
	if !id.Valid() {
		return 0, ErrProductIDInvalid
	}
	return id, nil
}

// Product — минимальный снимок товара, который кладётся в корзину.
type Product struct {
	ID       ProductID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	// Price — цена за единицу в минимальных денежных единицах.
	Price int64 `json:"price"`
}

// CartLineItem — позиция корзины. Title, Category и Price фиксируются в момент
// добавления и не перечитываются, даже если товар позже изменён или удалён.
type CartLineItem struct {
	ID       ProductID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Price    int64     `json:"price"`
	Quantity int       `json:"qty"`
}

// UnmarshalJSON принимает количество как "qty" или "quantity".
func (i *CartLineItem) UnmarshalJSON(data []byte) error {
	type plain CartLineItem
	var raw struct {
		plain
		AltQuantity *int `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = CartLineItem(raw.plain)
	if i.Quantity == 0 && raw.AltQuantity != nil {
		i.Quantity = *raw.AltQuantity
	}
	i.Quantity = NormalizeQuantity(i.Quantity)
	return nil
}

// LineTotal возвращает price × quantity.
func (i CartLineItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// NewLineItem снимает атрибуты товара в позицию корзины.
func NewLineItem(p Product, qty int) CartLineItem {
	return CartLineItem{
		ID:       p.ID,
		Title:    p.Title,
		Category: p.Category,
		Price:    p.Price,
		Quantity: NormalizeQuantity(qty),
	}
}

// NormalizeQuantity приводит количество к минимуму 1.
func NormalizeQuantity(qty int) int {
	if qty < MinQuantity {
		return MinQuantity
	}
	return qty
}

// ParseQuantity разбирает количество из пользовательского ввода; нечисловое значение даёт 1.
func ParseQuantity(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return MinQuantity
	}
	return NormalizeQuantity(v)
}

// Cart — упорядоченная последовательность позиций, порядок вставки сохраняется.
// Методы не изменяют получателя и возвращают новую корзину.
type Cart []CartLineItem

// Clone возвращает независимую копию корзины. Пустая корзина клонируется в
// пустой (не nil) срез, чтобы сериализоваться как [].
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// IsEmpty сообщает, есть ли в корзине позиции.
func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Index возвращает позицию товара или -1.
func (c Cart) Index(id ProductID) int {
	for i, item := range c {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Add добавляет товар: существующий id увеличивает количество, новый дописывается в конец.
func (c Cart) Add(item CartLineItem) Cart {
	out := c.Clone()
	item.Quantity = NormalizeQuantity(item.Quantity)
	if idx := out.Index(item.ID); idx >= 0 {
		out[idx].Quantity = NormalizeQuantity(out[idx].Quantity) + item.Quantity
		return out
	}
	return append(out, item)
}

// SetQuantity меняет количество позиции на месте. Неизвестный id — no-op.
func (c Cart) SetQuantity(id ProductID, qty int) Cart {
	out := c.Clone()
	if idx := out.Index(id); idx >= 0 {
		out[idx].Quantity = NormalizeQuantity(qty)
	}
	return out
}

// Remove удаляет позицию. Неизвестный id — no-op.
func (c Cart) Remove(id ProductID) Cart {
	out := make(Cart, 0, len(c))
	for _, item := range c {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// Count возвращает суммарное количество единиц в корзине.
func (c Cart) Count() int {
	total := 0
	for _, item := range c {
		total += item.Quantity
	}
	return total
}

// Subtotal возвращает сумму price × quantity по всем позициям.
func (c Cart) Subtotal() int64 {
	var sum int64
	for _, item := range c {
		sum += item.LineTotal()
	}
	return sum
}
