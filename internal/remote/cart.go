package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

const (
	opFetchCart      = "fetch_cart"
	opAddItem        = "add_item"
	opUpdateQuantity = "update_quantity"
	opRemoveItem     = "remove_item"
	opClearCart      = "clear_cart"
)

type addItemRequest struct {
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type quantityRequest struct {
	Qty int `json:"qty"`
}

// FetchCart выполняет GET /cart.
func (c *Client) FetchCart(ctx context.Context) (domain.Cart, error) {
	return c.cartCall(ctx, opFetchCart, http.MethodGet, "/cart", nil)
}

// AddItem выполняет POST /cart с {productId, qty}.
func (c *Client) AddItem(ctx context.Context, item domain.CartLineItem) (domain.Cart, error) {
	req := addItemRequest{ProductID: item.ID, Qty: domain.NormalizeQuantity(item.Quantity)}
	return c.cartCall(ctx, opAddItem, http.MethodPost, "/cart", req)
}

// UpdateQuantity выполняет PATCH /cart/{productId} с {qty}.
func (c *Client) UpdateQuantity(ctx context.Context, id domain.ProductID, qty int) (domain.Cart, error) {
	req := quantityRequest{Qty: domain.NormalizeQuantity(qty)}
	return c.cartCall(ctx, opUpdateQuantity, http.MethodPatch, "/cart/"+id.String(), req)
}

// RemoveItem выполняет DELETE /cart/{productId}.
func (c *Client) RemoveItem(ctx context.Context, id domain.ProductID) (domain.Cart, error) {
	return c.cartCall(ctx, opRemoveItem, http.MethodDelete, "/cart/"+id.String(), nil)
}

// ClearCart выполняет DELETE /cart.
func (c *Client) ClearCart(ctx context.Context) (domain.Cart, error) {
	return c.cartCall(ctx, opClearCart, http.MethodDelete, "/cart", nil)
}

func (c *Client) cartCall(ctx context.Context, op, method, path string, body any) (domain.Cart, error) {
	data, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return nil, err
	}
	cart, err := decodeCart(data, op == opClearCart)
	if err != nil {
		// Тело успешного ответа не разобрано: считаем коллаборатор недоступным.
		return nil, domain.Unreachable(op, http.StatusOK, err)
	}
	return cart, nil
}

var errMalformedCart = errors.New("response is not a cart")

// decodeCart принимает массив позиций или объект {items|cart: [...]}.
// Пустое тело допустимо только для очистки корзины.
func decodeCart(data []byte, allowEmpty bool) (domain.Cart, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if allowEmpty {
			return domain.Cart{}, nil
		}
		return nil, errMalformedCart
	}

	switch trimmed[0] {
	case '[':
		var cart domain.Cart
		if err := json.Unmarshal(trimmed, &cart); err != nil {
			return nil, err
		}
		return cart.Clone(), nil
	case '{':
		var wrapped struct {
			Items *domain.Cart `json:"items"`
			Cart  *domain.Cart `json:"cart"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		switch {
		case wrapped.Items != nil:
			return wrapped.Items.Clone(), nil
		case wrapped.Cart != nil:
			return wrapped.Cart.Clone(), nil
		case allowEmpty:
			return domain.Cart{}, nil
		}
	}
	return nil, errMalformedCart
}
