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
	opCheckout  = "checkout"
	opPurchases = "purchases"
)

// Checkout выполняет POST /checkout. Утвердительный ответ: success=true,
// идентификатор заказа или объект заказа, либо пустой результат без ошибки.
func (c *Client) Checkout(ctx context.Context) (domain.CheckoutResult, error) {
	data, err := c.do(ctx, opCheckout, http.MethodPost, "/checkout", struct{}{})
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	return decodeCheckout(data)
}

// Purchases выполняет GET /purchases; принимает массив или {items: [...]}.
func (c *Client) Purchases(ctx context.Context) (domain.PurchaseHistory, error) {
	data, err := c.do(ctx, opPurchases, http.MethodGet, "/purchases", nil)
	if err != nil {
		return nil, err
	}
	history, err := decodeHistory(data)
	if err != nil {
		return nil, domain.Unreachable(opPurchases, http.StatusOK, err)
	}
	return history, nil
}

type checkoutResponse struct {
	Success  *bool                 `json:"success"`
	ID       json.RawMessage       `json:"id"`
	OrderID  json.RawMessage       `json:"orderId"`
	Purchase *domain.PurchaseOrder `json:"purchase"`
	Order    *domain.PurchaseOrder `json:"order"`
	Message  string                `json:"message"`
}

func decodeCheckout(data []byte) (domain.CheckoutResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.CheckoutResult{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return domain.CheckoutResult{}, domain.Unreachable(opCheckout, http.StatusOK, err)
		}
		if len(items) == 0 {
			return domain.CheckoutResult{}, nil
		}
	case '{':
		var resp checkoutResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return domain.CheckoutResult{}, domain.Unreachable(opCheckout, http.StatusOK, err)
		}
		order := resp.Purchase
		if order == nil {
			order = resp.Order
		}
		result := domain.CheckoutResult{OrderID: firstID(resp.ID, resp.OrderID)}
		if order != nil {
			clone := order.Clone()
			result.Order = &clone
			if result.OrderID == "" {
				result.OrderID = clone.ID
			}
		}
		if (resp.Success != nil && *resp.Success) || result.OrderID != "" || result.Order != nil {
			return result, nil
		}
		return domain.CheckoutResult{}, domain.Rejected(opCheckout, http.StatusOK, resp.Message)
	}

	// Коллаборатор доступен, но форма ответа не подтверждает оформление.
	return domain.CheckoutResult{}, domain.Rejected(opCheckout, http.StatusOK, "checkout not confirmed")
}

func firstID(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if id := domain.FlexibleID(raw); id != "" {
			return id
		}
	}
	return ""
}

var errMalformedHistory = errors.New("response is not a purchase history")

func decodeHistory(data []byte) (domain.PurchaseHistory, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.PurchaseHistory{}, nil
	}
	switch trimmed[0] {
	case '[':
		var history domain.PurchaseHistory
		if err := json.Unmarshal(trimmed, &history); err != nil {
			return nil, err
		}
		return history.Clone(), nil
	case '{':
		var wrapped struct {
			Items *domain.PurchaseHistory `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Items != nil {
			return wrapped.Items.Clone(), nil
		}
	}
	return nil, errMalformedHistory
}
