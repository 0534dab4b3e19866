// Package checkout превращает корзину в заказ: через REST-коллаборатор, а
// при его недоступности — локально, с расчётом доставки и записью в историю.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketcart/internal/cart"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
	"github.com/vladislavdragonenkov/marketcart/internal/metrics"
)

// Короткие сообщения для пользователя; подробности уходят в лог.
const (
	MessageEmpty    = "Your cart is empty."
	MessageDeclined = "The order could not be placed. Please review your cart."
	MessageFailed   = "Checkout is temporarily unavailable. Please try again."
	MessagePlaced   = "Order placed."
)

// Receipt — результат оформления.
type Receipt struct {
	Success bool                  `json:"success"`
	Mode    domain.Mode           `json:"mode"`
	OrderID string                `json:"orderId,omitempty"`
	Order   *domain.PurchaseOrder `json:"order,omitempty"`
	Message string                `json:"message"`
}

// Summary — сводка корзины для отображения.
type Summary struct {
	Items domain.Cart   `json:"items"`
	Count int           `json:"count"`
	Mode  domain.Mode   `json:"mode"`
	Total domain.Totals `json:"totals"`
}

// Options задаёт зависимости Coordinator.
type Options struct {
	// Remote может быть nil: тогда оформление всегда локальное.
	Remote domain.CheckoutBackend
	Local  *local.Mirror
	Carts  *cart.Store
	// Pricing nil означает domain.DefaultPricing().
	Pricing *domain.PricingPolicy
	Clock   func() time.Time
	NewID   func() (string, error)
	Logger  *log.Entry
	Metrics *metrics.CartMetrics
}

// Coordinator оформляет заказы.
type Coordinator struct {
	remote  domain.CheckoutBackend
	local   *local.Mirror
	carts   *cart.Store
	pricing domain.PricingPolicy
	clock   func() time.Time
	newID   func() (string, error)
	logger  *log.Entry
	metrics *metrics.CartMetrics
}

// NewCoordinator создаёт Coordinator. Local и Carts обязательны.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Local == nil || opts.Carts == nil {
		panic("checkout: local mirror and cart store are required")
	}
	pricing := domain.DefaultPricing()
	if opts.Pricing != nil {
		pricing = *opts.Pricing
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newOrderID
	}
	if opts.Logger == nil {
		opts.Logger = log.New().WithField("component", "checkout")
	}
	return &Coordinator{
		remote:  opts.Remote,
		local:   opts.Local,
		carts:   opts.Carts,
		pricing: pricing,
		clock:   opts.Clock,
		newID:   opts.NewID,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// newOrderID возвращает UUIDv7: уникальный и упорядоченный по времени.
func newOrderID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Checkout оформляет текущую корзину.
//
// Пустая корзина даёт ErrCartEmpty без обращения к хранилищам. Отказ
// коллаборатора возвращает *domain.RemoteError и оставляет корзину как есть.
// При недоступности коллаборатора заказ строится из локальной копии корзины.
func (c *Coordinator) Checkout(ctx context.Context) (Receipt, error) {
	if !c.carts.Loaded() {
		c.carts.GetCart(ctx)
	}
	if c.carts.Snapshot().IsEmpty() {
		c.metrics.RecordCheckout(c.carts.Mode(), "empty")
		return Receipt{Mode: c.carts.Mode(), Message: MessageEmpty}, domain.ErrCartEmpty
	}

	if c.remote != nil {
		res, err := c.remote.Checkout(ctx)
		switch outcome := domain.ClassifyOutcome(err); outcome {
		case domain.OutcomeSuccess:
			c.carts.ResetAfterCheckout(domain.ModeRemoteBacked)
			c.metrics.RecordCheckout(domain.ModeRemoteBacked, "success")
			c.logger.WithField("order_id", res.OrderID).Info("order placed remotely")
			return Receipt{
				Success: true,
				Mode:    domain.ModeRemoteBacked,
				OrderID: res.OrderID,
				Order:   res.Order,
				Message: MessagePlaced,
			}, nil
		case domain.OutcomeRejected:
			c.metrics.RecordCheckout(domain.ModeRemoteBacked, "rejected")
			c.logger.WithError(err).Warn("remote rejected checkout")
			return Receipt{Mode: domain.ModeRemoteBacked, Message: MessageDeclined}, err
		default:
			c.logger.WithError(err).Info("remote checkout unreachable, placing order locally")
		}
	}

	return c.checkoutLocal(ctx)
}

func (c *Coordinator) checkoutLocal(ctx context.Context) (Receipt, error) {
	id, err := c.newID()
	if err != nil {
		c.metrics.RecordCheckout(domain.ModeLocalFallback, "failed")
		return Receipt{Mode: domain.ModeLocalFallback, Message: MessageFailed}, fmt.Errorf("generate order id: %w", err)
	}

	order, err := c.local.CommitCheckout(ctx, func(items domain.Cart) domain.PurchaseOrder {
		return domain.NewPurchaseOrder(id, items, c.clock(), c.pricing.Compute(items))
	})
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		c.metrics.RecordCheckout(domain.ModeLocalFallback, "empty")
		return Receipt{Mode: domain.ModeLocalFallback, Message: MessageEmpty}, err
	case err != nil && order.ID == "":
		c.metrics.RecordCheckout(domain.ModeLocalFallback, "failed")
		c.logger.WithError(err).Error("local checkout failed")
		return Receipt{Mode: domain.ModeLocalFallback, Message: MessageFailed}, err
	case err != nil:
		// Заказ записан, очистить корзину не удалось.
		c.logger.WithError(err).WithField("order_id", order.ID).Error("order recorded but local cart not cleared")
	}

	c.carts.ResetAfterCheckout(domain.ModeLocalFallback)
	c.metrics.RecordCheckout(domain.ModeLocalFallback, "success")
	c.logger.WithFields(log.Fields{"order_id": order.ID, "total": order.Total}).Info("order placed locally")
	return Receipt{
		Success: true,
		Mode:    domain.ModeLocalFallback,
		OrderID: order.ID,
		Order:   &order,
		Message: MessagePlaced,
	}, nil
}

// History возвращает историю покупок: с коллаборатора, а при любой его
// ошибке — из локального хранилища.
func (c *Coordinator) History(ctx context.Context) (domain.PurchaseHistory, domain.Mode, error) {
	if c.remote != nil {
		history, err := c.remote.Purchases(ctx)
		if err == nil {
			return history, domain.ModeRemoteBacked, nil
		}
		c.logger.WithError(err).Info("remote purchases unavailable, reading local history")
	}
	history, err := c.local.Purchases(ctx)
	if err != nil {
		return nil, domain.ModeLocalFallback, err
	}
	return history, domain.ModeLocalFallback, nil
}

// Summary считает количество и суммы по текущему представлению корзины.
func (c *Coordinator) Summary(ctx context.Context) Summary {
	if !c.carts.Loaded() {
		c.carts.GetCart(ctx)
	}
	items := c.carts.Snapshot()
	return Summary{
		Items: items,
		Count: items.Count(),
		Mode:  c.carts.Mode(),
		Total: c.pricing.Compute(items),
	}
}
