package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/marketcart/internal/cart"
	"github.com/vladislavdragonenkov/marketcart/internal/checkout"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/memory"
)

var (
	errUnreachable = domain.Unreachable("test", 503, nil)
	errRejected    = domain.Rejected("checkout", 409, "stock unavailable")
	fixedNow       = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
)

// remoteStub реализует и корзину, и оформление коллаборатора.
type remoteStub struct {
	mu          sync.Mutex
	cart        domain.Cart
	cartErr     error
	checkoutErr error
	result      domain.CheckoutResult
	history     domain.PurchaseHistory
	historyErr  error
	checkouts   int
}

func (r *remoteStub) cartCall(apply func(domain.Cart) domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cartErr != nil {
		return nil, r.cartErr
	}
	r.cart = apply(r.cart)
	return r.cart.Clone(), nil
}

func (r *remoteStub) FetchCart(context.Context) (domain.Cart, error) {
	return r.cartCall(func(c domain.Cart) domain.Cart { return c })
}

func (r *remoteStub) AddItem(_ context.Context, item domain.CartLineItem) (domain.Cart, error) {
	return r.cartCall(func(c domain.Cart) domain.Cart { return c.Add(item) })
}

func (r *remoteStub) UpdateQuantity(_ context.Context, id domain.ProductID, qty int) (domain.Cart, error) {
	return r.cartCall(func(c domain.Cart) domain.Cart { return c.SetQuantity(id, qty) })
}

func (r *remoteStub) RemoveItem(_ context.Context, id domain.ProductID) (domain.Cart, error) {
	return r.cartCall(func(c domain.Cart) domain.Cart { return c.Remove(id) })
}

func (r *remoteStub) ClearCart(context.Context) (domain.Cart, error) {
	return r.cartCall(func(domain.Cart) domain.Cart { return domain.Cart{} })
}

func (r *remoteStub) Checkout(context.Context) (domain.CheckoutResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkouts++
	if r.checkoutErr != nil {
		return domain.CheckoutResult{}, r.checkoutErr
	}
	r.cart = domain.Cart{}
	return r.result, nil
}

func (r *remoteStub) Purchases(context.Context) (domain.PurchaseHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.historyErr != nil {
		return nil, r.historyErr
	}
	return r.history.Clone(), nil
}

type coordinatorSuite struct {
	suite.Suite

	remote      *remoteStub
	blobs       *memory.BlobStore
	mirror      *local.Mirror
	carts       *cart.Store
	coordinator *checkout.Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(coordinatorSuite))
}

func (s *coordinatorSuite) SetupTest() {
	s.remote = &remoteStub{}
	s.blobs = memory.NewBlobStore()
	s.mirror = local.New(s.blobs, nil)
	s.carts = cart.NewStore(cart.Options{Remote: s.remote, Local: s.mirror})
	s.coordinator = checkout.NewCoordinator(checkout.Options{
		Remote: s.remote,
		Local:  s.mirror,
		Carts:  s.carts,
		Clock:  func() time.Time { return fixedNow },
		NewID:  func() (string, error) { return "order-1", nil },
	})
}

func (s *coordinatorSuite) add(id domain.ProductID, price int64, qty int) {
	_, err := s.carts.AddItem(context.Background(), domain.Product{ID: id, Title: "p", Price: price}, qty)
	s.Require().NoError(err)
}

func (s *coordinatorSuite) TestEmptyCartTouchesNothing() {
	ctx := context.Background()
	s.carts.GetCart(ctx)

	receipt, err := s.coordinator.Checkout(ctx)

	s.Require().ErrorIs(err, domain.ErrCartEmpty)
	s.False(receipt.Success)
	s.Nil(receipt.Order)
	s.Equal(checkout.MessageEmpty, receipt.Message)
	s.Zero(s.remote.checkouts)
	s.Equal(0, s.blobs.Len())

	history, _, err := s.coordinator.History(ctx)
	s.Require().NoError(err)
	s.Empty(history)
}

func (s *coordinatorSuite) TestEmptyCartLoadsStoreFirst() {
	s.remote.cart = domain.Cart{{ID: 1, Price: 10, Quantity: 1}}
	s.remote.result = domain.CheckoutResult{OrderID: "r-1"}

	receipt, err := s.coordinator.Checkout(context.Background())
	s.Require().NoError(err)
	s.True(receipt.Success)
	s.Equal(1, s.remote.checkouts)
}

func (s *coordinatorSuite) TestFallbackEndToEnd() {
	ctx := context.Background()
	s.remote.cartErr = errUnreachable
	s.remote.checkoutErr = errUnreachable
	s.remote.historyErr = errUnreachable

	s.add(1, 45, 1)
	s.add(3, 30, 2)

	summary := s.coordinator.Summary(ctx)
	s.Equal(domain.Totals{Subtotal: 105, Shipping: 5, Total: 110}, summary.Total)
	s.Equal(3, summary.Count)

	receipt, err := s.coordinator.Checkout(ctx)
	s.Require().NoError(err)
	s.True(receipt.Success)
	s.Equal(domain.ModeLocalFallback, receipt.Mode)
	s.Require().NotNil(receipt.Order)
	s.Equal("order-1", receipt.OrderID)
	s.Equal(int64(105), receipt.Order.Subtotal)
	s.Equal(int64(5), receipt.Order.Shipping)
	s.Equal(int64(110), receipt.Order.Total)
	s.Equal(fixedNow, receipt.Order.Date)
	s.Len(receipt.Order.Items, 2)

	s.Empty(s.carts.Snapshot())
	s.Empty(s.carts.GetCart(ctx))

	history, mode, err := s.coordinator.History(ctx)
	s.Require().NoError(err)
	s.Equal(domain.ModeLocalFallback, mode)
	s.Require().Len(history, 1)
	s.Equal(int64(110), history[0].Total)
}

func (s *coordinatorSuite) TestRemoteCheckout() {
	ctx := context.Background()
	s.add(1, 45, 1)
	order := domain.PurchaseOrder{ID: "r-42", Total: 50}
	s.remote.result = domain.CheckoutResult{OrderID: "r-42", Order: &order}

	receipt, err := s.coordinator.Checkout(ctx)
	s.Require().NoError(err)
	s.True(receipt.Success)
	s.Equal(domain.ModeRemoteBacked, receipt.Mode)
	s.Equal("r-42", receipt.OrderID)
	s.Empty(s.carts.Snapshot())

	history, err := s.mirror.Purchases(ctx)
	s.Require().NoError(err)
	s.Empty(history, "удалённое оформление не пишет в локальную историю")
}

func (s *coordinatorSuite) TestRejectedCheckoutLeavesCartIntact() {
	ctx := context.Background()
	s.add(1, 45, 1)
	s.add(3, 30, 2)
	before := s.carts.Snapshot()
	s.remote.checkoutErr = errRejected

	receipt, err := s.coordinator.Checkout(ctx)

	s.Require().ErrorIs(err, domain.ErrRejected)
	s.False(receipt.Success)
	s.Equal(checkout.MessageDeclined, receipt.Message)
	s.Equal(before, s.carts.Snapshot())
	s.Equal(before, s.remote.cart)

	history, err := s.mirror.Purchases(ctx)
	s.Require().NoError(err)
	s.Empty(history, "отказ не запускает локальное оформление")
}

func (s *coordinatorSuite) TestFallbackUsesLocalCartCopy() {
	ctx := context.Background()
	s.add(1, 45, 1)
	s.remote.checkoutErr = errUnreachable

	// Корзина собрана удалённо, локальная копия пуста.
	receipt, err := s.coordinator.Checkout(ctx)
	s.Require().ErrorIs(err, domain.ErrCartEmpty)
	s.False(receipt.Success)
	s.Equal(domain.ModeLocalFallback, receipt.Mode)
}

func (s *coordinatorSuite) TestHistoryPrefersRemote() {
	s.remote.history = domain.PurchaseHistory{{ID: "remote-1"}}

	history, mode, err := s.coordinator.History(context.Background())
	s.Require().NoError(err)
	s.Equal(domain.ModeRemoteBacked, mode)
	s.Require().Len(history, 1)
	s.Equal("remote-1", history[0].ID)
}

func (s *coordinatorSuite) TestIDGenerationFailure() {
	s.remote.cartErr = errUnreachable
	s.remote.checkoutErr = errUnreachable
	s.add(1, 10, 1)

	coordinator := checkout.NewCoordinator(checkout.Options{
		Remote: s.remote,
		Local:  s.mirror,
		Carts:  s.carts,
		NewID:  func() (string, error) { return "", errors.New("entropy exhausted") },
	})
	receipt, err := coordinator.Checkout(context.Background())
	s.Require().Error(err)
	s.False(receipt.Success)
	s.Len(s.carts.Snapshot(), 1)
}

func TestDefaultOrderIDsAreTimeOrdered(t *testing.T) {
	blobs := memory.NewBlobStore()
	mirror := local.New(blobs, nil)
	carts := cart.NewStore(cart.Options{Local: mirror})
	coordinator := checkout.NewCoordinator(checkout.Options{Local: mirror, Carts: carts})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		_, err := carts.AddItem(ctx, domain.Product{ID: 1, Price: 10}, 1)
		require.NoError(t, err)
		receipt, err := coordinator.Checkout(ctx)
		require.NoError(t, err)
		ids = append(ids, receipt.OrderID)
	}

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Less(t, ids[0], ids[1], "UUIDv7 сортируется по времени создания")

	history, _, err := coordinator.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].ID, "новые заказы первыми")
}

func TestFreeShippingPolicyIsKept(t *testing.T) {
	blobs := memory.NewBlobStore()
	mirror := local.New(blobs, nil)
	carts := cart.NewStore(cart.Options{Local: mirror})
	coordinator := checkout.NewCoordinator(checkout.Options{
		Local:   mirror,
		Carts:   carts,
		Pricing: &domain.PricingPolicy{ShippingRate: decimal.Zero, ShippingCap: 0},
	})
	ctx := context.Background()

	_, err := carts.AddItem(ctx, domain.Product{ID: 1, Price: 1000}, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.Totals{Subtotal: 1000, Shipping: 0, Total: 1000}, coordinator.Summary(ctx).Total)

	receipt, err := coordinator.Checkout(ctx)
	require.NoError(t, err)
	require.NotNil(t, receipt.Order)
	assert.Zero(t, receipt.Order.Shipping)
	assert.Equal(t, int64(1000), receipt.Order.Total)
}

func TestNilPricingUsesDefault(t *testing.T) {
	blobs := memory.NewBlobStore()
	mirror := local.New(blobs, nil)
	carts := cart.NewStore(cart.Options{Local: mirror})
	coordinator := checkout.NewCoordinator(checkout.Options{Local: mirror, Carts: carts})
	ctx := context.Background()

	_, err := carts.AddItem(ctx, domain.Product{ID: 1, Price: 1000}, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.Totals{Subtotal: 1000, Shipping: 50, Total: 1050}, coordinator.Summary(ctx).Total)
}
