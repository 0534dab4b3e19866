package cart_test

import (
	"context"
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// fakeBackend — REST-коллаборатор в памяти. Если err задан, все вызовы
// возвращают его и состояние не меняется.
type fakeBackend struct {
	mu      sync.Mutex
	cart    domain.Cart
	err     error
	fetches int
	calls   []string
}

var _ domain.CartBackend = (*fakeBackend)(nil)

func (f *fakeBackend) call(op string, apply func(domain.Cart) domain.Cart) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.err != nil {
		return nil, f.err
	}
	f.cart = apply(f.cart)
	return f.cart.Clone(), nil
}

func (f *fakeBackend) FetchCart(context.Context) (domain.Cart, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	return f.call("fetch", func(c domain.Cart) domain.Cart { return c })
}

func (f *fakeBackend) AddItem(_ context.Context, item domain.CartLineItem) (domain.Cart, error) {
	return f.call("add", func(c domain.Cart) domain.Cart { return c.Add(item) })
}

func (f *fakeBackend) UpdateQuantity(_ context.Context, id domain.ProductID, qty int) (domain.Cart, error) {
	return f.call("update", func(c domain.Cart) domain.Cart { return c.SetQuantity(id, qty) })
}

func (f *fakeBackend) RemoveItem(_ context.Context, id domain.ProductID) (domain.Cart, error) {
	return f.call("remove", func(c domain.Cart) domain.Cart { return c.Remove(id) })
}

func (f *fakeBackend) ClearCart(context.Context) (domain.Cart, error) {
	return f.call("clear", func(domain.Cart) domain.Cart { return domain.Cart{} })
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBackend) snapshot() domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cart.Clone()
}

func randomProduct() domain.Product {
	return domain.Product{
		ID:       domain.ProductID(gofakeit.Number(1, 1_000_000)),
		Title:    gofakeit.ProductName(),
		Category: gofakeit.ProductCategory(),
		Price:    int64(gofakeit.Number(1, 500)),
	}
}

var (
	errUnreachable = domain.Unreachable("test", 503, nil)
	errRejected    = domain.Rejected("test", 409, "stock unavailable")
)
