package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketcart/internal/cart"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/memory"
)

type fixture struct {
	store   *cart.Store
	backend *fakeBackend
	mirror  *local.Mirror
	blobs   *memory.BlobStore
}

func newFixture(t *testing.T, backend domain.CartBackend) fixture {
	t.Helper()
	blobs := memory.NewBlobStore()
	mirror := local.New(blobs, nil)
	f := fixture{mirror: mirror, blobs: blobs}
	if fb, ok := backend.(*fakeBackend); ok {
		f.backend = fb
	}
	opts := cart.Options{Local: mirror}
	if backend != nil {
		opts.Remote = backend
	}
	f.store = cart.NewStore(opts)
	return f
}

func product(id domain.ProductID, price int64) domain.Product {
	return domain.Product{ID: id, Title: "p", Category: "c", Price: price}
}

func TestGetCart_RemoteBacked(t *testing.T) {
	backend := &fakeBackend{cart: domain.Cart{{ID: 1, Price: 45, Quantity: 1}}}
	f := newFixture(t, backend)

	assert.False(t, f.store.Loaded())
	assert.Equal(t, domain.ModeUnknown, f.store.Mode())

	got := f.store.GetCart(context.Background())
	assert.Equal(t, backend.cart, got)
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
	assert.True(t, f.store.Loaded())
}

func TestGetCart_FallsBackToLocal(t *testing.T) {
	for name, err := range map[string]error{"unreachable": errUnreachable, "rejected": errRejected} {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{err: err}
			f := newFixture(t, backend)
			saved := domain.Cart{{ID: 3, Price: 30, Quantity: 2}}
			require.NoError(t, f.mirror.SaveCart(context.Background(), saved))

			got := f.store.GetCart(context.Background())
			assert.Equal(t, saved, got)
			assert.Equal(t, domain.ModeLocalFallback, f.store.Mode())
		})
	}
}

func TestGetCart_WithoutRemote(t *testing.T) {
	f := newFixture(t, nil)

	got := f.store.GetCart(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, domain.ModeLocalFallback, f.store.Mode())
}

func TestAddItem_SameIDTwiceMerges(t *testing.T) {
	backend := &fakeBackend{err: errUnreachable}
	f := newFixture(t, backend)
	ctx := context.Background()

	_, err := f.store.AddItem(ctx, product(7, 65), 1)
	require.NoError(t, err)
	got, err := f.store.AddItem(ctx, product(7, 65), 2)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, domain.ProductID(7), got[0].ID)
	assert.Equal(t, 3, got[0].Quantity)

	stored, err := f.mirror.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestAddItem_RemoteMerges(t *testing.T) {
	backend := &fakeBackend{}
	f := newFixture(t, backend)
	ctx := context.Background()
	p := randomProduct()

	_, err := f.store.AddItem(ctx, p, 2)
	require.NoError(t, err)
	got, err := f.store.AddItem(ctx, p, 3)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Quantity)
	assert.Equal(t, p.Title, got[0].Title)
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
}

func TestAddItem_InvalidProductID(t *testing.T) {
	backend := &fakeBackend{}
	f := newFixture(t, backend)

	_, err := f.store.AddItem(context.Background(), product(0, 10), 1)
	require.ErrorIs(t, err, domain.ErrProductIDInvalid)
	assert.Empty(t, backend.calls, "невалидный id не отправляется")
}

func TestAddItem_NonPositiveQuantityIsOne(t *testing.T) {
	f := newFixture(t, &fakeBackend{err: errUnreachable})

	got, err := f.store.AddItem(context.Background(), product(1, 10), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Quantity)
}

func TestUpdateQuantity_Clamps(t *testing.T) {
	for _, qty := range []int{0, -5} {
		f := newFixture(t, &fakeBackend{err: errUnreachable})
		ctx := context.Background()
		_, err := f.store.AddItem(ctx, product(1, 10), 4)
		require.NoError(t, err)

		got, err := f.store.UpdateQuantity(ctx, 1, qty)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].Quantity, "qty %d", qty)
	}
}

func TestUpdateQuantity_RemoteReceivesClampedValue(t *testing.T) {
	backend := &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 4}}}
	f := newFixture(t, backend)

	got, err := f.store.UpdateQuantity(context.Background(), 1, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].Quantity)
	assert.Equal(t, 1, backend.snapshot()[0].Quantity)
}

func TestRemoveItem_AbsentIDIsNoop(t *testing.T) {
	f := newFixture(t, &fakeBackend{err: errUnreachable})
	ctx := context.Background()
	before, err := f.store.AddItem(ctx, product(1, 10), 1)
	require.NoError(t, err)

	after, err := f.store.RemoveItem(ctx, 42)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("cart changed (-before +after):\n%s", diff)
	}
}

func TestClearCart_Idempotent(t *testing.T) {
	f := newFixture(t, &fakeBackend{err: errUnreachable})
	ctx := context.Background()
	_, err := f.store.AddItem(ctx, product(1, 10), 1)
	require.NoError(t, err)

	first, err := f.store.ClearCart(ctx)
	require.NoError(t, err)
	second, err := f.store.ClearCart(ctx)
	require.NoError(t, err)

	assert.Empty(t, first)
	assert.Empty(t, second)
	assert.NotNil(t, second)
}

func TestRemoteSuccessDoesNotTouchLocalCopy(t *testing.T) {
	f := newFixture(t, &fakeBackend{})
	ctx := context.Background()

	_, err := f.store.AddItem(ctx, product(1, 10), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, f.blobs.Len(), "режимы не синхронизируются")
}

func TestModesAreNotMerged(t *testing.T) {
	backend := &fakeBackend{}
	f := newFixture(t, backend)
	ctx := context.Background()

	_, err := f.store.AddItem(ctx, product(1, 10), 1)
	require.NoError(t, err)

	backend.setErr(errUnreachable)
	got, err := f.store.AddItem(ctx, product(2, 20), 1)
	require.NoError(t, err)
	require.Len(t, got, 1, "локальная копия не знает о позиции, добавленной удалённо")
	assert.Equal(t, domain.ProductID(2), got[0].ID)
	assert.Equal(t, domain.ModeLocalFallback, f.store.Mode())

	backend.setErr(nil)
	got = f.store.GetCart(ctx)
	require.Len(t, got, 1, "после восстановления связи синхронизации нет")
	assert.Equal(t, domain.ProductID(1), got[0].ID)
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
}

func TestRejectedMutationLeavesCartUnchanged(t *testing.T) {
	backend := &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}}
	f := newFixture(t, backend)
	ctx := context.Background()
	before := f.store.GetCart(ctx)

	backend.setErr(errRejected)
	got, err := f.store.AddItem(ctx, product(2, 20), 1)

	require.ErrorIs(t, err, domain.ErrRejected)
	var remoteErr *domain.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "stock unavailable", remoteErr.Message)
	assert.Equal(t, before, got)
	assert.Equal(t, before, f.store.Snapshot())
	assert.Zero(t, f.store.Pending())
	assert.Equal(t, 0, f.blobs.Len(), "отказ не переключает на локальную копию")
}

type failingPutStore struct{ *memory.BlobStore }

func (failingPutStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestLocalWriteFailureRollsBack(t *testing.T) {
	mirror := local.New(failingPutStore{memory.NewBlobStore()}, nil)
	store := cart.NewStore(cart.Options{Local: mirror})

	got, err := store.AddItem(context.Background(), product(1, 10), 1)
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.Pending())
}

// gatedBackend блокирует UpdateQuantity до явного разрешения, позволяя
// завершать запросы в произвольном порядке.
type gatedBackend struct {
	*fakeBackend
	entered chan int
	release map[int]chan struct{}
}

func (g *gatedBackend) UpdateQuantity(_ context.Context, id domain.ProductID, qty int) (domain.Cart, error) {
	g.entered <- qty
	<-g.release[qty]
	return domain.Cart{{ID: id, Price: 10, Quantity: qty}}, nil
}

func TestOutOfOrderCompletionKeepsLatestSequence(t *testing.T) {
	backend := &gatedBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan int),
		release:     map[int]chan struct{}{2: make(chan struct{}), 5: make(chan struct{})},
	}
	f := newFixture(t, backend)
	ctx := context.Background()
	f.store.GetCart(ctx)

	var wg sync.WaitGroup
	results := make(map[int]domain.Cart)
	var mu sync.Mutex
	start := func(qty int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.store.UpdateQuantity(ctx, 1, qty)
			assert.NoError(t, err)
			mu.Lock()
			results[qty] = got
			mu.Unlock()
		}()
		require.Equal(t, qty, <-backend.entered)
	}

	start(2)
	start(5)

	// Оптимистичное представление: обе операции применены по порядку.
	view := f.store.Snapshot()
	require.Len(t, view, 1)
	assert.Equal(t, 5, view[0].Quantity)
	assert.Equal(t, 2, f.store.Pending())

	// Более поздний запрос завершается первым.
	close(backend.release[5])
	require.Eventually(t, func() bool { return f.store.Pending() == 0 }, time.Second, 5*time.Millisecond)
	close(backend.release[2])
	wg.Wait()

	final := f.store.Snapshot()
	require.Len(t, final, 1)
	assert.Equal(t, 5, final[0].Quantity, "устаревший ответ отброшен")
	assert.Zero(t, f.store.Pending())
	assert.Equal(t, 5, results[2][0].Quantity)
}

func TestOptimisticViewWhilePending(t *testing.T) {
	backend := &gatedBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan int),
		release:     map[int]chan struct{}{3: make(chan struct{})},
	}
	f := newFixture(t, backend)
	ctx := context.Background()
	f.store.GetCart(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.store.UpdateQuantity(ctx, 1, 3)
	}()
	<-backend.entered

	assert.Equal(t, 3, f.store.Snapshot()[0].Quantity)
	close(backend.release[3])
	<-done
	assert.Equal(t, 3, f.store.Snapshot()[0].Quantity)
}

func TestResetAfterCheckoutDiscardsInFlightResponses(t *testing.T) {
	backend := &gatedBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan int),
		release:     map[int]chan struct{}{4: make(chan struct{})},
	}
	f := newFixture(t, backend)
	ctx := context.Background()
	f.store.GetCart(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.store.UpdateQuantity(ctx, 1, 4)
	}()
	<-backend.entered

	f.store.ResetAfterCheckout(domain.ModeRemoteBacked)
	close(backend.release[4])
	<-done

	assert.Empty(t, f.store.Snapshot())
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
}

func TestTeardownKeepsDurableCopy(t *testing.T) {
	f := newFixture(t, &fakeBackend{err: errUnreachable})
	ctx := context.Background()
	_, err := f.store.AddItem(ctx, product(1, 10), 2)
	require.NoError(t, err)

	f.store.Teardown()
	assert.Empty(t, f.store.Snapshot())
	assert.False(t, f.store.Loaded())
	assert.Equal(t, domain.ModeUnknown, f.store.Mode())

	got := f.store.GetCart(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
}

// slowFetchBackend задерживает FetchCart, чтобы конкурентные чтения совпали.
type slowFetchBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *slowFetchBackend) FetchCart(ctx context.Context) (domain.Cart, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeBackend.FetchCart(ctx)
}

func TestGetCart_ConcurrentCallsShareOneFetch(t *testing.T) {
	backend := &slowFetchBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := newFixture(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := f.store.GetCart(context.Background())
			assert.Len(t, got, 1)
		}()
	}

	<-backend.entered
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.fetches)
}

// lateAddBackend применяет AddItem на сервере, но задерживает ответ, а
// FetchCart отдаёт заранее снятое состояние без этого товара.
type lateAddBackend struct {
	*fakeBackend
	readCart domain.Cart
	entered  chan struct{}
	release  chan struct{}
}

func (b *lateAddBackend) AddItem(ctx context.Context, item domain.CartLineItem) (domain.Cart, error) {
	cart, err := b.fakeBackend.AddItem(ctx, item)
	close(b.entered)
	<-b.release
	return cart, err
}

func (b *lateAddBackend) FetchCart(context.Context) (domain.Cart, error) {
	return b.readCart.Clone(), nil
}

func TestReadDuringPendingAddKeepsConfirmedAdd(t *testing.T) {
	backend := &lateAddBackend{
		fakeBackend: &fakeBackend{},
		readCart:    domain.Cart{},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.store.AddItem(ctx, product(7, 65), 1)
		assert.NoError(t, err)
	}()
	<-backend.entered

	// Чтение завершается раньше добавления и не видит товар на сервере.
	during := f.store.GetCart(ctx)
	require.Len(t, during, 1, "неподтверждённое добавление остаётся в представлении")
	assert.Equal(t, domain.ProductID(7), during[0].ID)
	assert.Equal(t, 1, f.store.Pending())

	close(backend.release)
	<-done

	if diff := cmp.Diff(backend.snapshot(), f.store.Snapshot()); diff != "" {
		t.Fatalf("view differs from server after add response (-server +view):\n%s", diff)
	}
	assert.Zero(t, f.store.Pending())
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
}

// cancellableFetchBackend ждёт разрешения или отмены контекста запроса.
type cancellableFetchBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *cancellableFetchBackend) FetchCart(ctx context.Context) (domain.Cart, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
		return nil, domain.Unreachable("fetch", 0, ctx.Err())
	case <-b.release:
	}
	return b.fakeBackend.FetchCart(ctx)
}

func TestGetCart_FirstCallerCancellationDoesNotForceFallback(t *testing.T) {
	backend := &cancellableFetchBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := newFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.Cart, 1)
	go func() { done <- f.store.GetCart(ctx) }()

	<-backend.entered
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(backend.release)

	got := <-done
	require.Len(t, got, 1)
	assert.Equal(t, domain.ModeRemoteBacked, f.store.Mode())
}

func TestGetCart_FetchTimeoutFallsBackToLocal(t *testing.T) {
	backend := &cancellableFetchBackend{
		fakeBackend: &fakeBackend{cart: domain.Cart{{ID: 1, Price: 10, Quantity: 1}}},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	defer close(backend.release)
	blobs := memory.NewBlobStore()
	store := cart.NewStore(cart.Options{
		Remote:       backend,
		Local:        local.New(blobs, nil),
		FetchTimeout: 20 * time.Millisecond,
	})

	got := store.GetCart(context.Background())
	assert.Empty(t, got)
	assert.Equal(t, domain.ModeLocalFallback, store.Mode())
}
