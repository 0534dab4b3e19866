// Package local — долговременное зеркало клиентского состояния поверх
// domain.BlobStore. Каждая сущность хранится целиком под своим ключом и
// перезаписывается при каждой записи.
//
// Чтение-изменение-запись сериализуется мьютексом внутри процесса. Несколько
// процессов, пишущих в одно хранилище, могут терять изменения друг друга.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// Ключи локального хранилища.
const (
	KeyCart      = "cart"
	KeyPurchases = "purchases"
	KeyToken     = "token"
	KeyUser      = "user"
)

// Mirror читает и пишет корзину, историю покупок и сессию.
type Mirror struct {
	store  domain.BlobStore
	logger *log.Entry
	mu     sync.Mutex
}

// New создаёт зеркало поверх хранилища.
func New(store domain.BlobStore, logger *log.Entry) *Mirror {
	if logger == nil {
		logger = log.New().WithField("component", "local-mirror")
	}
	return &Mirror{store: store, logger: logger}
}

// Ping проверяет доступность хранилища.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Cart возвращает сохранённую корзину; отсутствующая или повреждённая запись читается как пустая.
func (m *Mirror) Cart(ctx context.Context) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCart(ctx)
}

// SaveCart перезаписывает корзину.
func (m *Mirror) SaveCart(ctx context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(ctx, KeyCart, cart.Clone())
}

// UpdateCart применяет fn к сохранённой корзине и записывает результат.
func (m *Mirror) UpdateCart(ctx context.Context, fn func(domain.Cart) domain.Cart) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, err := m.readCart(ctx)
	if err != nil {
		return nil, err
	}
	next := fn(cart).Clone()
	if err := m.write(ctx, KeyCart, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Purchases возвращает локальную историю покупок, самые новые первыми.
func (m *Mirror) Purchases(ctx context.Context) (domain.PurchaseHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readPurchases(ctx)
}

// CommitCheckout в одной критической секции читает корзину, строит заказ через
// build, добавляет его в начало истории и очищает корзину. Пустая корзина даёт
// domain.ErrCartEmpty без записи.
func (m *Mirror) CommitCheckout(ctx context.Context, build func(domain.Cart) domain.PurchaseOrder) (domain.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, err := m.readCart(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if cart.IsEmpty() {
		return domain.PurchaseOrder{}, domain.ErrCartEmpty
	}
	history, err := m.readPurchases(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	order := build(cart)
	if err := m.write(ctx, KeyPurchases, history.Prepend(order)); err != nil {
		return domain.PurchaseOrder{}, err
	}
	// Заказ уже записан: если очистка корзины не удалась, повторное оформление
	// создаст дубль, поэтому ошибка возвращается вместе с заказом.
	if err := m.write(ctx, KeyCart, domain.Cart{}); err != nil {
		return order, fmt.Errorf("clear cart after checkout: %w", err)
	}
	return order, nil
}

// Token возвращает сохранённый токен или пустую строку.
func (m *Mirror) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.store.Get(ctx, KeyToken)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", KeyToken, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// User возвращает сохранённый профиль; повреждённая запись читается как пустой профиль.
func (m *Mirror) User(ctx context.Context) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return readJSON[domain.User](ctx, m, KeyUser)
}

// SaveSession сохраняет токен и профиль.
func (m *Mirror) SaveSession(ctx context.Context, creds domain.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(ctx, KeyToken, []byte(creds.Token)); err != nil {
		return fmt.Errorf("write %s: %w", KeyToken, err)
	}
	return m.write(ctx, KeyUser, creds.User)
}

// ClearSession удаляет токен и профиль. Корзина и история не затрагиваются.
func (m *Mirror) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return errors.Join(
		m.store.Delete(ctx, KeyToken),
		m.store.Delete(ctx, KeyUser),
	)
}

func (m *Mirror) readCart(ctx context.Context) (domain.Cart, error) {
	cart, err := readJSON[domain.Cart](ctx, m, KeyCart)
	if err != nil {
		return nil, err
	}
	return cart.Clone(), nil
}

func (m *Mirror) readPurchases(ctx context.Context) (domain.PurchaseHistory, error) {
	history, err := readJSON[domain.PurchaseHistory](ctx, m, KeyPurchases)
	if err != nil {
		return nil, err
	}
	return history.Clone(), nil
}

// readJSON декодирует значение ключа. Отсутствующий ключ и повреждённый JSON
// дают нулевое значение; повреждение логируется.
func readJSON[T any](ctx context.Context, m *Mirror, key string) (T, error) {
	var zero T
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return zero, nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("local state is corrupt, treating as empty")
		return zero, nil
	}
	return value, nil
}

func (m *Mirror) write(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
