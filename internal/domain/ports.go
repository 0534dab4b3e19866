package domain

import "context"

// CartBackend описывает удалённое хранилище корзины (REST-коллаборатор).
// Ошибки возвращаются как *RemoteError с Outcome Unreachable или Rejected.
type CartBackend interface {
	FetchCart(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, item CartLineItem) (Cart, error)
	UpdateQuantity(ctx context.Context, id ProductID, qty int) (Cart, error)
	RemoveItem(ctx context.Context, id ProductID) (Cart, error)
	ClearCart(ctx context.Context) (Cart, error)
}

// CheckoutBackend описывает удалённое оформление заказа и историю покупок.
type CheckoutBackend interface {
	Checkout(ctx context.Context) (CheckoutResult, error)
	Purchases(ctx context.Context) (PurchaseHistory, error)
}

// AuthBackend выдаёт токен сессии.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (Credentials, error)
	Register(ctx context.Context, username, email, password string) (Credentials, error)
}

// TokenSource отдаёт текущий bearer-токен; пустая строка — без авторизации.
type TokenSource interface {
	Token() string
}

// BlobStore — долговременное локальное key-value хранилище.
// Значение перезаписывается целиком при каждой записи.
type BlobStore interface {
	// Get возвращает значение или ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete идемпотентен: отсутствующий ключ не является ошибкой.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
