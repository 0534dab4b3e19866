// Package cartapi — JSON API корзины для UI: чтение и изменение корзины,
// оформление заказа, история покупок и вход. Режим хранилища, в котором
// выполнен запрос, возвращается в заголовке X-Cart-Mode.
package cartapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketcart/internal/checkout"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/session"
)

// ModeHeader — заголовок с режимом хранилища корзины.
const ModeHeader = "X-Cart-Mode"

const maxBodyBytes = 1 << 20

// CartService — операции корзины, доступные API.
type CartService interface {
	GetCart(ctx context.Context) domain.Cart
	AddItem(ctx context.Context, product domain.Product, qty int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, id domain.ProductID, qty int) (domain.Cart, error)
	RemoveItem(ctx context.Context, id domain.ProductID) (domain.Cart, error)
	ClearCart(ctx context.Context) (domain.Cart, error)
	Mode() domain.Mode
}

// CheckoutService оформляет заказы и читает историю.
type CheckoutService interface {
	Checkout(ctx context.Context) (checkout.Receipt, error)
	History(ctx context.Context) (domain.PurchaseHistory, domain.Mode, error)
	Summary(ctx context.Context) checkout.Summary
}

// SessionService управляет входом пользователя.
type SessionService interface {
	Login(ctx context.Context, email, password string) (domain.User, error)
	Register(ctx context.Context, username, email, password string) (domain.User, bool, error)
	Teardown(ctx context.Context) error
	Credentials() *session.Credentials
}

// Handler обслуживает /api.
type Handler struct {
	carts    CartService
	checkout CheckoutService
	session  SessionService
	logger   *log.Entry
}

// NewHandler создаёт обработчик API.
func NewHandler(carts CartService, co CheckoutService, sess SessionService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "cart-api")
	}
	return &Handler{
		carts:    carts,
		checkout: co,
		session:  sess,
		logger:   logger,
	}
}

type cartResponse struct {
	Items domain.Cart `json:"items"`
	Count int         `json:"count"`
	Mode  domain.Mode `json:"mode"`
}

// quantity принимает число или строку; нечисловое значение даёт 1.
type quantity int

func (q *quantity) UnmarshalJSON(data []byte) error {
	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	}
	*q = quantity(domain.ParseQuantity(raw))
	return nil
}

type addItemRequest struct {
	Product domain.Product `json:"product"`
	Qty     quantity       `json:"qty"`
}

type updateQuantityRequest struct {
	Qty quantity `json:"qty"`
}

type purchasesResponse struct {
	Items domain.PurchaseHistory `json:"items"`
	Mode  domain.Mode            `json:"mode"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          domain.User `json:"user"`
}

func (h *Handler) respondCart(w http.ResponseWriter, status int, items domain.Cart) {
	mode := h.carts.Mode()
	if items == nil {
		items = domain.Cart{}
	}
	w.Header().Set(ModeHeader, string(mode))
	respondJSON(w, status, cartResponse{Items: items, Count: items.Count(), Mode: mode})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", msgInvalidBody)
		return false
	}
	return true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (domain.ProductID, bool) {
	id, err := domain.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", msgInvalidProduct)
		return 0, false
	}
	return id, true
}

// GetCart GET /api/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, http.StatusOK, h.carts.GetCart(r.Context()))
}

// GetSummary GET /api/cart/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary := h.checkout.Summary(r.Context())
	w.Header().Set(ModeHeader, string(summary.Mode))
	respondJSON(w, http.StatusOK, summary)
}

// AddItem POST /api/cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items, err := h.carts.AddItem(r.Context(), req.Product, int(req.Qty))
	if err != nil {
		h.respondDomainError(w, r, err, msgCartRejected)
		return
	}
	h.respondCart(w, http.StatusCreated, items)
}

// UpdateQuantity PATCH /api/cart/items/{productID}
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items, err := h.carts.UpdateQuantity(r.Context(), id, int(req.Qty))
	if err != nil {
		h.respondDomainError(w, r, err, msgCartRejected)
		return
	}
	h.respondCart(w, http.StatusOK, items)
}

// RemoveItem DELETE /api/cart/items/{productID}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.carts.RemoveItem(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err, msgCartRejected)
		return
	}
	h.respondCart(w, http.StatusOK, items)
}

// ClearCart DELETE /api/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.ClearCart(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err, msgCartRejected)
		return
	}
	h.respondCart(w, http.StatusOK, items)
}

// Checkout POST /api/checkout. Тело ответа всегда Receipt с коротким сообщением.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.checkout.Checkout(r.Context())
	if receipt.Mode != "" {
		w.Header().Set(ModeHeader, string(receipt.Mode))
	}

	status := http.StatusCreated
	switch {
	case err == nil:
	case domain.ClassifyOutcome(err) == domain.OutcomeRejected:
		h.logger.WithError(err).Info("checkout rejected")
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCartEmpty):
		status = http.StatusConflict
	default:
		h.logger.WithError(err).Error("checkout failed")
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, receipt)
}

// Purchases GET /api/purchases
func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	history, mode, err := h.checkout.History(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err, msgInternal)
		return
	}
	if history == nil {
		history = domain.PurchaseHistory{}
	}
	w.Header().Set(ModeHeader, string(mode))
	respondJSON(w, http.StatusOK, purchasesResponse{Items: history, Mode: mode})
}

// GetSession GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	creds := h.session.Credentials()
	respondJSON(w, http.StatusOK, sessionResponse{
		Authenticated: creds.Authenticated(),
		User:          creds.User(),
	})
}

// Login POST /api/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := h.session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondDomainError(w, r, err, msgLoginFailed)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: user})
}

// Register POST /api/session/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, loggedIn, err := h.session.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondDomainError(w, r, err, msgLoginFailed)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{Authenticated: loggedIn, User: user})
}

// Logout POST /api/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Teardown(r.Context()); err != nil {
		h.respondDomainError(w, r, err, msgInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
