package cartapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/session"
)

// Короткие сообщения для UI. Подробности ошибки пишутся в лог.
const (
	msgInvalidBody     = "The request could not be read."
	msgInvalidProduct  = "This product cannot be added to the cart."
	msgCartEmpty       = "Your cart is empty."
	msgCartRejected    = "The cart could not be updated."
	msgLoginFailed     = "Email or password is incorrect."
	msgLoginRequired   = "Email and password are required."
	msgAuthUnavailable = "Sign-in is temporarily unavailable."
	msgInternal        = "Something went wrong. Please try again."
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondDomainError переводит ошибку корзины или сессии в HTTP-ответ.
// fallback — сообщение для отказа коллаборатора в контексте операции.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	entry := h.logger.WithError(err).WithField("path", r.URL.Path)

	var remoteErr *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrProductIDInvalid):
		respondError(w, http.StatusBadRequest, "invalid_product_id", msgInvalidProduct)
	case errors.Is(err, domain.ErrCartEmpty):
		respondError(w, http.StatusConflict, "cart_empty", msgCartEmpty)
	case errors.Is(err, domain.ErrCredentialsRequired):
		respondError(w, http.StatusBadRequest, "credentials_required", msgLoginRequired)
	case errors.Is(err, session.ErrAuthUnavailable), errors.Is(err, domain.ErrUnreachable):
		entry.Warn("collaborator unavailable")
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", msgAuthUnavailable)
	case errors.As(err, &remoteErr) && remoteErr.Outcome == domain.OutcomeRejected:
		entry.Info("collaborator rejected request")
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   fallback,
			Code:    "rejected",
			Details: remoteErr.Message,
		})
	default:
		entry.Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", msgInternal)
	}
}
