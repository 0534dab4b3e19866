package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

const (
	opLogin    = "login"
	opRegister = "register"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
	Message string       `json:"message"`
}

// Login выполняет POST /login и ожидает {token, user}.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Credentials, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Credentials{}, domain.ErrCredentialsRequired
	}
	data, err := c.do(ctx, opLogin, http.MethodPost, "/login", loginRequest{Email: email, Password: password})
	if err != nil {
		return domain.Credentials{}, err
	}
	var resp authResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.Credentials{}, domain.Unreachable(opLogin, http.StatusOK, err)
	}
	if resp.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "login failed"
		}
		return domain.Credentials{}, domain.Rejected(opLogin, http.StatusOK, msg)
	}
	return credentials(resp), nil
}

// Register выполняет POST /register. Токен в ответе необязателен: без него
// регистрация успешна, но сессия не открыта.
func (c *Client) Register(ctx context.Context, username, email, password string) (domain.Credentials, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Credentials{}, domain.ErrCredentialsRequired
	}
	req := registerRequest{Username: username, Email: email, Password: password}
	data, err := c.do(ctx, opRegister, http.MethodPost, "/register", req)
	if err != nil {
		return domain.Credentials{}, err
	}
	var resp authResponse
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			return domain.Credentials{}, domain.Unreachable(opRegister, http.StatusOK, err)
		}
	}
	return credentials(resp), nil
}

func credentials(resp authResponse) domain.Credentials {
	creds := domain.Credentials{Token: resp.Token}
	if resp.User != nil {
		creds.User = *resp.User
	}
	return creds
}
