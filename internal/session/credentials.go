package session

import (
	"sync"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// Credentials хранит токен и профиль текущей сессии в памяти.
// Передаётся REST-клиенту как domain.TokenSource.
type Credentials struct {
	mu    sync.RWMutex
	token string
	user  domain.User
}

var _ domain.TokenSource = (*Credentials)(nil)

// NewCredentials возвращает пустой держатель.
func NewCredentials() *Credentials {
	return &Credentials{}
}

// Token возвращает текущий токен или пустую строку.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User возвращает профиль текущего пользователя.
func (c *Credentials) User() domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Authenticated сообщает, есть ли токен.
func (c *Credentials) Authenticated() bool {
	return c.Token() != ""
}

// Set заменяет токен и профиль.
func (c *Credentials) Set(creds domain.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = creds.Token
	c.user = creds.User
}

// Clear сбрасывает токен и профиль.
func (c *Credentials) Clear() {
	c.Set(domain.Credentials{})
}
