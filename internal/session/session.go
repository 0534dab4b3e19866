// Package session управляет жизненным циклом клиентской сессии: загрузкой
// сохранённого токена, входом, регистрацией и выходом. Сессия владеет
// состоянием корзины в памяти и передаёт его потребителям явно.
package session

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketcart/internal/cart"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
)

// ErrAuthUnavailable возвращается при входе без настроенного коллаборатора.
var ErrAuthUnavailable = errors.New("sign-in requires the remote api")

// Options задаёт зависимости Session.
type Options struct {
	// Auth может быть nil, если удалённое API отключено.
	Auth        domain.AuthBackend
	Local       *local.Mirror
	Credentials *Credentials
	Carts       *cart.Store
	Logger      *log.Entry
}

// Session — состояние клиента между Init и Teardown.
type Session struct {
	auth   domain.AuthBackend
	local  *local.Mirror
	creds  *Credentials
	carts  *cart.Store
	logger *log.Entry
}

// New создаёт сессию. Local, Credentials и Carts обязательны.
func New(opts Options) *Session {
	if opts.Local == nil || opts.Credentials == nil || opts.Carts == nil {
		panic("session: local mirror, credentials and cart store are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "session")
	}
	return &Session{
		auth:   opts.Auth,
		local:  opts.Local,
		creds:  opts.Credentials,
		carts:  opts.Carts,
		logger: logger,
	}
}

// Credentials возвращает держатель токена сессии.
func (s *Session) Credentials() *Credentials {
	return s.creds
}

// Carts возвращает корзину сессии.
func (s *Session) Carts() *cart.Store {
	return s.carts
}

// Init восстанавливает сохранённый токен и профиль и загружает корзину.
func (s *Session) Init(ctx context.Context) error {
	token, err := s.local.Token(ctx)
	if err != nil {
		return fmt.Errorf("load session token: %w", err)
	}
	user, err := s.local.User(ctx)
	if err != nil {
		return fmt.Errorf("load session user: %w", err)
	}
	s.creds.Set(domain.Credentials{Token: token, User: user})

	items := s.carts.GetCart(ctx)
	s.logger.WithFields(log.Fields{
		"authenticated": token != "",
		"mode":          s.carts.Mode(),
		"items":         items.Count(),
	}).Info("session initialized")
	return nil
}

// Login выполняет вход, сохраняет токен и перечитывает корзину пользователя.
func (s *Session) Login(ctx context.Context, email, password string) (domain.User, error) {
	if s.auth == nil {
		return domain.User{}, ErrAuthUnavailable
	}
	creds, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.logger.WithError(err).Warn("login failed")
		return domain.User{}, err
	}
	if err := s.open(ctx, creds); err != nil {
		return domain.User{}, err
	}
	return creds.User, nil
}

// Register регистрирует пользователя. Если коллаборатор вернул токен,
// сессия открывается сразу; иначе loggedIn=false и нужен отдельный вход.
func (s *Session) Register(ctx context.Context, username, email, password string) (user domain.User, loggedIn bool, err error) {
	if s.auth == nil {
		return domain.User{}, false, ErrAuthUnavailable
	}
	creds, err := s.auth.Register(ctx, username, email, password)
	if err != nil {
		s.logger.WithError(err).Warn("registration failed")
		return domain.User{}, false, err
	}
	if creds.Token == "" {
		return creds.User, false, nil
	}
	if err := s.open(ctx, creds); err != nil {
		return domain.User{}, false, err
	}
	return creds.User, true, nil
}

func (s *Session) open(ctx context.Context, creds domain.Credentials) error {
	if err := s.local.SaveSession(ctx, creds); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.creds.Set(creds)
	s.carts.Teardown()
	s.carts.GetCart(ctx)
	s.logger.WithField("user", creds.User.Username).Info("signed in")
	return nil
}

// Teardown завершает сессию: удаляет токен и профиль и сбрасывает корзину в
// памяти. Локальная копия корзины и история покупок сохраняются.
func (s *Session) Teardown(ctx context.Context) error {
	s.creds.Clear()
	s.carts.Teardown()
	if err := s.local.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}
