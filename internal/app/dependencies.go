package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/marketcart/internal/cart"
	"github.com/vladislavdragonenkov/marketcart/internal/checkout"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketcart/internal/health"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
	"github.com/vladislavdragonenkov/marketcart/internal/metrics"
	"github.com/vladislavdragonenkov/marketcart/internal/remote"
	"github.com/vladislavdragonenkov/marketcart/internal/session"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/file"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/postgres"
	"github.com/vladislavdragonenkov/marketcart/internal/storage/redis"
	"github.com/vladislavdragonenkov/marketcart/internal/version"
)

// Dependencies — собранный граф компонентов корзины.
type Dependencies struct {
	Store       domain.BlobStore
	Mirror      *local.Mirror
	Remote      *remote.Client
	Metrics     *metrics.CartMetrics
	Credentials *session.Credentials
	Carts       *cart.Store
	Checkout    *checkout.Coordinator
	Session     *session.Session
	Logger      *log.Entry
}

// NewDependencies открывает локальное хранилище, создаёт клиента коллаборатора
// и связывает корзину, оформление заказа и сессию. Close освобождает ресурсы.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Store:       store,
		Metrics:     metrics.NewCartMetrics(),
		Credentials: session.NewCredentials(),
		Logger:      logger,
	}
	deps.Mirror = local.New(store, logger.WithField("component", "local-mirror"))

	if cfg.RemoteEnabled() {
		client, err := remote.New(remote.Options{
			BaseURL:         cfg.APIURL,
			Timeout:         cfg.RemoteTimeout,
			BreakerFailures: uint32(cfg.BreakerFailures),
			BreakerCooldown: cfg.BreakerCooldown,
			Tokens:          deps.Credentials,
			UserAgent:       version.UserAgent(),
			Logger:          logger.WithField("component", "remote-client"),
			Observe:         deps.Metrics.ObserveRemote,
			OnBreakerState: func(_, to gobreaker.State) {
				deps.Metrics.SetBreakerState(to)
			},
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init remote client: %w", err)
		}
		deps.Remote = client
		deps.Metrics.SetBreakerState(client.BreakerState())
	} else {
		logger.Warn("remote cart service disabled, running on local storage only")
	}

	// Интерфейсы получают nil без типа, если коллаборатор отключён.
	var (
		cartBackend     domain.CartBackend
		checkoutBackend domain.CheckoutBackend
		authBackend     domain.AuthBackend
	)
	if deps.Remote != nil {
		cartBackend = deps.Remote
		checkoutBackend = deps.Remote
		authBackend = deps.Remote
	}

	deps.Carts = cart.NewStore(cart.Options{
		Remote:       cartBackend,
		Local:        deps.Mirror,
		Logger:       logger.WithField("component", "cart-store"),
		Metrics:      deps.Metrics,
		FetchTimeout: cfg.RemoteTimeout,
	})
	pricing := cfg.Pricing()
	deps.Checkout = checkout.NewCoordinator(checkout.Options{
		Remote:  checkoutBackend,
		Local:   deps.Mirror,
		Carts:   deps.Carts,
		Pricing: &pricing,
		Logger:  logger.WithField("component", "checkout"),
		Metrics: deps.Metrics,
	})
	deps.Session = session.New(session.Options{
		Auth:        authBackend,
		Local:       deps.Mirror,
		Credentials: deps.Credentials,
		Carts:       deps.Carts,
		Logger:      logger.WithField("component", "session"),
	})

	return deps, nil
}

// RegisterHealthCheckers добавляет проверки локального хранилища и коллаборатора.
func (d *Dependencies) RegisterHealthCheckers(h *healthcheck.Handler) {
	h.RegisterChecker("local_store", healthcheck.NewSimpleChecker("local_store", d.Mirror.Ping))
	if d.Remote == nil {
		return
	}
	client := d.Remote
	h.RegisterChecker("remote", healthcheck.NewDegradedChecker("remote", func(context.Context) error {
		if !client.Available() {
			return fmt.Errorf("circuit breaker %s, serving local fallback", client.BreakerState())
		}
		return nil
	}))
}

// Close закрывает соединения с коллаборатором и локальным хранилищем.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	if d.Remote != nil {
		d.Remote.Close()
	}
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}

func openBlobStore(ctx context.Context, cfg Config, logger *log.Entry) (domain.BlobStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	entry := logger.WithField("storage_driver", driver)

	switch driver {
	case StorageDriverMemory:
		entry.Warn("in-memory local store: cart and purchases are lost on restart")
		return memory.NewBlobStore(), nil
	case StorageDriverFile:
		store, err := file.Open(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		entry.WithField("dir", store.Dir()).Info("local store opened")
		return store, nil
	case StorageDriverRedis:
		store, err := redis.Open(ctx, cfg.RedisAddr, redis.DefaultPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		entry.WithField("addr", cfg.RedisAddr).Info("local store opened")
		return store, nil
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage driver requires " + EnvPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres store: %w", err)
			}
		}
		entry.Info("local store opened")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
