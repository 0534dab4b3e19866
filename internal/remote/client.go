// Package remote реализует клиент REST-коллаборатора корзины: запросы с
// ограниченным таймаутом, bearer-авторизацией и circuit breaker, с
// классификацией ответов в Success / Unreachable / Rejected.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

const (
	// DefaultTimeout — таймаут одного обращения к коллаборатору.
	DefaultTimeout = 3 * time.Second
	// DefaultBreakerFailures — число подряд неудачных вызовов до размыкания.
	DefaultBreakerFailures uint32 = 3
	// DefaultBreakerCooldown — время в разомкнутом состоянии до пробного вызова.
	DefaultBreakerCooldown = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// ErrBaseURLRequired возвращается, если адрес коллаборатора не задан.
var ErrBaseURLRequired = errors.New("remote base url is required")

// Observer получает длительность и исход каждого вызова.
type Observer func(op string, elapsed time.Duration, outcome domain.Outcome)

// BreakerObserver получает переходы состояния circuit breaker.
type BreakerObserver func(from, to gobreaker.State)

// Options настраивает Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Tokens          domain.TokenSource
	UserAgent       string
	// Transport по умолчанию http.DefaultTransport; всегда оборачивается otelhttp.
	Transport      http.RoundTripper
	Logger         *log.Entry
	Observe        Observer
	OnBreakerState BreakerObserver
}

// Client обращается к REST-коллаборатору. Безопасен для конкурентного использования.
type Client struct {
	base      *url.URL
	http      *http.Client
	transport *http.Transport
	timeout   time.Duration
	tokens    domain.TokenSource
	userAgent string
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *log.Entry
	observe   Observer
}

var (
	_ domain.CartBackend     = (*Client)(nil)
	_ domain.CheckoutBackend = (*Client)(nil)
	_ domain.AuthBackend     = (*Client)(nil)
)

// New создаёт клиент коллаборатора.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, ErrBaseURLRequired
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote base url %q must be absolute", raw)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = DefaultBreakerCooldown
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "remote-client")
	}

	rt := opts.Transport
	var owned *http.Transport
	if rt == nil {
		owned = http.DefaultTransport.(*http.Transport).Clone()
		rt = owned
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Transport: otelhttp.NewTransport(rt)},
		transport: owned,
		timeout:   opts.Timeout,
		tokens:    opts.Tokens,
		userAgent: opts.UserAgent,
		logger:    logger,
		observe:   opts.Observe,
	}

	failures := opts.BreakerFailures
	onState := opts.OnBreakerState
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "marketcart-remote",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Отказ по бизнес-правилу означает, что коллаборатор доступен.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrRejected)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{"from": from.String(), "to": to.String()}).Warn("remote breaker state changed")
			if onState != nil {
				onState(from, to)
			}
		},
	})

	return c, nil
}

// BaseURL возвращает адрес коллаборатора.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// BreakerState возвращает текущее состояние circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Available сообщает, пропускает ли breaker запросы.
func (c *Client) Available() bool {
	return c.breaker.State() != gobreaker.StateOpen
}

// Close закрывает простаивающие соединения.
func (c *Client) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	c.http.CloseIdleConnections()
}

// do выполняет вызов через breaker и возвращает тело успешного ответа.
func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	start := time.Now()
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, op, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domain.Unreachable(op, 0, err)
	}
	c.report(op, start, err)
	return data, err
}

func (c *Client) report(op string, start time.Time, err error) {
	outcome := domain.ClassifyOutcome(err)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{"op": op, "outcome": outcome.String()}).Debug("remote call failed")
	}
	if c.observe != nil {
		c.observe(op, time.Since(start), outcome)
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, domain.Unreachable(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Unreachable(op, 0, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err := classifyStatus(op, resp.StatusCode, data); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, domain.Unreachable(op, resp.StatusCode, readErr)
	}
	if explicitFailure(data) {
		return nil, domain.Rejected(op, resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

// classifyStatus сводит HTTP-статус к исходу. Отсутствующий эндпоинт и
// перегрузка считаются недоступностью, остальные 4xx — отказом.
func classifyStatus(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500,
		status == http.StatusNotFound,
		status == http.StatusMethodNotAllowed,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return domain.Unreachable(op, status, errors.New(http.StatusText(status)))
	case status >= 400:
		return domain.Rejected(op, status, errorMessage(body))
	default:
		return domain.Unreachable(op, status, fmt.Errorf("unexpected status %d", status))
	}
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// explicitFailure распознаёт ответ 2xx вида {"success": false}.
func explicitFailure(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return false
	}
	return env.Success != nil && !*env.Success
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return ""
}
