// Package metrics публикует Prometheus-метрики корзины и оформления заказов.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// CartMetrics содержит метрики корзины. Nil-получатель допустим: все методы
// становятся no-op, что удобно в тестах и CLI.
type CartMetrics struct {
	operations     *prometheus.CounterVec
	staleResponses *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	checkouts      *prometheus.CounterVec
	cartItems      prometheus.Gauge
	breakerState   prometheus.Gauge
}

// NewCartMetrics регистрирует метрики в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcart_cart_operations_total",
			Help: "Cart operations by operation, serving mode and remote outcome",
		}, []string{"op", "mode", "outcome"})),
		staleResponses: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcart_cart_stale_responses_total",
			Help: "Responses discarded because a newer sequence was already applied",
		}, []string{"op"})),
		remoteLatency: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketcart_remote_request_duration_seconds",
			Help:    "Latency of calls to the remote cart API",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"op", "outcome"})),
		checkouts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcart_checkouts_total",
			Help: "Checkout attempts by serving mode and result",
		}, []string{"mode", "result"})),
		cartItems: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcart_cart_items",
			Help: "Units currently in the cart view",
		})),
		breakerState: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcart_remote_breaker_state",
			Help: "Remote circuit breaker state: 0 closed, 1 half-open, 2 open",
		})),
	}
}

// register регистрирует коллектор или возвращает уже зарегистрированный того же типа.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
		}
		return existing
	}
	panic(fmt.Sprintf("register collector: %v", err))
}

// RecordOperation учитывает операцию корзины.
func (m *CartMetrics) RecordOperation(op string, mode domain.Mode, outcome domain.Outcome) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, string(mode), outcome.String()).Inc()
}

// RecordStaleResponse учитывает отброшенный устаревший ответ.
func (m *CartMetrics) RecordStaleResponse(op string) {
	if m == nil {
		return
	}
	m.staleResponses.WithLabelValues(op).Inc()
}

// ObserveRemote записывает длительность вызова коллаборатора.
func (m *CartMetrics) ObserveRemote(op string, elapsed time.Duration, outcome domain.Outcome) {
	if m == nil {
		return
	}
	m.remoteLatency.WithLabelValues(op, outcome.String()).Observe(elapsed.Seconds())
}

// RecordCheckout учитывает попытку оформления.
func (m *CartMetrics) RecordCheckout(mode domain.Mode, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(string(mode), result).Inc()
}

// SetCartItems фиксирует число единиц в корзине.
func (m *CartMetrics) SetCartItems(units int) {
	if m == nil {
		return
	}
	m.cartItems.Set(float64(units))
}

// SetBreakerState фиксирует состояние circuit breaker.
func (m *CartMetrics) SetBreakerState(state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}
