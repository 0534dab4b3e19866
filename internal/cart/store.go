// Package cart реализует хранилище корзины с двумя режимами работы:
// RemoteBacked (источник истины — REST-коллаборатор) и LocalFallback
// (долговременная локальная копия, когда коллаборатор недоступен).
//
// Режим выбирается для каждого вызова. Данные между режимами не сливаются и
// не синхронизируются после восстановления связи: изменения, сделанные
// локально во время недоступности, не попадают на сервер.
//
// Мутации применяются к представлению в памяти сразу (оптимистично), а по
// завершении подтверждаются или откатываются. Каждый вызов получает
// порядковый номер; ответ мутации с номером не больше последней применённой
// мутации отбрасывается, поэтому выигрывает последняя по порядку операция, а
// не последняя завершившаяся. Чтение заменяет подтверждённое состояние, но не
// снимает неподтверждённые мутации и не отменяет их будущие ответы.
package cart

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/local"
	"github.com/vladislavdragonenkov/marketcart/internal/metrics"
)

const (
	opGetCart        = "get_cart"
	opAddItem        = "add_item"
	opUpdateQuantity = "update_quantity"
	opRemoveItem     = "remove_item"
	opClearCart      = "clear_cart"
)

// DefaultFetchTimeout ограничивает общий запрос чтения корзины.
const DefaultFetchTimeout = 3 * time.Second

// Options задаёт зависимости Store.
type Options struct {
	// Remote может быть nil: тогда все операции выполняются локально.
	Remote  domain.CartBackend
	Local   *local.Mirror
	Logger  *log.Entry
	Metrics *metrics.CartMetrics
	// FetchTimeout ограничивает обращение к коллаборатору при чтении,
	// которое не зависит от отмены контекста отдельного вызывающего.
	FetchTimeout time.Duration
}

type pendingOp struct {
	seq   uint64
	apply func(domain.Cart) domain.Cart
}

// Store — корзина клиентской сессии. Безопасен для конкурентного использования.
type Store struct {
	remote  domain.CartBackend
	local   *local.Mirror
	logger  *log.Entry
	metrics *metrics.CartMetrics
	fetches singleflight.Group

	fetchTimeout time.Duration

	mu        sync.Mutex
	confirmed domain.Cart
	pending   []pendingOp
	issued    uint64
	applied   uint64
	mutated   uint64
	mode      domain.Mode
	loaded    bool
}

// NewStore создаёт Store. Local обязателен.
func NewStore(opts Options) *Store {
	if opts.Local == nil {
		panic("cart: local mirror is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "cart-store")
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Store{
		remote:       opts.Remote,
		local:        opts.Local,
		logger:       logger,
		metrics:      opts.Metrics,
		fetchTimeout: fetchTimeout,
		confirmed:    domain.Cart{},
		mode:         domain.ModeUnknown,
	}
}

// GetCart возвращает корзину. Любая ошибка коллаборатора, включая отказ,
// поглощается чтением локальной копии; ошибка наружу не возвращается.
// Конкурентные вызовы разделяют один запрос; отмена контекста первого
// вызывающего его не прерывает.
func (s *Store) GetCart(ctx context.Context) domain.Cart {
	_, _, _ = s.fetches.Do(opGetCart, func() (any, error) {
		seq := s.nextSeq()
		cart, mode, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.WithError(err).Error("cart unavailable in both remote and local stores")
			return nil, nil
		}
		s.settle(opGetCart, seq, cart, mode)
		return nil, nil
	})
	return s.Snapshot()
}

func (s *Store) fetch(ctx context.Context) (domain.Cart, domain.Mode, error) {
	if s.remote != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		cart, err := s.remote.FetchCart(remoteCtx)
		cancel()
		outcome := domain.ClassifyOutcome(err)
		if err == nil {
			s.metrics.RecordOperation(opGetCart, domain.ModeRemoteBacked, outcome)
			return cart, domain.ModeRemoteBacked, nil
		}
		s.logger.WithError(err).WithField("outcome", outcome.String()).Warn("remote cart fetch failed, reading local copy")
		s.metrics.RecordOperation(opGetCart, domain.ModeLocalFallback, outcome)
	} else {
		s.metrics.RecordOperation(opGetCart, domain.ModeLocalFallback, domain.OutcomeUnreachable)
	}

	cart, err := s.local.Cart(ctx)
	if err != nil {
		return nil, domain.ModeLocalFallback, err
	}
	return cart, domain.ModeLocalFallback, nil
}

// AddItem добавляет товар: существующий id увеличивает количество, новый
// дописывается в конец. Неположительный id отклоняется с ErrProductIDInvalid.
func (s *Store) AddItem(ctx context.Context, product domain.Product, qty int) (domain.Cart, error) {
	if !product.ID.Valid() {
		return s.Snapshot(), domain.ErrProductIDInvalid
	}
	item := domain.NewLineItem(product, qty)
	return s.mutate(ctx, opAddItem,
		func(c domain.Cart) domain.Cart { return c.Add(item) },
		func(ctx context.Context) (domain.Cart, error) { return s.remote.AddItem(ctx, item) },
	)
}

// UpdateQuantity задаёт количество позиции; значения меньше 1 приводятся к 1.
// Неизвестный id — no-op.
func (s *Store) UpdateQuantity(ctx context.Context, id domain.ProductID, qty int) (domain.Cart, error) {
	qty = domain.NormalizeQuantity(qty)
	return s.mutate(ctx, opUpdateQuantity,
		func(c domain.Cart) domain.Cart { return c.SetQuantity(id, qty) },
		func(ctx context.Context) (domain.Cart, error) { return s.remote.UpdateQuantity(ctx, id, qty) },
	)
}

// RemoveItem удаляет позицию; отсутствующий id — no-op.
func (s *Store) RemoveItem(ctx context.Context, id domain.ProductID) (domain.Cart, error) {
	return s.mutate(ctx, opRemoveItem,
		func(c domain.Cart) domain.Cart { return c.Remove(id) },
		func(ctx context.Context) (domain.Cart, error) { return s.remote.RemoveItem(ctx, id) },
	)
}

// ClearCart очищает корзину; идемпотентна.
func (s *Store) ClearCart(ctx context.Context) (domain.Cart, error) {
	return s.mutate(ctx, opClearCart,
		func(domain.Cart) domain.Cart { return domain.Cart{} },
		func(ctx context.Context) (domain.Cart, error) { return s.remote.ClearCart(ctx) },
	)
}

// mutate применяет операцию оптимистично, затем пробует коллаборатор и при
// недоступности — локальную копию. Отказ коллаборатора откатывает операцию.
func (s *Store) mutate(
	ctx context.Context,
	op string,
	apply func(domain.Cart) domain.Cart,
	remote func(context.Context) (domain.Cart, error),
) (domain.Cart, error) {
	seq := s.begin(apply)
	logger := s.logger.WithFields(log.Fields{"op": op, "seq": seq})

	if s.remote != nil {
		cart, err := remote(ctx)
		switch outcome := domain.ClassifyOutcome(err); outcome {
		case domain.OutcomeSuccess:
			s.metrics.RecordOperation(op, domain.ModeRemoteBacked, outcome)
			s.settle(op, seq, cart, domain.ModeRemoteBacked)
			return s.Snapshot(), nil
		case domain.OutcomeRejected:
			logger.WithError(err).Warn("remote rejected cart operation")
			s.metrics.RecordOperation(op, domain.ModeRemoteBacked, outcome)
			s.rollback(seq)
			return s.Snapshot(), err
		default:
			logger.WithError(err).Info("remote unreachable, applying to local copy")
			s.metrics.RecordOperation(op, domain.ModeLocalFallback, outcome)
		}
	} else {
		s.metrics.RecordOperation(op, domain.ModeLocalFallback, domain.OutcomeUnreachable)
	}

	cart, err := s.local.UpdateCart(ctx, apply)
	if err != nil {
		logger.WithError(err).Error("local cart write failed")
		s.rollback(seq)
		return s.Snapshot(), err
	}
	s.settle(op, seq, cart, domain.ModeLocalFallback)
	return s.Snapshot(), nil
}

func (s *Store) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// begin выдаёт номер операции и добавляет её в очередь неподтверждённых.
func (s *Store) begin(apply func(domain.Cart) domain.Cart) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.pending = append(s.pending, pendingOp{seq: s.issued, apply: apply})
	s.metrics.SetCartItems(s.viewLocked().Count())
	return s.issued
}

// settle принимает ответ операции seq и делает его подтверждённым состоянием.
// Ответ мутации отбрасывается, если уже применён ответ более поздней мутации;
// ответ чтения — если применён любой более поздний ответ. Мутации с меньшими
// номерами считаются учтёнными только в ответе мутации: после чтения они
// остаются в очереди и применяются поверх прочитанного до своего ответа.
func (s *Store) settle(op string, seq uint64, cart domain.Cart, mode domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	read := op == opGetCart
	s.dropPendingLocked(func(p pendingOp) bool { return p.seq == seq })
	watermark := s.mutated
	if read {
		watermark = s.applied
	}
	if seq <= watermark {
		s.logger.WithFields(log.Fields{"op": op, "seq": seq, "applied": watermark}).Debug("discarding stale response")
		s.metrics.RecordStaleResponse(op)
		return
	}

	if seq > s.applied {
		s.applied = seq
	}
	s.confirmed = cart.Clone()
	s.mode = mode
	s.loaded = true
	if !read {
		s.mutated = seq
		s.dropPendingLocked(func(p pendingOp) bool { return p.seq < seq })
	}
	s.metrics.SetCartItems(s.viewLocked().Count())
}

// rollback снимает неподтверждённую операцию.
func (s *Store) rollback(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked(func(p pendingOp) bool { return p.seq == seq })
	s.metrics.SetCartItems(s.viewLocked().Count())
}

func (s *Store) dropPendingLocked(drop func(pendingOp) bool) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if !drop(p) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = pendingOp{}
	}
	s.pending = kept
}

func (s *Store) viewLocked() domain.Cart {
	view := s.confirmed.Clone()
	for _, p := range s.pending {
		view = p.apply(view)
	}
	return view
}

// Snapshot возвращает текущее представление корзины без ввода-вывода:
// подтверждённое состояние плюс неподтверждённые операции по порядку.
func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Mode возвращает режим последней применённой операции.
func (s *Store) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Loaded сообщает, применялся ли хотя бы один ответ с начала сессии.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Pending возвращает число неподтверждённых операций.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ResetAfterCheckout фиксирует пустую корзину после успешного оформления.
// Ответы операций, начатых до оформления, будут отброшены.
func (s *Store) ResetAfterCheckout(mode domain.Mode) {
	s.reset(mode, true)
}

// Teardown сбрасывает представление в памяти при завершении сессии.
// Долговременная локальная копия не затрагивается.
func (s *Store) Teardown() {
	s.reset(domain.ModeUnknown, false)
}

func (s *Store) reset(mode domain.Mode, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.applied = s.issued
	s.mutated = s.issued
	s.confirmed = domain.Cart{}
	s.pending = nil
	s.mode = mode
	s.loaded = loaded
	s.metrics.SetCartItems(0)
}
