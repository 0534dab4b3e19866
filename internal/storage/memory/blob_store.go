// Package memory — in-memory реализация локального хранилища для тестов и
// режима без персистентности.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

var errClosed = errors.New("memory store is closed")

// BlobStore хранит значения в map под RWMutex.
type BlobStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

var _ domain.BlobStore = (*BlobStore)(nil)

// NewBlobStore возвращает пустое хранилище.
func NewBlobStore() *BlobStore {
	return &BlobStore{items: make(map[string][]byte)}
}

// Get возвращает копию значения или ErrKeyNotFound.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, domain.ErrKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put сохраняет копию значения.
func (s *BlobStore) Put(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete удаляет ключ.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Ping всегда успешен до Close.
func (s *BlobStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close помечает хранилище закрытым для health-проверок; данные сохраняются.
func (s *BlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len возвращает число записанных ключей.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
