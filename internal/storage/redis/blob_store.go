// Package redis хранит локальное состояние клиента в Redis под общим префиксом.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// DefaultPrefix — префикс ключей по умолчанию.
const DefaultPrefix = "marketcart:"

// BlobStore — реализация domain.BlobStore поверх go-redis. Значения хранятся без TTL.
type BlobStore struct {
	client *goredis.Client
	prefix string
}

var _ domain.BlobStore = (*BlobStore)(nil)

// NewBlobStore оборачивает готовый клиент.
func NewBlobStore(client *goredis.Client, prefix string) *BlobStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &BlobStore{client: client, prefix: prefix}
}

// Open подключается к Redis по адресу и проверяет доступность.
func Open(ctx context.Context, addr, prefix string) (*BlobStore, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	store := NewBlobStore(client, prefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return store, nil
}

func (s *BlobStore) key(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", domain.ErrKeyRequired
	}
	return s.prefix + key, nil
}

// Get читает значение ключа.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Put перезаписывает значение ключа.
func (s *BlobStore) Put(ctx context.Context, key string, value []byte) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, k, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Ping проверяет соединение.
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
