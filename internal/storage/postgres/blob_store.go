package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

var _ domain.BlobStore = (*Store)(nil)

// Get читает значение ключа из local_state.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if strings.TrimSpace(key) == "" {
		return nil, domain.ErrKeyRequired
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select local state %q: %w", key, err)
	}
	return value, nil
}

// Put перезаписывает значение ключа целиком.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_state (key, value, updated_at, revision)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW(),
		    revision = local_state.revision + 1
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert local state %q: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ; отсутствие ключа не ошибка.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete local state %q: %w", key, err)
	}
	return nil
}

// Revision возвращает число перезаписей ключа (0, если ключа нет).
func (s *Store) Revision(ctx context.Context, key string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM local_state WHERE key = $1`, key).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select local state revision %q: %w", key, err)
	}
	return revision, nil
}
