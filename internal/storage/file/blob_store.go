// Package file хранит локальное состояние в каталоге: один JSON-файл на ключ.
// Запись атомарна (временный файл + rename), что защищает от обрывов записи,
// но не от конкурентных писателей из разных процессов.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

const dirPerm = 0o700

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// BlobStore — файловая реализация domain.BlobStore.
type BlobStore struct {
	dir string
	mu  sync.RWMutex
}

var _ domain.BlobStore = (*BlobStore)(nil)

// Open создаёт каталог при необходимости.
func Open(dir string) (*BlobStore, error) {
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// Dir возвращает каталог хранилища.
func (s *BlobStore) Dir() string {
	return s.dir
}

func (s *BlobStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", domain.ErrKeyRequired, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get читает файл ключа.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put атомарно перезаписывает файл ключа.
func (s *BlobStore) Put(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete удаляет файл ключа.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Ping проверяет, что каталог существует и доступен.
func (s *BlobStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat storage dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.dir)
	}
	return nil
}

// Close ничего не освобождает: файлы закрываются после каждой операции.
func (s *BlobStore) Close() error {
	return nil
}
