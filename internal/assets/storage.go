package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaStore сохраняет файлы ассетов и возвращает публичный URL.
type MediaStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// LocalMediaStore пишет файлы в смонтированный каталог, который раздается по MEDIA_BASE_URL.
type LocalMediaStore struct {
	dir     string
	baseURL string
}

// NewLocalMediaStore проверяет каталог и создает его при необходимости.
func NewLocalMediaStore(dir, baseURL string) (*LocalMediaStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("media dir (MEDIA_DIR) is not configured")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("media base URL (MEDIA_BASE_URL) is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalMediaStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Save пишет файл по ключу вида "images/<segment>.png" и возвращает URL.
func (s *LocalMediaStore) Save(_ context.Context, key string, data []byte) (string, error) {
	clean := filepath.Clean("/" + key)
	path := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaSaveFailed, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaSaveFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrMediaSaveFailed, err)
	}
	return s.baseURL + filepath.ToSlash(clean), nil
}
