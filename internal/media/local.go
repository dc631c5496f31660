package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"careercoach/internal/models"
)

// LocalStore writes recordings under a base directory.
type LocalStore struct {
	baseDir string
	baseURL string
}

func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir, baseURL: baseURL}, nil
}

func (s *LocalStore) Save(ctx context.Context, userID int64, filename, contentType string, body io.Reader) (*models.MediaObject, error) {
	if !Allowed(contentType) {
		return nil, ErrUnsupportedType
	}
	key := newKey(userID, filename, contentType)
	dest := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create user media dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create media file: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("write media file: %w", err)
	}
	return &models.MediaObject{
		Key:         key,
		URL:         publicURL(s.baseURL, key),
		ContentType: contentType,
		Size:        n,
	}, nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !validKey(key) {
		return nil, "", ErrInvalidKey
	}
	f, err := os.Open(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open media file: %w", err)
	}
	return f, typeForKey(key), nil
}
