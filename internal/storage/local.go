package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/lungscan/internal/domain"
)

// LocalStorage keeps uploads in a directory on disk.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{dir: dir}
}

func (l *LocalStorage) Dir() string {
	return l.dir
}

// Save writes data to <dir>/<name>, creating the directory if needed.
func (l *LocalStorage) Save(name string, data []byte) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Open returns the stored file. Missing files and names escaping the directory yield domain.ErrNotFound.
func (l *LocalStorage) Open(name string) (*Object, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("file %s: %w", name, domain.ErrNotFound)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Object{Body: f, Size: info.Size(), ContentType: contentType}, nil
}

func (l *LocalStorage) path(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base != name || base == "/" || base == "." {
		return "", fmt.Errorf("file %q: %w", name, domain.ErrNotFound)
	}
	return filepath.Join(l.dir, base), nil
}
