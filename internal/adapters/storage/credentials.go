package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// CredentialStore держит по одному файлу <name>.session на сессию
type CredentialStore struct {
	dir string // "./data/sessions"
	log *slog.Logger
}

func NewCredentialStore(dir string, log *slog.Logger) *CredentialStore {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		// не фатально: ошибка всплывёт при первой записи
		log.Warn("mkdir sessions dir", "dir", dir, "error", err)
	}
	return &CredentialStore{dir: dir, log: log}
}

func (s *CredentialStore) path(name string) string {
	return filepath.Join(s.dir, domain.SanitizeName(name)+domain.SessionSuffix)
}

func (s *CredentialStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.E(domain.KindPersistence, "list sessions", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), domain.SessionSuffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), domain.SessionSuffix))
	}
	sort.Strings(out)
	return out, nil
}

func (s *CredentialStore) Read(ctx context.Context, name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.E(domain.KindPersistence, "read session "+name, domain.ErrNotFound)
		}
		return "", domain.E(domain.KindPersistence, "read session "+name, err)
	}
	return string(data), nil
}

func (s *CredentialStore) Write(ctx context.Context, name, blob string) error {
	if err := writeFileAtomic(s.path(name), []byte(blob), 0o600); err != nil {
		return domain.E(domain.KindPersistence, "write session "+name, err)
	}
	return nil
}

func (s *CredentialStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, domain.E(domain.KindPersistence, "stat session "+name, err)
	}
}

func (s *CredentialStore) Delete(ctx context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.E(domain.KindPersistence, "delete session "+name, domain.ErrNotFound)
		}
		return domain.E(domain.KindPersistence, "delete session "+name, err)
	}
	return nil
}

// writeFileAtomic пишет во временный файл рядом и переименовывает поверх
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	return os.Rename(tmpName, path)
}
