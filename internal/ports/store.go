package ports

import (
	"context"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// CredentialStore хранит сериализованную авторизацию по имени сессии
type CredentialStore interface {
	// List возвращает имена сессий в стабильном порядке
	List(ctx context.Context) ([]string, error)
	// Read возвращает blob или ошибку, обёрнутую вокруг domain.ErrNotFound
	Read(ctx context.Context, name string) (string, error)
	Write(ctx context.Context, name, blob string) error
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// Ledger хранит записи о вступлениях: сессия → множество целей
type Ledger interface {
	Targets(ctx context.Context, session string) ([]string, error)
	All(ctx context.Context) (map[string][]string, error)
	// Add: set-add; false, если цель уже была
	Add(ctx context.Context, session, target string) (bool, error)
	// Remove: false, если цели не было
	Remove(ctx context.Context, session, target string) (bool, error)
	// Forget удаляет запись сессии целиком
	Forget(ctx context.Context, session string) error
}

// ProfileStore: метаданные сессий
type ProfileStore interface {
	Get(ctx context.Context, session string) (domain.Profile, bool, error)
	All(ctx context.Context) (map[string]domain.Profile, error)
	Put(ctx context.Context, session string, p domain.Profile) error
	Delete(ctx context.Context, session string) error
}
