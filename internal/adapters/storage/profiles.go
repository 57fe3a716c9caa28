package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// JSONProfileStore хранит sessions_info.json вида {"session": {phone, userId, ...}}
type JSONProfileStore struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func OpenJSONProfileStore(path string, log *slog.Logger) (*JSONProfileStore, error) {
	s := &JSONProfileStore{path: path, log: log, profiles: map[string]domain.Profile{}}
	found, err := loadJSON(path, &s.profiles)
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "open profiles", err)
	}
	if !found {
		log.Warn("no profiles file found, starting fresh", "path", path)
	} else {
		log.Info("profiles loaded", "entries", len(s.profiles))
	}
	if s.profiles == nil {
		s.profiles = map[string]domain.Profile{}
	}
	return s, nil
}

func (s *JSONProfileStore) Get(ctx context.Context, session string) (domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[session]
	return p, ok, nil
}

func (s *JSONProfileStore) All(ctx context.Context) (map[string]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Profile, len(s.profiles))
	for k, v := range s.profiles {
		out[k] = v
	}
	return out, nil
}

func (s *JSONProfileStore) Put(ctx context.Context, session string, p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[session] = p
	return s.saveLocked()
}

func (s *JSONProfileStore) Delete(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[session]; !ok {
		return nil
	}
	delete(s.profiles, session)
	return s.saveLocked()
}

func (s *JSONProfileStore) saveLocked() error {
	if err := saveJSON(s.path, s.profiles); err != nil {
		return domain.E(domain.KindPersistence, "save profiles", err)
	}
	return nil
}
