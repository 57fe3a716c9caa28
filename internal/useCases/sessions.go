package useCases

import (
	"context"
	"log/slog"
	"sort"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
)

// Sessions: просмотр и удаление сохранённых сессий
type Sessions struct {
	creds    ports.CredentialStore
	ledger   ports.Ledger
	profiles ports.ProfileStore
	log      *slog.Logger
}

func NewSessions(creds ports.CredentialStore, ledger ports.Ledger, profiles ports.ProfileStore, log *slog.Logger) *Sessions {
	return &Sessions{creds: creds, ledger: ledger, profiles: profiles, log: log}
}

func (s *Sessions) Names(ctx context.Context) ([]string, error) {
	return s.creds.List(ctx)
}

// Summaries: строки для постраничного списка сессий
func (s *Sessions) Summaries(ctx context.Context) ([]domain.SessionSummary, error) {
	names, err := s.creds.List(ctx)
	if err != nil {
		return nil, err
	}
	joined, err := s.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SessionSummary, 0, len(names))
	for _, name := range names {
		sum := domain.SessionSummary{Name: name, JoinedCount: len(joined[name])}
		if p, ok := profiles[name]; ok {
			sum.Profile = &p
		}
		out = append(out, sum)
	}
	return out, nil
}

// Joined: плоский список (сессия, цель) в стабильном порядке
func (s *Sessions) Joined(ctx context.Context) ([]domain.LedgerEntry, error) {
	all, err := s.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.LedgerEntry
	for _, name := range sortedKeys(all) {
		for _, t := range all[name] {
			out = append(out, domain.LedgerEntry{Session: name, Target: t})
		}
	}
	return out, nil
}

// Delete удаляет blob сессии; записи ledger и профиля чистятся best-effort
func (s *Sessions) Delete(ctx context.Context, name string) error {
	log := s.log.With("session", name)
	log.Warn("delete session requested")

	if err := s.creds.Delete(ctx, name); err != nil {
		log.Error("delete session blob", "error", err)
		return err
	}
	if err := s.ledger.Forget(ctx, name); err != nil {
		log.Error("forget joined targets", "error", err)
	}
	if err := s.profiles.Delete(ctx, name); err != nil {
		log.Error("delete session profile", "error", err)
	}
	log.Info("session deleted")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
