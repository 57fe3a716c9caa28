package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// JSONLedger хранит joined_channels.json вида {"session": ["@target", ...]}.
// Каждое изменение сразу сбрасывается на диск.
type JSONLedger struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	entries map[string][]string
}

func OpenJSONLedger(path string, log *slog.Logger) (*JSONLedger, error) {
	l := &JSONLedger{path: path, log: log, entries: map[string][]string{}}
	found, err := loadJSON(path, &l.entries)
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "open ledger", err)
	}
	if !found {
		log.Warn("no ledger file found, starting fresh", "path", path)
	} else {
		log.Info("ledger loaded", "sessions", len(l.entries))
	}
	if l.entries == nil {
		l.entries = map[string][]string{}
	}
	return l, nil
}

func (l *JSONLedger) Targets(ctx context.Context, session string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[session]...), nil
}

func (l *JSONLedger) All(ctx context.Context) (map[string][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]string, len(l.entries))
	for k, v := range l.entries {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (l *JSONLedger) Add(ctx context.Context, session, target string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.entries[session] {
		if domain.SameTarget(t, target) {
			return false, nil
		}
	}
	l.entries[session] = append(l.entries[session], target)
	return true, l.saveLocked()
}

func (l *JSONLedger) Remove(ctx context.Context, session, target string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	targets := l.entries[session]
	kept := targets[:0:0]
	for _, t := range targets {
		if !domain.SameTarget(t, target) {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(targets) {
		return false, nil
	}
	l.entries[session] = kept
	return true, l.saveLocked()
}

func (l *JSONLedger) Forget(ctx context.Context, session string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[session]; !ok {
		return nil
	}
	delete(l.entries, session)
	return l.saveLocked()
}

func (l *JSONLedger) saveLocked() error {
	if err := saveJSON(l.path, l.entries); err != nil {
		return domain.E(domain.KindPersistence, "save ledger", err)
	}
	return nil
}
