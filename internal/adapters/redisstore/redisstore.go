// Package redisstore хранит ledger и профили сессий в Redis-хешах
// вместо JSON-файлов: ключ, документ, поле, имя сессии.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	ledgerKey   = "autojoin:joined_channels"
	profilesKey = "autojoin:sessions_info"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix добавляется к ключам; нужен тестам и нескольким инсталляциям на одном Redis
	Prefix string
}

// Store реализует ports.Ledger и ports.ProfileStore
type Store struct {
	rdb      *redis.Client
	log      *slog.Logger
	ledger   string
	profiles string
}

func Open(ctx context.Context, opts Options, log *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, domain.E(domain.KindPersistence, "redis ping "+opts.Addr, err)
	}
	log.Info("redis store connected", "addr", opts.Addr, "db", opts.DB)
	return &Store{
		rdb:      rdb,
		log:      log,
		ledger:   opts.Prefix + ledgerKey,
		profiles: opts.Prefix + profilesKey,
	}, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ledger

func (s *Store) Targets(ctx context.Context, session string) ([]string, error) {
	raw, err := s.rdb.HGet(ctx, s.ledger, session).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "ledger targets", err)
	}
	return decodeTargets(raw)
}

func (s *Store) All(ctx context.Context) (map[string][]string, error) {
	raw, err := s.rdb.HGetAll(ctx, s.ledger).Result()
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "ledger all", err)
	}
	out := make(map[string][]string, len(raw))
	for session, v := range raw {
		targets, err := decodeTargets(v)
		if err != nil {
			return nil, err
		}
		out[session] = targets
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, session, target string) (bool, error) {
	var added bool
	err := s.update(ctx, session, func(targets []string) []string {
		for _, t := range targets {
			if domain.SameTarget(t, target) {
				added = false
				return nil
			}
		}
		added = true
		return append(targets, target)
	})
	if err != nil {
		return false, domain.E(domain.KindPersistence, "ledger add", err)
	}
	return added, nil
}

func (s *Store) Remove(ctx context.Context, session, target string) (bool, error) {
	var removed bool
	err := s.update(ctx, session, func(targets []string) []string {
		kept := make([]string, 0, len(targets))
		for _, t := range targets {
			if !domain.SameTarget(t, target) {
				kept = append(kept, t)
			}
		}
		removed = len(kept) != len(targets)
		if !removed {
			return nil
		}
		return kept
	})
	if err != nil {
		return false, domain.E(domain.KindPersistence, "ledger remove", err)
	}
	return removed, nil
}

func (s *Store) Forget(ctx context.Context, session string) error {
	if err := s.rdb.HDel(ctx, s.ledger, session).Err(); err != nil {
		return domain.E(domain.KindPersistence, "ledger forget", err)
	}
	return nil
}

// maxTxRetries: сколько раз переигрывать транзакцию, если ключ изменили под WATCH
const maxTxRetries = 100

// update: read-modify-write под WATCH; mutate возвращает nil, если менять нечего
func (s *Store) update(ctx context.Context, session string, mutate func([]string) []string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.updateOnce(ctx, session, mutate)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.log.Debug("ledger transaction conflict, retrying", "session", session, "attempt", i+1)
	}
	return fmt.Errorf("ledger update %q: %w", session, redis.TxFailedErr)
}

func (s *Store) updateOnce(ctx context.Context, session string, mutate func([]string) []string) error {
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.ledger, session).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		var targets []string
		if raw != "" {
			if targets, err = decodeTargets(raw); err != nil {
				return err
			}
		}
		next := mutate(targets)
		if next == nil {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.ledger, session, string(data))
			return nil
		})
		return err
	}, s.ledger)
}

func decodeTargets(raw string) ([]string, error) {
	var targets []string
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, domain.E(domain.KindPersistence, "decode ledger entry", err)
	}
	return targets, nil
}

// Profiles

// ProfileStore: вид на тот же Store как ports.ProfileStore
// (у Ledger и ProfileStore пересекаются имена методов All/Delete).
type ProfileStore struct{ s *Store }

func (s *Store) Profiles() *ProfileStore { return &ProfileStore{s: s} }

func (p *ProfileStore) Get(ctx context.Context, session string) (domain.Profile, bool, error) {
	raw, err := p.s.rdb.HGet(ctx, p.s.profiles, session).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, domain.E(domain.KindPersistence, "profile get", err)
	}
	var prof domain.Profile
	if err := json.Unmarshal([]byte(raw), &prof); err != nil {
		return domain.Profile{}, false, domain.E(domain.KindPersistence, "profile decode", err)
	}
	return prof, true, nil
}

func (p *ProfileStore) All(ctx context.Context) (map[string]domain.Profile, error) {
	raw, err := p.s.rdb.HGetAll(ctx, p.s.profiles).Result()
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "profile all", err)
	}
	out := make(map[string]domain.Profile, len(raw))
	for session, v := range raw {
		var prof domain.Profile
		if err := json.Unmarshal([]byte(v), &prof); err != nil {
			return nil, domain.E(domain.KindPersistence, "profile decode", fmt.Errorf("%s: %w", session, err))
		}
		out[session] = prof
	}
	return out, nil
}

func (p *ProfileStore) Put(ctx context.Context, session string, prof domain.Profile) error {
	data, err := json.Marshal(prof)
	if err != nil {
		return domain.E(domain.KindPersistence, "profile encode", err)
	}
	if err := p.s.rdb.HSet(ctx, p.s.profiles, session, string(data)).Err(); err != nil {
		return domain.E(domain.KindPersistence, "profile put", err)
	}
	return nil
}

func (p *ProfileStore) Delete(ctx context.Context, session string) error {
	if err := p.s.rdb.HDel(ctx, p.s.profiles, session).Err(); err != nil {
		return domain.E(domain.KindPersistence, "profile delete", err)
	}
	return nil
}
