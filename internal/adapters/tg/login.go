package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/tdblob"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
	"github.com/zelenin/go-tdlib/client"
)

// Login: реализация ports.LoginSession поверх чистой базы TDLib
type Login struct {
	dir  string
	flow *authFlow
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (l *Login) Begin(ctx context.Context, phone string) (ports.Challenge, error) {
	st, err := l.flow.next(ctx)
	if err != nil {
		return ports.Challenge{}, classify("connect", domain.KindAuthChallenge, err)
	}
	if _, ok := st.(*client.AuthorizationStateWaitPhoneNumber); !ok {
		return ports.Challenge{}, domain.E(domain.KindConnection, "begin login",
			fmt.Errorf("unexpected authorization state %T", st))
	}
	l.log.Info("providing phone number", "phone", phone)
	if err := l.flow.send(ctx, l.flow.phone, phone); err != nil {
		return ports.Challenge{}, classify("send phone", domain.KindAuthChallenge, err)
	}
	return l.await(ctx)
}

func (l *Login) SubmitCode(ctx context.Context, code string) (ports.Challenge, error) {
	if err := l.flow.send(ctx, l.flow.code, code); err != nil {
		return ports.Challenge{}, classify("send code", domain.KindAuthChallenge, err)
	}
	return l.await(ctx)
}

func (l *Login) SubmitPassword(ctx context.Context, password string) (ports.Challenge, error) {
	if err := l.flow.send(ctx, l.flow.password, password); err != nil {
		return ports.Challenge{}, classify("send password", domain.KindAuthChallenge, err)
	}
	return l.await(ctx)
}

func (l *Login) await(ctx context.Context) (ports.Challenge, error) {
	st, err := l.flow.next(ctx)
	if err != nil {
		return ports.Challenge{}, classify("authorize", domain.KindAuthChallenge, err)
	}
	switch s := st.(type) {
	case *client.AuthorizationStateWaitCode:
		l.log.Info("verification code requested")
		return ports.Challenge{Kind: ports.ChallengeCode}, nil
	case *client.AuthorizationStateWaitPassword:
		l.log.Info("2FA password requested")
		return ports.Challenge{Kind: ports.ChallengePassword, Hint: s.PasswordHint}, nil
	case *client.AuthorizationStateReady:
		l.log.Info("authorization ready")
		return ports.Challenge{Kind: ports.ChallengeDone}, nil
	default:
		return ports.Challenge{}, domain.E(domain.KindAuthChallenge, "authorize",
			fmt.Errorf("phone number rejected (state %T)", st))
	}
}

func (l *Login) ready() (*client.Client, error) {
	if !l.flow.finished() || l.flow.cli == nil {
		return nil, errors.New("login is not complete")
	}
	return l.flow.cli, nil
}

func (l *Login) Self(ctx context.Context) (domain.Identity, error) {
	cli, err := l.ready()
	if err != nil {
		return domain.Identity{}, domain.E(domain.KindAuthChallenge, "get me", err)
	}
	return getSelf(cli)
}

// Serialize закрывает клиента (TDLib дописывает binlog) и пакует каталог
func (l *Login) Serialize(ctx context.Context) (string, error) {
	cli, err := l.ready()
	if err != nil {
		return "", domain.E(domain.KindAuthChallenge, "serialize", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return "", domain.E(domain.KindConnection, "serialize", errors.New("login already closed"))
	}
	closeAndWait(ctx, cli, l.log)
	l.closed = true

	blob, err := tdblob.Pack(l.dir)
	if rmErr := os.RemoveAll(l.dir); rmErr != nil {
		l.log.Warn("remove login work dir", "dir", l.dir, "error", rmErr)
	}
	if err != nil {
		return "", domain.E(domain.KindPersistence, "pack session", err)
	}
	return blob, nil
}

func (l *Login) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.flow.abandon(l.dir, l.log)
}
