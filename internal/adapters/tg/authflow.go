package tg

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/zelenin/go-tdlib/client"
)

// authFlow крутит client.NewClient в горутине и выдаёт наружу состояния,
// которые требуют ввода. Ввод уходит в каналы ClientAuthorizer.
type authFlow struct {
	states   chan client.AuthorizationState
	phone    chan string
	code     chan string
	password chan string

	done chan struct{}
	cli  *client.Client
	err  error
}

func startAuth(params *client.SetTdlibParametersRequest, opts []client.Option) *authFlow {
	authorizer := client.ClientAuthorizer(params)
	f := &authFlow{
		states:   authorizer.State,
		phone:    authorizer.PhoneNumber,
		code:     authorizer.Code,
		password: authorizer.Password,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		f.cli, f.err = client.NewClient(authorizer, opts...)
	}()
	return f
}

// next ждёт состояния, которому нужен ввод, либо завершения авторизации.
// Ready означает, что f.cli готов.
func (f *authFlow) next(ctx context.Context) (client.AuthorizationState, error) {
	states := f.states
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case st, ok := <-states:
			if !ok {
				// канал закрыт после Authorize, дальше ждём только done
				states = nil
				continue
			}
			switch st.(type) {
			case *client.AuthorizationStateWaitPhoneNumber,
				*client.AuthorizationStateWaitCode,
				*client.AuthorizationStateWaitPassword:
				return st, nil
			}
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
			return &client.AuthorizationStateReady{}, nil
		}
	}
}

var errAuthFinished = errors.New("authorization already finished")

// send кладёт ввод в канал авторизатора. После выхода из Authorize
// каналы закрыты и запись паникует, это значит, что ждать уже нечего.
func (f *authFlow) send(ctx context.Context, ch chan string, value string) (err error) {
	defer func() {
		if recover() != nil {
			err = errAuthFinished
		}
	}()
	select {
	case ch <- value:
		return nil
	case <-f.done:
		if f.err != nil {
			return f.err
		}
		return errAuthFinished
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *authFlow) finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// abandon разматывает незавершённую авторизацию и чистит рабочий каталог.
// Пустой ввод заставляет TDLib вернуть ошибку, после чего NewClient выходит.
func (f *authFlow) abandon(dir string, log *slog.Logger) {
	go func() {
		if !f.finished() {
			for _, ch := range []chan string{f.phone, f.code, f.password} {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = f.send(ctx, ch, "")
				cancel()
			}
			// состояния никто не читает, сливаем, чтобы Handle не встал на записи
			go func() {
				for {
					select {
					case _, ok := <-f.states:
						if !ok {
							return
						}
					case <-f.done:
						return
					}
				}
			}()
		}
		select {
		case <-f.done:
			if f.cli != nil {
				f.cli.Close()
			}
		case <-time.After(2 * time.Minute):
			log.Warn("abandoned TDLib client did not stop in time", "dir", dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("remove work dir", "dir", dir, "error", err)
		}
	}()
}
