package tg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zelenin/go-tdlib/client"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestFlow собирает authFlow на своих каналах вместо ClientAuthorizer
func newTestFlow() *authFlow {
	return &authFlow{
		states:   make(chan client.AuthorizationState, 4),
		phone:    make(chan string, 1),
		code:     make(chan string, 1),
		password: make(chan string, 1),
		done:     make(chan struct{}),
	}
}

func testLogin(f *authFlow) *Login {
	return &Login{flow: f, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNextSkipsStatesWithoutInput(t *testing.T) {
	f := newTestFlow()
	f.states <- &client.AuthorizationStateWaitTdlibParameters{}
	f.states <- &client.AuthorizationStateWaitCode{}

	st, err := f.next(waitCtx(t))
	require.NoError(t, err)
	assert.IsType(t, &client.AuthorizationStateWaitCode{}, st)
}

func TestNextAfterStatesClosed(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		f := newTestFlow()
		close(f.states)
		close(f.done)

		st, err := f.next(waitCtx(t))
		require.NoError(t, err)
		assert.IsType(t, &client.AuthorizationStateReady{}, st)
	})

	t.Run("failed", func(t *testing.T) {
		f := newTestFlow()
		f.err = errors.New("400 PHONE_CODE_INVALID")
		close(f.states)
		close(f.done)

		_, err := f.next(waitCtx(t))
		assert.EqualError(t, err, "400 PHONE_CODE_INVALID")
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newTestFlow()
		close(f.states)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSend(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		f := newTestFlow()
		require.NoError(t, f.send(waitCtx(t), f.code, "12345"))
		assert.Equal(t, "12345", <-f.code)
	})

	t.Run("closed channel", func(t *testing.T) {
		f := newTestFlow()
		close(f.code)
		assert.ErrorIs(t, f.send(waitCtx(t), f.code, "12345"), errAuthFinished)
	})

	t.Run("finished with error", func(t *testing.T) {
		f := newTestFlow()
		f.code = make(chan string)
		f.err = errors.New("401 SESSION_REVOKED")
		close(f.done)
		assert.EqualError(t, f.send(waitCtx(t), f.code, "12345"), "401 SESSION_REVOKED")
	})

	t.Run("finished", func(t *testing.T) {
		f := newTestFlow()
		f.code = make(chan string)
		close(f.done)
		assert.ErrorIs(t, f.send(waitCtx(t), f.code, "12345"), errAuthFinished)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newTestFlow()
		f.code = make(chan string)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, f.send(ctx, f.code, "12345"), context.Canceled)
	})
}

func TestLoginChallenges(t *testing.T) {
	tests := []struct {
		name  string
		state client.AuthorizationState
		want  ports.Challenge
	}{
		{"code", &client.AuthorizationStateWaitCode{}, ports.Challenge{Kind: ports.ChallengeCode}},
		{"password", &client.AuthorizationStateWaitPassword{PasswordHint: "pet"}, ports.Challenge{Kind: ports.ChallengePassword, Hint: "pet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFlow()
			f.states <- tt.state

			got, err := testLogin(f).await(waitCtx(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("ready", func(t *testing.T) {
		f := newTestFlow()
		close(f.states)
		close(f.done)

		got, err := testLogin(f).await(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, ports.ChallengeDone, got.Kind)
	})

	t.Run("rejected code", func(t *testing.T) {
		f := newTestFlow()
		f.err = errors.New("400 PHONE_CODE_INVALID")
		close(f.states)
		close(f.done)

		_, err := testLogin(f).await(waitCtx(t))
		assert.True(t, domain.IsKind(err, domain.KindAuthChallenge))
	})
}

func TestLoginBegin(t *testing.T) {
	t.Run("phone accepted", func(t *testing.T) {
		f := newTestFlow()
		f.states <- &client.AuthorizationStateWaitPhoneNumber{}
		go func() {
			if <-f.phone == "+15551234567" {
				f.states <- &client.AuthorizationStateWaitCode{}
			}
		}()

		ch, err := testLogin(f).Begin(waitCtx(t), "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, ports.ChallengeCode, ch.Kind)
	})

	t.Run("phone asked again", func(t *testing.T) {
		f := newTestFlow()
		f.states <- &client.AuthorizationStateWaitPhoneNumber{}
		go func() {
			<-f.phone
			f.states <- &client.AuthorizationStateWaitPhoneNumber{}
		}()

		_, err := testLogin(f).Begin(waitCtx(t), "+15551234567")
		assert.True(t, domain.IsKind(err, domain.KindAuthChallenge))
	})

	t.Run("unexpected state", func(t *testing.T) {
		f := newTestFlow()
		f.states <- &client.AuthorizationStateWaitCode{}

		_, err := testLogin(f).Begin(waitCtx(t), "+15551234567")
		assert.True(t, domain.IsKind(err, domain.KindConnection))
	})
}

func TestSubmitCodeToFinishedFlow(t *testing.T) {
	f := newTestFlow()
	close(f.code)
	close(f.states)
	close(f.done)

	_, err := testLogin(f).SubmitCode(waitCtx(t), "12345")
	assert.ErrorIs(t, err, errAuthFinished)
}
