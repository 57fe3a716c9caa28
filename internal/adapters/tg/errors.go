package tg

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// tdCode разбирает ошибку TDLib вида "400 USERNAME_INVALID"; 0, если кода нет
func tdCode(err error) (int, string) {
	msg := err.Error()
	head, rest, ok := strings.Cut(msg, " ")
	if !ok {
		return 0, msg
	}
	code, convErr := strconv.Atoi(head)
	if convErr != nil {
		return 0, msg
	}
	return code, rest
}

func isTooManyRequests(err error) bool {
	code, msg := tdCode(err)
	// обычно Code == 429, но подстрахуемся по тексту
	return code == 429 || strings.Contains(strings.ToLower(msg), "too many requests")
}

// classify переводит ошибку TDLib в класс ошибки ядра.
// kind: класс для "удалённая сторона отказала" (RemoteCall или AuthChallenge).
func classify(op string, kind domain.Kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.E(domain.KindConnection, op, err)
	}
	if isTooManyRequests(err) {
		return domain.E(domain.KindRemoteCall, op, errors.Join(domain.ErrRateLimited, err))
	}
	if code, _ := tdCode(err); code >= 400 && code < 500 {
		return domain.E(kind, op, err)
	}
	return domain.E(domain.KindConnection, op, err)
}
