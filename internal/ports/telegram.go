package ports

import (
	"context"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// ChallengeKind: что удалённая сторона ждёт следующим шагом логина
type ChallengeKind int

const (
	ChallengeCode ChallengeKind = iota + 1
	ChallengePassword
	ChallengeDone
)

// Challenge: следующий шаг логина; Hint заполняется для пароля 2FA
type Challenge struct {
	Kind ChallengeKind
	Hint string
}

// LoginSession: одно неавторизованное соединение, которое проводят через логин.
// Каждый шаг возвращает следующий Challenge.
type LoginSession interface {
	// Begin передаёт номер телефона (providePhone)
	Begin(ctx context.Context, phone string) (Challenge, error)
	// SubmitCode передаёт код подтверждения (provideCode)
	SubmitCode(ctx context.Context, code string) (Challenge, error)
	// SubmitPassword передаёт пароль 2FA (providePassword)
	SubmitPassword(ctx context.Context, password string) (Challenge, error)
	// Self возвращает профиль авторизованного аккаунта (getSelf)
	Self(ctx context.Context) (domain.Identity, error)
	// Serialize сбрасывает состояние на диск, закрывает соединение и возвращает blob
	Serialize(ctx context.Context) (string, error)
	// Close рвёт соединение; повторный вызов безопасен
	Close()
}

// SessionClient: авторизованное соединение, восстановленное из blob
type SessionClient interface {
	Self(ctx context.Context) (domain.Identity, error)
	// JoinChannel вступает в публичный канал/группу по username
	JoinChannel(ctx context.Context, handle string) error
	// ImportInvite вступает по хешу приватного приглашения
	ImportInvite(ctx context.Context, hash string) error
	// LeaveChannel выходит из канала/супергруппы
	LeaveChannel(ctx context.Context, handle string) error
	// RemoveSelf удаляет собственного участника из группы
	RemoveSelf(ctx context.Context, handle string) error
	Close()
}

// Connector создаёт соединения с удалённым протоколом
type Connector interface {
	NewLogin(ctx context.Context) (LoginSession, error)
	Connect(ctx context.Context, blob string) (SessionClient, error)
}
