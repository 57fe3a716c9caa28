package ports

import (
	"context"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// Notifier отправляет оператору сообщения вне цикла запрос/ответ
type Notifier interface {
	Notify(ctx context.Context, chatID int64, reply domain.Reply) error
}
