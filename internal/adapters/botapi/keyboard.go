package botapi

import "github.com/larriantoniy/tg_autojoin_bot/internal/domain"

// Keyboard переводит кнопки Reply в inline-клавиатуру; nil, если кнопок нет
func Keyboard(r domain.Reply) *InlineKeyboardMarkup {
	if len(r.Buttons) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(r.Buttons))
	for _, row := range r.Buttons {
		out := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			out = append(out, InlineKeyboardButton{Text: b.Text, CallbackData: b.Action})
		}
		rows = append(rows, out)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}
