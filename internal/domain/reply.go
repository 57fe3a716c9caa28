package domain

// Button: кнопка inline-клавиатуры; Action уходит в callback data
type Button struct {
	Text   string
	Action string
}

// Reply: сообщение оператору в нейтральном виде, транспорт сам его рендерит.
// Текст: HTML-разметка Bot API.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Confirmation: текст с кнопками подтверждения и отмены
func Confirmation(text string, confirm Button, cancel Button) Reply {
	return Reply{Text: text, Buttons: [][]Button{{confirm}, {cancel}}}
}

// WithButton добавляет ряд из одной кнопки
func (r Reply) WithButton(text, action string) Reply {
	r.Buttons = append(r.Buttons, []Button{{Text: text, Action: action}})
	return r
}

// ActionBackToMenu: общий callback сброса флоу и возврата в меню
const ActionBackToMenu = "back_to_menu"
