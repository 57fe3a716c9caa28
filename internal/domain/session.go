package domain

import (
	"strings"
	"time"
)

// SessionSuffix: расширение файлов с сериализованной авторизацией
const SessionSuffix = ".session"

// Profile: метаданные аккаунта, сохраняются в sessions_info.json
type Profile struct {
	Phone     string    `json:"phone"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName возвращает "Имя Фамилия" без хвостовых пробелов
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Mention возвращает "@username" или "N/A", если username нет
func Mention(username string) string {
	if username == "" || username == "N/A" {
		return "N/A"
	}
	return "@" + username
}

// Identity: то, что удалённая сторона знает об авторизованном аккаунте
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// FullName склеивает имя и фамилию; пустая строка, если обоих нет
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// ToProfile строит профиль для сохранения, подставляя "N/A" как и раньше
func (i Identity) ToProfile(phone string, createdAt time.Time) Profile {
	p := Profile{
		Phone:     phone,
		UserID:    formatID(i.ID),
		Username:  i.Username,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		CreatedAt: createdAt.UTC(),
	}
	if p.Username == "" {
		p.Username = "N/A"
	}
	if p.FirstName == "" {
		p.FirstName = "N/A"
	}
	return p
}

// SessionSummary: строка в списке сессий
type SessionSummary struct {
	Name        string
	Profile     *Profile
	JoinedCount int
}

// LedgerEntry: пара (сессия, цель) для плоского списка вступлений
type LedgerEntry struct {
	Session string
	Target  string
}
