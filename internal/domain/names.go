package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[/\\?%*:|"<>]`)
	phoneNonDigits  = regexp.MustCompile(`[^\d+]`)
	phonePattern    = regexp.MustCompile(`^\+\d{10,15}$`)
	phoneLooseStrip = regexp.MustCompile(`[\s\-().]`)
	phoneLoose      = regexp.MustCompile(`^\+?\d{10,15}$`)
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SanitizeName заменяет символы, недопустимые в именах файлов, на "-"
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "-")
}

// NormalizePhone приводит ввод к виду +<10-15 цифр>
func NormalizePhone(input string) (string, error) {
	phone := phoneNonDigits.ReplaceAllString(input, "")
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if !phonePattern.MatchString(phone) {
		return "", &Error{Kind: KindValidation, Op: "normalize phone", Err: fmt.Errorf("invalid phone %q", input)}
	}
	return phone, nil
}

// LooksLikePhone: эвристика для свободного текста без активного флоу
func LooksLikePhone(text string) bool {
	return phoneLoose.MatchString(phoneLooseStrip.ReplaceAllString(text, ""))
}

// SessionName выводит свободное имя сессии из профиля.
// exists сообщает, занято ли имя в хранилище; count: число существующих сессий.
// Занятое имя никогда не возвращается: сохранённый blob не перезаписывается.
func SessionName(self Identity, phone string, count int, exists func(string) (bool, error)) (string, error) {
	free := func(name string) (bool, error) {
		if exists == nil {
			return true, nil
		}
		taken, err := exists(name)
		return !taken, err
	}

	raw := self.FullName()
	if raw == "" {
		for n := count + 1; ; n++ {
			name := fmt.Sprintf("Account %d", n)
			ok, err := free(name)
			if err != nil || ok {
				return name, err
			}
		}
	}

	name := SanitizeName(raw)
	if ok, err := free(name); err != nil || ok {
		return name, err
	}
	base := fmt.Sprintf("%s (%s)", name, lastDigits(phone, 4))
	for n := 1; ; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s (%s-%d)", name, lastDigits(phone, 4), n)
		}
		ok, err := free(candidate)
		if err != nil || ok {
			return candidate, err
		}
	}
}

func lastDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
