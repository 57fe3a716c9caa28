package domain

import (
	"fmt"
	"strings"
)

// Target: канонический идентификатор канала/группы
type Target struct {
	// Handle без "@", передаётся в вызовы протокола
	Handle string
}

// ParseTarget разбирает ссылку вида https://t.me/x, t.me/x?params, @x или x
func ParseTarget(input string) (Target, error) {
	s := strings.TrimSpace(input)
	if i := strings.Index(s, "t.me/"); i >= 0 {
		s = s[i+len("t.me/"):]
		if j := strings.IndexAny(s, "?/"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimPrefix(s, "@")
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return Target{}, &Error{Kind: KindValidation, Op: "parse target", Err: fmt.Errorf("invalid target %q", input)}
	}
	return Target{Handle: s}, nil
}

// String: форма для хранения и показа оператору
func (t Target) String() string {
	return "@" + t.Handle
}

// Equal сравнивает цели без учёта регистра
func (t Target) Equal(other string) bool {
	return SameTarget(t.String(), other)
}

// SameTarget: идентичность целей в ledger (регистронезависимая)
func SameTarget(a, b string) bool {
	return strings.EqualFold(canonical(a), canonical(b))
}

func canonical(s string) string {
	if t, err := ParseTarget(s); err == nil {
		return t.Handle
	}
	return s
}

// IsTargetLike: похоже ли слово на ссылку на канал
func IsTargetLike(s string) bool {
	return strings.Contains(s, "t.me/") || strings.HasPrefix(s, "@")
}

// ExtractTargets вытаскивает из текста уникальные ссылки в порядке появления
func ExtractTargets(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(text) {
		if !IsTargetLike(word) || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}
