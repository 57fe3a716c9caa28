package domain

import (
	"errors"
	"fmt"
)

// Kind: класс ошибки ядра
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindAuthChallenge
	KindConnection
	KindRemoteCall
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindAuthChallenge:
		return "auth challenge"
	case KindConnection:
		return "connection"
	case KindRemoteCall:
		return "remote call"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("too many requests")
)

// Error: ошибка с тегом класса; Op описывает операцию
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E оборачивает err в Error нужного класса; nil остаётся nil
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf возвращает класс самой внешней Error в цепочке
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
