package useCases

import (
	"log/slog"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
)

// Deps: всё, что ядру нужно снаружи
type Deps struct {
	Connector  ports.Connector
	Creds      ports.CredentialStore
	Ledger     ports.Ledger
	Profiles   ports.ProfileStore
	Notifier   ports.Notifier
	JoinDelay  time.Duration
	LeaveDelay time.Duration
}

// Core собирается один раз при старте и передаётся обработчикам явно
type Core struct {
	Flows    *Registry
	Auth     *Authenticator
	Batch    *Orchestrator
	Sessions *Sessions
}

func NewCore(d Deps, log *slog.Logger) *Core {
	flows := NewRegistry(log.With("component", "flows"))
	return &Core{
		Flows:    flows,
		Auth:     NewAuthenticator(flows, d.Connector, d.Creds, d.Profiles, d.Notifier, log.With("component", "auth")),
		Batch:    NewOrchestrator(d.Connector, d.Creds, d.Ledger, log.With("component", "batch"), d.JoinDelay, d.LeaveDelay),
		Sessions: NewSessions(d.Creds, d.Ledger, d.Profiles, log.With("component", "sessions")),
	}
}

// Close освобождает незавершённые логины
func (c *Core) Close() {
	c.Flows.Close()
}
