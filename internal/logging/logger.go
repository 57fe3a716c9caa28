package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/larriantoniy/tg_autojoin_bot/internal/config"
)

// Setup: JSON-логгер в stdout; уровень зависит от окружения
func Setup(env string) *slog.Logger {
	return New(env, os.Stdout)
}

func New(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == config.EnvDev {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
