package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05"

// ErrorLog: построчный лог неожиданных ошибок.
// Подряд идущие одинаковые сообщения пишутся как "[xN] msg".
type ErrorLog struct {
	mu    sync.Mutex
	w     io.Writer
	now   func() time.Time
	last  string
	count int
}

// OpenErrorLog открывает ротируемый error_log.txt
func OpenErrorLog(cfg *config.AppConfig, log *slog.Logger) *ErrorLog {
	if err := os.MkdirAll(filepath.Dir(cfg.ErrorLogPath()), 0o755); err != nil {
		log.Warn("mkdir logs dir", "dir", filepath.Dir(cfg.ErrorLogPath()), "error", err)
	}
	return NewErrorLog(&lumberjack.Logger{
		Filename:   cfg.ErrorLogPath(),
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	})
}

func NewErrorLog(w io.Writer) *ErrorLog {
	return &ErrorLog{w: w, now: time.Now}
}

// Record пишет err; возвращает номер повтора (1 для нового сообщения)
func (l *ErrorLog) Record(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()

	l.mu.Lock()
	defer l.mu.Unlock()

	if msg == l.last {
		l.count++
		l.write(fmt.Sprintf("[x%d] %s", l.count, msg))
		return l.count
	}
	l.last = msg
	l.count = 1
	l.write(msg)
	return 1
}

func (l *ErrorLog) write(msg string) {
	line := fmt.Sprintf("%s  %s\n", l.now().UTC().Format(timeLayout), msg)
	// запись в лог ошибок best-effort, падать тут нельзя
	_, _ = io.WriteString(l.w, line)
}

func (l *ErrorLog) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
