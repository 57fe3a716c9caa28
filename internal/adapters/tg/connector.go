package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/tdblob"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
	"github.com/zelenin/go-tdlib/client"
)

type Options struct {
	ApiID   int32
	ApiHash string
	// WorkDir: каталог под временные базы TDLib, по одной на соединение
	WorkDir        string
	Device         DeviceConfig
	Proxy          *ProxyConfig
	ConnectTimeout time.Duration
}

// Connector реализует ports.Connector на TDLib
type Connector struct {
	opts Options
	log  *slog.Logger
}

func NewConnector(opts Options, log *slog.Logger) *Connector {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if err := os.MkdirAll(opts.WorkDir, 0o700); err != nil {
		log.Warn("mkdir TDLib work dir", "dir", opts.WorkDir, "error", err)
	}

	if _, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	}); err != nil {
		log.Error("TDLib SetLogVerbosityLevel", "error", err)
	}

	checkNetwork(log, opts.Proxy)

	return &Connector{opts: opts, log: log}
}

// newWorkDir создаёт database/ и files/ под уникальным каталогом
func (c *Connector) newWorkDir() (dir, dbDir, filesDir string, err error) {
	dir = filepath.Join(c.opts.WorkDir, uuid.NewString())
	dbDir = filepath.Join(dir, "database")
	filesDir = filepath.Join(dir, "files")
	if err = os.MkdirAll(dbDir, 0o700); err != nil {
		return "", "", "", fmt.Errorf("mkdir db dir: %w", err)
	}
	if err = os.MkdirAll(filesDir, 0o700); err != nil {
		return "", "", "", fmt.Errorf("mkdir files dir: %w", err)
	}
	return dir, dbDir, filesDir, nil
}

func (c *Connector) NewLogin(ctx context.Context) (ports.LoginSession, error) {
	dir, dbDir, filesDir, err := c.newWorkDir()
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "new login", err)
	}
	params := tdParams(c.opts.ApiID, c.opts.ApiHash, c.opts.Device, dbDir, filesDir)
	log := c.log.With("work_dir", filepath.Base(dir))
	log.Info("TDLib client created for login")

	return &Login{
		dir:  dir,
		flow: startAuth(params, proxyOptions(c.opts.Proxy)),
		log:  log,
	}, nil
}

var errNotAuthorized = errors.New("session is not authorized, log in again")

// Connect поднимает клиента из blob. Если база просит телефон/код,
// сессия отозвана: это ошибка соединения, а не повод для логина.
func (c *Connector) Connect(ctx context.Context, blob string) (ports.SessionClient, error) {
	dir := filepath.Join(c.opts.WorkDir, uuid.NewString())
	if err := tdblob.Unpack(blob, dir); err != nil {
		os.RemoveAll(dir)
		return nil, domain.E(domain.KindConnection, "restore session", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o700); err != nil {
		c.log.Warn("mkdir files dir", "dir", dir, "error", err)
	}

	params := tdParams(c.opts.ApiID, c.opts.ApiHash, c.opts.Device,
		filepath.Join(dir, "database"), filepath.Join(dir, "files"))
	log := c.log.With("work_dir", filepath.Base(dir))

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	flow := startAuth(params, proxyOptions(c.opts.Proxy))
	st, err := flow.next(ctx)
	if err != nil {
		flow.abandon(dir, log)
		return nil, classify("connect", domain.KindConnection, err)
	}
	if _, ok := st.(*client.AuthorizationStateReady); !ok {
		log.Warn("stored session requires re-authorization", "state", fmt.Sprintf("%T", st))
		flow.abandon(dir, log)
		return nil, domain.E(domain.KindConnection, "connect", errNotAuthorized)
	}

	me, err := getSelf(flow.cli)
	if err != nil {
		flow.abandon(dir, log)
		return nil, domain.E(domain.KindConnection, "connect", err)
	}
	log.Info("TDLib client initialized and authorized", "self", describe(me))

	return &TelegramClient{
		client: flow.cli,
		logger: log.With("self_id", me.ID),
		selfId: me.ID,
		dir:    dir,
	}, nil
}
