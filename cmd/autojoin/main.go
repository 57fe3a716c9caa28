package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/botapi"
	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/redisstore"
	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/storage"
	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/tg"
	"github.com/larriantoniy/tg_autojoin_bot/internal/bot"
	"github.com/larriantoniy/tg_autojoin_bot/internal/config"
	"github.com/larriantoniy/tg_autojoin_bot/internal/logging"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
	"github.com/larriantoniy/tg_autojoin_bot/internal/useCases"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		fmt.Fprintln(os.Stderr, "required: BOT_TOKEN, AUTHORIZED_USER_ID, API_ID, API_HASH")
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Env)
	logger.Info("initializing bot", "env", cfg.Env, "data_dir", cfg.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// сигнал во время старта тоже штатная остановка
	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Error("fatal startup error", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("exit")
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	errLog := logging.OpenErrorLog(cfg, logger)
	defer errLog.Close()

	creds := storage.NewCredentialStore(cfg.SessionsDir(), logger.With("component", "credentials"))
	ledger, profiles, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var proxy *tg.ProxyConfig
	if cfg.Proxy.Enabled() {
		proxy = &tg.ProxyConfig{
			Enabled:  true,
			Server:   cfg.Proxy.Server,
			Port:     cfg.Proxy.Port,
			Username: cfg.Proxy.Username,
			Password: cfg.Proxy.Password,
		}
	}
	connector := tg.NewConnector(tg.Options{
		ApiID:   cfg.ApiID,
		ApiHash: cfg.ApiHash,
		WorkDir: cfg.TDLibDir(),
		Proxy:   proxy,
	}, logger.With("component", "tdlib"))

	api := botapi.NewAPI(cfg.BotToken, logger.With("component", "botapi"))
	defer api.Close()

	checkCtx, checkCancel := context.WithTimeout(ctx, 15*time.Second)
	me, err := api.GetMe(checkCtx)
	checkCancel()
	if err != nil {
		return fmt.Errorf("bot api getMe: %w", err)
	}

	core := useCases.NewCore(useCases.Deps{
		Connector:  connector,
		Creds:      creds,
		Ledger:     ledger,
		Profiles:   profiles,
		Notifier:   api,
		JoinDelay:  cfg.JoinDelay(),
		LeaveDelay: cfg.LeaveDelay(),
	}, logger)
	defer core.Close()

	handler := bot.NewHandler(core, api, cfg.AuthorizedUserID, errLog, logger.With("component", "bot"))

	logger.Info("bot is live and polling for updates",
		"bot", me.Username,
		"authorized_user_id", cfg.AuthorizedUserID,
		"join_delay", cfg.JoinDelay(),
		"store", cfg.StoreBackend,
	)
	if err := api.PollUpdates(ctx, handler.Handle); err != nil {
		return fmt.Errorf("poll updates: %w", err)
	}
	logger.Info("shutdown signal received")
	return nil
}

// openStores выбирает бэкенд ledger и профилей
func openStores(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (ports.Ledger, ports.ProfileStore, func(), error) {
	if cfg.StoreBackend == config.BackendRedis {
		st, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger.With("component", "redis"))
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := st.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
		return st, st.Profiles(), closeFn, nil
	}

	ledger, err := storage.OpenJSONLedger(cfg.LedgerPath(), logger.With("component", "ledger"))
	if err != nil {
		return nil, nil, nil, err
	}
	profiles, err := storage.OpenJSONProfileStore(cfg.ProfilesPath(), logger.With("component", "profiles"))
	if err != nil {
		return nil, nil, nil, err
	}
	return ledger, profiles, func() {}, nil
}
