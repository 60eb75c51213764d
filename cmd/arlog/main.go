package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamgm/arlog/internal/api"
	"github.com/akamgm/arlog/internal/browser"
	"github.com/akamgm/arlog/internal/config"
	"github.com/akamgm/arlog/internal/logging"
	"github.com/akamgm/arlog/internal/notify"
	"github.com/akamgm/arlog/internal/poller"
	"github.com/akamgm/arlog/internal/scraper"
	"github.com/akamgm/arlog/internal/sqliteutil"
	"github.com/akamgm/arlog/internal/store"
)

func main() {
	cfgFile := flag.String("config", "", "optional config file (env vars take precedence)")
	flag.Parse()

	if err := run(*cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "arlog: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	launcher := &browser.ChromeLauncher{
		StateDir: cfg.StateDir,
		Headless: cfg.Headless,
		Logger:   logger,
	}
	scr := scraper.New(launcher, scraper.Credentials{
		Email:    cfg.ArloEmail,
		Password: cfg.ArloPassword,
	}, cfg.Headless, logger)

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.APIAddr != "" {
		srv := &http.Server{
			Addr:    cfg.APIAddr,
			Handler: api.NewServer(st, logger).Router(),
		}
		go func() {
			logger.Info("status API listening", "addr", cfg.APIAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	logger.Info("starting poll loop",
		"interval", cfg.PollInterval,
		"db", cfg.DBPath,
		"headless", cfg.Headless,
	)

	p := poller.New(scr, st, dispatcher, cfg.PollInterval, logger)
	if err := p.Run(ctx); err != nil {
		return err
	}

	logger.Info("shut down cleanly")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.UsesPostgres() {
		st, err := store.NewPostgres(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	}
	db, err := sqliteutil.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	st, err := store.NewSQLite(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite store: %w", err)
	}
	return st, nil
}

func buildDispatcher(cfg config.Config, logger *slog.Logger) (*notify.Dispatcher, error) {
	var notifiers []notify.Notifier
	if cfg.NtfyTopic != "" {
		notifiers = append(notifiers, notify.NewNtfy("", cfg.NtfyTopic))
		logger.Info("ntfy notifications enabled", "topic", cfg.NtfyTopic)
	}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatIDs)
		if err != nil {
			return nil, fmt.Errorf("init telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
		logger.Info("telegram notifications enabled", "chats", len(cfg.TelegramChatIDs))
	}
	return notify.NewDispatcher(logger, notifiers...), nil
}
