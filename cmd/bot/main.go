// Command bot runs the Telegram reminder bot: long-poll transport, timer
// scheduling, and persistent storage behind one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"gretchen/internal/config"
	"gretchen/internal/notify"
	"gretchen/internal/scheduler"
	"gretchen/internal/storage"
	"gretchen/internal/telegram"
	"gretchen/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is not configured; set TELEGRAM_TOKEN")
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	defer logSvc.Close()
	log = log.With(logx.String("app", "gretchen"))

	st, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		MongoURI:    cfg.Storage.MongoURI,
		MongoDB:     cfg.Storage.MongoDB,
		BusyTimeout: cfg.SQLiteBusyTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}

	core := scheduler.New(st, notify.NewTelegram(bot.Telebot(), log), nil, log, scheduler.Config{})
	defer core.Stop()

	handlers := telegram.NewHandlers(core, st, nil, log, cfg.DefaultTimezone)
	bot.Bind(handlers)

	// Re-arm persisted reminders before taking traffic.
	stats, err := core.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover reminders: %w", err)
	}
	log.Info("startup recovery",
		logx.Int("armed", stats.Armed),
		logx.Int("missed", stats.Missed),
		logx.String("storage", cfg.Storage.Driver))

	// Safe settings follow config file edits without a restart.
	err = config.Watch(ctx, cfgPath, log, func(next *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   next.Log.Level,
			Console: next.Log.Console,
			File: logx.FileConfig{
				Enabled: next.Log.File.Enabled,
				Path:    next.Log.File.Path,
			},
		})
		handlers.SetDefaultTimezone(next.DefaultTimezone)
	})
	if err != nil {
		log.Warn("config watcher unavailable", logx.Err(err))
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		log.Debug("systemd notified ready")
	}

	bot.Start(ctx) // blocks until ctx is cancelled

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutdown complete", logx.Int("timers_armed", core.Armed()))
	return nil
}
