// Command sweep runs the stateless delivery variant: an HTTP server whose
// /process-due endpoint delivers every overdue reminder. It holds no timers,
// so external cron or a platform pinger decides the delivery cadence; an
// optional built-in cron spec can self-trigger instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"gretchen/internal/config"
	"gretchen/internal/httpapi"
	"gretchen/internal/notify"
	"gretchen/internal/poller"
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
	log = log.With(logx.String("app", "gretchen-sweep"))

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

	p := poller.New(st, notify.NewTelegram(bot.Telebot(), log), nil, log)

	if spec := cfg.Sweep.Every; spec != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		_, err := c.AddFunc(spec, func() {
			if n, err := p.ProcessDue(ctx); err != nil {
				log.Error("self-triggered sweep failed", logx.Err(err))
			} else if n > 0 {
				log.Info("self-triggered sweep", logx.Int("notified", n))
			}
		})
		if err != nil {
			return fmt.Errorf("sweep.every %q: %w", spec, err)
		}
		c.Start()
		defer c.Stop()
		log.Info("self-trigger enabled", logx.String("spec", spec))
	}

	srv := httpapi.New(p, log)
	return srv.ListenAndServe(ctx, cfg.Sweep.Listen)
}
