// Package telegram is the chat-facing surface: command handlers, the
// /setreminder conversation, and the telebot long-poll transport.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"gretchen/pkg/logx"
)

// handlerTimeout bounds the store and scheduler work done for one update.
const handlerTimeout = 10 * time.Second

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Bot binds Handlers to a telebot long-poll session.
type Bot struct {
	bot *tele.Bot
	h   *Handlers
	log logx.Logger
}

// New dials the Telegram API and validates the token. Command routing is
// attached later via Bind, once the scheduler core (which shares this
// session for outbound delivery) exists.
func New(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{bot: tb, log: log}, nil
}

// Telebot exposes the underlying session so outbound delivery can share it.
func (b *Bot) Telebot() *tele.Bot {
	return b.bot
}

// Bind attaches the command handlers. Must be called before Start.
func (b *Bot) Bind(h *Handlers) {
	b.h = h
	b.route()
}

func (b *Bot) route() {
	b.bot.Handle("/start", b.command(func(ctx context.Context, dest string, _ []string) string {
		return b.h.Start(ctx, dest)
	}))
	b.bot.Handle("/help", b.command(func(ctx context.Context, _ string, _ []string) string {
		return b.h.Help()
	}))
	b.bot.Handle("/timezone", b.command(b.h.Timezone))
	b.bot.Handle("/reminders", b.command(func(ctx context.Context, dest string, _ []string) string {
		return b.h.ListReminders(ctx, dest)
	}))
	b.bot.Handle("/deletereminder", b.command(b.h.DeleteReminder))
	b.bot.Handle("/setreminder", b.command(func(_ context.Context, dest string, _ []string) string {
		return b.h.BeginSetReminder(dest)
	}))
	b.bot.Handle("/cancel", b.command(func(_ context.Context, dest string, _ []string) string {
		return b.h.CancelFlow(dest)
	}))

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		reply, handled := b.h.Text(ctx, destination(c), m.Text)
		if !handled {
			return nil
		}
		return b.reply(c, reply)
	})
}

type commandFunc func(ctx context.Context, destination string, args []string) string

func (b *Bot) command(fn commandFunc) func(tele.Context) error {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		return b.reply(c, fn(ctx, destination(c), c.Args()))
	}
}

func (b *Bot) reply(c tele.Context, text string) error {
	if text == "" {
		return nil
	}
	err := c.Send(text, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	if err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", c.Chat().ID), logx.Err(err))
	}
	return err
}

func destination(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

// Start registers the command menu and blocks polling until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	if err := b.bot.SetCommands(menuCommands); err != nil {
		b.log.Warn("failed to publish command menu", logx.Err(err))
	}

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()

	b.log.Info("telegram polling started")
	b.bot.Start()
	b.log.Info("telegram polling stopped")
}

var menuCommands = []tele.Command{
	{Text: "setreminder", Description: "Create a reminder"},
	{Text: "reminders", Description: "List your reminders"},
	{Text: "deletereminder", Description: "Cancel a reminder by id"},
	{Text: "timezone", Description: "Show or change your timezone"},
	{Text: "cancel", Description: "Abort the current conversation"},
	{Text: "help", Description: "Show all commands"},
}
