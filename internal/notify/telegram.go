package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"gretchen/pkg/logx"
)

// Telegram dispatches reminder messages through a shared telebot session.
//
// Sends are rate-limited below Telegram's global bot budget (~30 msg/s) and
// bounded by a per-send timeout so one stuck call cannot pin a timer
// goroutine.
type Telegram struct {
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
	timeout time.Duration
}

func NewTelegram(bot *tele.Bot, log logx.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		timeout: 10 * time.Second,
	}
}

func (t *Telegram) Send(ctx context.Context, destination, text string) error {
	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return fmt.Errorf("destination %q is not a telegram chat id: %w", destination, err)
	}

	sctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.limiter.Wait(sctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err = t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		t.log.Warn("telegram send failed", logx.String("destination", destination), logx.Err(err))
		return err
	}
	t.log.Debug("reminder delivered", logx.String("destination", destination))
	return nil
}
