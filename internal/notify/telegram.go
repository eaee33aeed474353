// Package notify delivers rendered notification text to Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "calbot/pkg/logx"
)

// Notifier sends one rendered message to the configured destination.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Config holds the Telegram delivery settings.
type Config struct {
	Token  string
	ChatID int64

	// MinInterval spaces consecutive sends; Telegram throttles bots that
	// burst into a single chat.
	MinInterval time.Duration

	// Retries is the number of re-attempts after a failed send.
	Retries int
}

const telegramTextLimit = 4096

// sender is the slice of *tele.Bot the notifier needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends messages to a single chat, rate limited and with bounded
// retries.
type Telegram struct {
	log     logx.Logger
	bot     sender
	chat    *tele.Chat
	limiter *rate.Limiter
	retries int
	backoff time.Duration
}

func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(cfg, b, log), nil
}

func newTelegram(cfg Config, bot sender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Telegram{
		log:     log,
		bot:     bot,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retries: retries,
		backoff: 2 * time.Second,
	}
}

// Send delivers text to the configured chat, splitting it into chunks when
// it exceeds the Telegram message limit. Each chunk waits on the rate
// limiter and gets the configured retries with linear backoff.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	for _, chunk := range splitText(text, telegramTextLimit) {
		if err := t.sendChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendChunk(ctx context.Context, chunk string) error {
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if attempt > 0 {
			backoff := time.Duration(attempt) * t.backoff
			t.log.Warn("send retry",
				logx.Int("attempt", attempt),
				logx.Duration("backoff", backoff),
				logx.Err(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if _, err := t.bot.Send(t.chat, chunk, opts); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("telegram send after %d attempts: %w", t.retries+1, lastErr)
}

// splitText cuts text into chunks of at most limit bytes, preferring to cut
// on line boundaries so formatted digests stay readable. A hard cut never
// lands inside a multi-byte rune; Telegram rejects invalid UTF-8.
func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		// A single oversized line gets hard-cut.
		for len(line) > limit {
			if b.Len() > 0 {
				chunks = append(chunks, b.String())
				b.Reset()
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
