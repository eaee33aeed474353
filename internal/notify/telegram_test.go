package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	logx "calbot/pkg/logx"
)

type fakeBot struct {
	sent    []string
	failN   int
	lastErr error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	text, _ := what.(string)
	if f.failN > 0 {
		f.failN--
		if f.lastErr == nil {
			f.lastErr = errors.New("telegram: 502")
		}
		return nil, f.lastErr
	}
	f.sent = append(f.sent, text)
	return &tele.Message{ID: len(f.sent)}, nil
}

func newTestTelegram(bot sender, retries int) *Telegram {
	tg := newTelegram(Config{
		ChatID:      42,
		MinInterval: time.Millisecond,
		Retries:     retries,
	}, bot, logx.Nop())
	tg.backoff = time.Millisecond
	return tg
}

func TestSendDeliversText(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot, 0)

	if err := tg.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0] != "hello" {
		t.Fatalf("sent = %v, want [hello]", bot.sent)
	}
}

func TestSendSkipsEmptyText(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot, 0)

	if err := tg.Send(context.Background(), "  \n "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 0 {
		t.Fatalf("blank message was delivered: %v", bot.sent)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	bot := &fakeBot{failN: 2}
	tg := newTestTelegram(bot, 3)

	if err := tg.Send(context.Background(), "flaky"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %v, want one delivery", bot.sent)
	}
}

func TestSendGivesUpAfterRetriesExhausted(t *testing.T) {
	boom := errors.New("telegram: 403 forbidden")
	bot := &fakeBot{failN: 100, lastErr: boom}
	tg := newTestTelegram(bot, 0)

	err := tg.Send(context.Background(), "nope")
	if !errors.Is(err, boom) {
		t.Fatalf("Send error = %v, want wrapped %v", err, boom)
	}
}

func TestSendHonorsContextCancel(t *testing.T) {
	bot := &fakeBot{failN: 100}
	tg := newTestTelegram(bot, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.Send(ctx, "late"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send error = %v, want context.Canceled", err)
	}
}

func TestSendSplitsLongMessages(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot, 0)

	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 100))
	}
	text := strings.Join(lines, "\n")

	if err := tg.Send(context.Background(), text); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) < 2 {
		t.Fatalf("long message not split, %d chunks", len(bot.sent))
	}
	var total int
	for _, chunk := range bot.sent {
		if len(chunk) > telegramTextLimit {
			t.Fatalf("chunk exceeds limit: %d", len(chunk))
		}
		total += len(strings.ReplaceAll(chunk, "\n", ""))
	}
	if want := 200 * 100; total != want {
		t.Fatalf("reassembled %d content bytes, want %d", total, want)
	}
}

func TestSplitTextHardCutsOversizedLine(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := splitText(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Fatalf("content lost in split: %q", got)
	}
}

func TestSplitTextHardCutKeepsRunesIntact(t *testing.T) {
	// Telegram rejects messages that are not valid UTF-8, so a hard cut
	// must land on a rune boundary even when the byte limit falls inside
	// a multi-byte character.
	text := strings.Repeat("あ", 2000) // 3 bytes per rune
	chunks := splitText(text, telegramTextLimit)
	if len(chunks) < 2 {
		t.Fatalf("oversized line not split, %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d is invalid UTF-8", i)
		}
		if len(chunk) > telegramTextLimit {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Fatal("content lost in split")
	}
}
