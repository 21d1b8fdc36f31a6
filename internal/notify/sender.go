package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Message is what gets shown when a reminder comes due.
type Message struct {
	ReminderID int64
	Name       string
	Notes      string
	At         time.Time
	Repeat     string
}

// Sender puts a notification in front of the user and can take it down
// again. Send returns an opaque handle for Retract.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
	Retract(ctx context.Context, handle string) error
}

// TelegramSender delivers notifications as Telegram chat messages.
type TelegramSender struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegramSender creates a sender for the given bot token and chat.
func NewTelegramSender(botToken, chatID string) (*TelegramSender, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	b, err := bot.New(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramSender{bot: b, chatID: id}, nil
}

// Send posts the message and returns its Telegram message id.
func (t *TelegramSender) Send(ctx context.Context, m Message) (string, error) {
	msg, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatHTML(m),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send telegram message: %w", err)
	}
	return strconv.Itoa(msg.ID), nil
}

// Retract deletes a previously sent message.
func (t *TelegramSender) Retract(ctx context.Context, handle string) error {
	id, err := strconv.Atoi(handle)
	if err != nil {
		return fmt.Errorf("invalid telegram message handle %q: %w", handle, err)
	}
	if _, err := t.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    t.chatID,
		MessageID: id,
	}); err != nil {
		return fmt.Errorf("failed to delete telegram message: %w", err)
	}
	return nil
}

func formatHTML(m Message) string {
	var b strings.Builder
	b.WriteString("⏰ <b>")
	b.WriteString(html.EscapeString(m.Name))
	b.WriteString("</b>\n")
	b.WriteString(m.At.Format("Mon Jan 2 15:04 MST"))
	if m.Repeat != "" {
		b.WriteString(" · ")
		b.WriteString(html.EscapeString(m.Repeat))
	}
	if m.Notes != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(m.Notes))
		b.WriteString("</i>")
	}
	return b.String()
}

// LogSender writes notifications to the log. It is used when no chat
// backend is configured.
type LogSender struct {
	logger *zap.SugaredLogger
	seq    atomic.Int64
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, m Message) (string, error) {
	handle := strconv.FormatInt(l.seq.Add(1), 10)
	l.logger.Infow("reminder due", "reminder", m.ReminderID, "name", m.Name, "at", m.At, "handle", handle)
	return handle, nil
}

func (l *LogSender) Retract(_ context.Context, handle string) error {
	l.logger.Infow("notification withdrawn", "handle", handle)
	return nil
}
