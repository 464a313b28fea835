package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/trfret/internal/models"
)

// telegramSender is the part of tgbotapi.BotAPI the client uses.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram handles Telegram notifications
type Telegram struct {
	bot            telegramSender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a new Telegram notifier
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, maxRetries, retryDelayBase)
}

func newTelegram(bot telegramSender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Notify sends the fit summary, then the workbook as a document if one was written.
func (t *Telegram) Notify(ctx context.Context, run *models.Run, workbook string) error {
	msg := tgbotapi.NewMessage(t.chatID, formatTelegram(run))
	msg.ParseMode = "MarkdownV2" // Use MarkdownV2 for better escaping support
	if err := t.send(ctx, msg); err != nil {
		return err
	}
	if workbook == "" {
		return nil
	}
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(workbook))
	return t.send(ctx, doc)
}

// send retries with a linearly growing delay
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error

	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == t.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send Telegram message after %d retries: %w", t.maxRetries, lastErr)
}

// formatTelegram formats a run into a Telegram message
func formatTelegram(run *models.Run) string {
	var b strings.Builder
	b.WriteString("🧪 *Binding analysis complete*\n\n")
	fmt.Fprintf(&b, "📁 %s\n", escapeMarkdownV2(run.Dataset.Path))
	fmt.Fprintf(&b, "🔁 %s\n\n", escapeMarkdownV2(fmt.Sprintf("%d replicates, %d points", run.Dataset.ReplicateCount, run.Dataset.DatapointCount)))
	for _, line := range fitLines(run) {
		fmt.Fprintf(&b, "• %s\n", escapeMarkdownV2(line))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
