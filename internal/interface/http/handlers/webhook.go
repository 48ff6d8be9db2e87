package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/telegram"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLER INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// WebhookHandler processes a raw Telegram webhook payload.
type WebhookHandler interface {
	HandleTelegramUpdate(ctx context.Context, payload []byte) error
}

// Replier sends bot replies. Implemented by telegram.Client.
type Replier interface {
	SendWithKeyboard(ctx context.Context, chatID int64, html string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
}

// SummaryReader returns a learner's progress summary.
// Implemented by query.GetProgressHandler.
type SummaryReader interface {
	Summary(ctx context.Context, q query.GetProgressQuery) (*query.ProgressSummary, error)
}

// CommandHandler handles a bot command. args is the text after the command.
type CommandHandler func(ctx context.Context, msg *telegram.Message, args string) error

// ══════════════════════════════════════════════════════════════════════════════
// BOT WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// BotWebhook routes bot commands from webhook updates. Updates that are not
// commands in a private chat are ignored.
type BotWebhook struct {
	mu       sync.RWMutex
	commands map[string]CommandHandler
	log      *logger.Logger
}

// NewBotWebhook creates an empty router.
func NewBotWebhook(log *logger.Logger) *BotWebhook {
	if log == nil {
		log = logger.Nop()
	}
	return &BotWebhook{
		commands: make(map[string]CommandHandler),
		log:      log.With(logger.Component("bot_webhook")),
	}
}

// RegisterCommand registers a handler for a command given without the slash.
func (b *BotWebhook) RegisterCommand(command string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[strings.TrimPrefix(command, "/")] = handler
}

// HandleTelegramUpdate parses the update and runs the matching command.
func (b *BotWebhook) HandleTelegramUpdate(ctx context.Context, payload []byte) error {
	var update telegram.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return shared.WrapError("bot", "HandleTelegramUpdate", shared.ErrInvalidFormat, "malformed update", err)
	}

	msg := update.Message
	if !telegram.IsPrivateChat(msg) || msg.From == nil || msg.From.IsBot {
		return nil
	}

	command := telegram.ExtractCommand(msg)
	if command == "" {
		return nil
	}

	b.mu.RLock()
	handler, ok := b.commands[command]
	b.mu.RUnlock()
	if !ok {
		b.log.Debug("unknown bot command", logger.String("command", command))
		return nil
	}

	args := ""
	if i := strings.IndexByte(msg.Text, ' '); i >= 0 {
		args = strings.TrimSpace(msg.Text[i+1:])
	}

	if err := handler(ctx, msg, args); err != nil {
		b.log.Error("bot command failed",
			logger.String("command", command),
			logger.TelegramID(msg.From.ID),
			logger.Err(err))
		return fmt.Errorf("/%s: %w", command, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func webAppKeyboard(webAppURL string) *telegram.InlineKeyboardMarkup {
	if webAppURL == "" {
		return nil
	}
	return telegram.NewKeyboard().Row(telegram.WebAppButton(telegram.DefaultWebAppButtonText, webAppURL)).Build()
}

// NewStartCommand greets the user and offers the Mini App.
func NewStartCommand(replier Replier, webAppURL string) CommandHandler {
	return func(ctx context.Context, msg *telegram.Message, _ string) error {
		text := fmt.Sprintf(
			"👋 Привет, <b>%s</b>!\n\n"+
				"Это Teens Space: курс о том, как понимать себя и других.\n"+
				"Проходи уроки, копи XP и монеты, не теряй серию.\n\n"+
				"Команда /progress покажет твой прогресс.",
			html.EscapeString(msg.From.FirstName))
		_, err := replier.SendWithKeyboard(ctx, msg.Chat.ID, text, webAppKeyboard(webAppURL))
		return err
	}
}

// NewProgressCommand replies with the sender's progress summary.
func NewProgressCommand(replier Replier, summaries SummaryReader, webAppURL string) CommandHandler {
	return func(ctx context.Context, msg *telegram.Message, _ string) error {
		sum, err := summaries.Summary(ctx, query.GetProgressQuery{TelegramID: shared.TelegramID(msg.From.ID)})
		var text string
		switch {
		case shared.IsNotFound(err):
			text = "Прогресса пока нет. Открой приложение и пройди первый урок!"
		case err != nil:
			return err
		default:
			text = FormatSummary(sum)
		}
		_, err = replier.SendWithKeyboard(ctx, msg.Chat.ID, text, webAppKeyboard(webAppURL))
		return err
	}
}

// FormatSummary renders a summary as a bot message.
func FormatSummary(s *query.ProgressSummary) string {
	var b strings.Builder
	b.WriteString("📊 <b>Твой прогресс</b>\n\n")
	fmt.Fprintf(&b, "⭐ Уровень %d · %s\n", s.Level, html.EscapeString(s.LevelTitle))
	fmt.Fprintf(&b, "✨ %d XP, до следующего уровня %d\n", s.XP, s.XPToNext)
	fmt.Fprintf(&b, "🔥 Серия: %d %s", s.Streak, timeutil.PluralRu(s.Streak, "день", "дня", "дней"))
	if s.ShieldReady {
		b.WriteString(" 🛡")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "🪙 %d · 💎 %d\n", s.Coins, s.Gems)
	if s.LessonsTotal > 0 {
		fmt.Fprintf(&b, "📚 Уроков: %d из %d (%d%%)\n", s.LessonsCompleted, s.LessonsTotal, s.CoursePct)
	} else {
		fmt.Fprintf(&b, "📚 Уроков: %d\n", s.LessonsCompleted)
	}
	if s.AchievementsUnlocked > 0 {
		fmt.Fprintf(&b, "🏆 Достижений: %d\n", s.AchievementsUnlocked)
	}
	return strings.TrimRight(b.String(), "\n")
}
