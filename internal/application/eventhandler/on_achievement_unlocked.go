package eventhandler

import (
	"fmt"
	"html"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Сообщает о новом достижении. Достижение открывается один раз,
// значит и сообщение приходит один раз.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementUnlockedHandler обрабатывает ledger.AchievementUnlocked.
type OnAchievementUnlockedHandler struct {
	notifier Notifier
	enabled  Gate
	catalog  ledger.Catalog
	log      *logger.Logger
}

// NewOnAchievementUnlockedHandler создаёт обработчик. catalog нужен для
// эмодзи и описания, может быть nil.
func NewOnAchievementUnlockedHandler(notifier Notifier, enabled Gate, catalog ledger.Catalog, log *logger.Logger) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAchievementUnlockedHandler{
		notifier: notifier,
		enabled:  enabled,
		catalog:  catalog,
		log:      log.With(logger.Component("on_achievement_unlocked")),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	e, ok := event.(ledger.AchievementUnlocked)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}
	chatID, err := chatOf(e)
	if err != nil {
		return err
	}
	if !h.enabled.open(chatID) {
		return nil
	}

	h.log.Info("achievement unlocked",
		logger.TelegramID(chatID),
		logger.String("achievement_id", e.AchievementID))

	return deliver(h.notifier, h.log, chatID, h.render(e))
}

func (h *OnAchievementUnlockedHandler) render(e ledger.AchievementUnlocked) string {
	emoji, description := "🏆", ""
	if h.catalog != nil {
		if def, ok := h.catalog.Achievement(e.AchievementID); ok {
			if def.Emoji != "" {
				emoji = def.Emoji
			}
			description = def.Description
		}
	}

	msg := fmt.Sprintf("%s <b>Новое достижение: %s</b>", emoji, html.EscapeString(e.Title))
	if description != "" {
		msg += "\n<i>" + html.EscapeString(description) + "</i>"
	}
	if r := rewardText(e.Reward); r != "" {
		msg += "\nНаграда: " + r
	}
	return msg
}
