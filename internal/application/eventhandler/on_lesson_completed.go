package eventhandler

import (
	"fmt"
	"html"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LESSON COMPLETED HANDLER
// Поздравляет ученика с пройденным уроком и показывает награду.
// Повторное прохождение события не порождает, поэтому дублей нет.
// ═══════════════════════════════════════════════════════════════════════════

// OnLessonCompletedHandler обрабатывает ledger.LessonCompleted.
type OnLessonCompletedHandler struct {
	notifier     Notifier
	enabled      Gate
	lessonsTotal int
	log          *logger.Logger
}

// NewOnLessonCompletedHandler создаёт обработчик.
// lessonsTotal - сколько уроков в курсе, 0 - не показывать.
func NewOnLessonCompletedHandler(notifier Notifier, enabled Gate, lessonsTotal int, log *logger.Logger) *OnLessonCompletedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnLessonCompletedHandler{
		notifier:     notifier,
		enabled:      enabled,
		lessonsTotal: lessonsTotal,
		log:          log.With(logger.Component("on_lesson_completed")),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnLessonCompletedHandler) Handle(event shared.Event) error {
	e, ok := event.(ledger.LessonCompleted)
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

	h.log.Info("lesson completed",
		logger.TelegramID(chatID),
		logger.LessonID(e.LessonID),
		logger.XPAmount(e.Reward.XP))

	return deliver(h.notifier, h.log, chatID, h.render(e))
}

func (h *OnLessonCompletedHandler) render(e ledger.LessonCompleted) string {
	title := e.Title
	if title == "" {
		title = e.LessonID
	}
	msg := fmt.Sprintf("✅ <b>Урок «%s» пройден!</b>", html.EscapeString(title))
	if r := rewardText(e.Reward); r != "" {
		msg += "\nНаграда: " + r
	}
	if h.lessonsTotal > 0 {
		msg += fmt.Sprintf("\nПройдено %d из %d %s.", e.Total, h.lessonsTotal,
			timeutil.PluralRu(h.lessonsTotal, "урока", "уроков", "уроков"))
	}
	return msg
}
