// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// УВЕДОМЛЕНИЯ В TELEGRAM
// Обработчики превращают события ledger в короткие сообщения ученику.
// Каждое уведомление выключается своим флагом (notify.*).
// ═══════════════════════════════════════════════════════════════════════════

// notifyTimeout - сколько ждём отправку одного сообщения.
const notifyTimeout = 10 * time.Second

// Notifier - отправка HTML-сообщения ученику с кнопкой Mini App.
// Заблокированный бот - ошибка вида shared.ErrForbidden.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, html string) error
}

// Gate - включено ли уведомление для ученика (флаги раскатываются
// на часть учеников). nil - включено для всех.
type Gate func(telegramID int64) bool

func (g Gate) open(telegramID int64) bool {
	return g == nil || g(telegramID)
}

// chatOf извлекает Telegram ID ученика из AggregateID события.
// В личном чате chat_id совпадает с ID пользователя.
func chatOf(event shared.Event) (int64, error) {
	id, err := strconv.ParseInt(event.AggregateID(), 10, 64)
	if err != nil || !shared.TelegramID(id).IsValid() {
		return 0, fmt.Errorf("event %s has non-telegram aggregate %q", event.EventType(), event.AggregateID())
	}
	return id, nil
}

// deliver отправляет сообщение и логирует результат.
// Заблокированный бот не считается ошибкой обработчика.
func deliver(n Notifier, log *logger.Logger, chatID int64, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	err := n.Notify(ctx, chatID, html)
	switch {
	case err == nil:
		log.Debug("notification sent", logger.TelegramID(chatID))
		return nil
	case errors.Is(err, shared.ErrForbidden):
		log.Info("recipient blocked the bot", logger.TelegramID(chatID))
		return nil
	}
	return fmt.Errorf("notify %d: %w", chatID, err)
}

// rewardText - "+100 XP, +20 🪙, +1 💎".
func rewardText(r shared.Reward) string {
	parts := make([]string, 0, 3)
	if r.XP > 0 {
		parts = append(parts, fmt.Sprintf("+%d XP", r.XP))
	}
	if r.Coins > 0 {
		parts = append(parts, fmt.Sprintf("+%d 🪙", r.Coins))
	}
	if r.Gems > 0 {
		parts = append(parts, fmt.Sprintf("+%d 💎", r.Gems))
	}
	return strings.Join(parts, ", ")
}
