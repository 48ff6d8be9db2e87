package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

// OutboxKindPush - запись «отправить состояние на сервер».
const OutboxKindPush = "progress.push"

// OutboxEntry - отложенная синхронизация. Запись создаётся в той же
// транзакции, что и локальное обновление, и живёт до подтверждения сервером.
type OutboxEntry struct {
	ID            string
	TelegramID    shared.TelegramID
	Kind          string
	StateVersion  int64
	Events        []shared.EventType
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// Outbox - очередь неотправленных изменений.
type Outbox interface {
	// Due возвращает неотправленные записи, время которых наступило, в порядке создания.
	Due(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)

	// MarkSent подтверждает все записи пользователя с версией не выше upTo.
	MarkSent(ctx context.Context, id shared.TelegramID, upTo int64, now time.Time) (int64, error)

	// Reschedule откладывает запись до next и запоминает ошибку.
	Reschedule(ctx context.Context, entryID string, attempts int, next time.Time, lastErr string) error

	// Pending возвращает число неотправленных записей пользователя.
	Pending(ctx context.Context, id shared.TelegramID) (int, error)
}

// CompactOutbox оставляет по одной записи на пользователя - с наибольшей
// версией. Отправка последнего состояния покрывает все предыдущие.
// Порядок результата - по телеграм-ID.
func CompactOutbox(entries []OutboxEntry) []OutboxEntry {
	latest := make(map[shared.TelegramID]OutboxEntry, len(entries))
	for _, e := range entries {
		cur, ok := latest[e.TelegramID]
		if !ok || e.StateVersion > cur.StateVersion {
			// Попытки берутся максимальные, чтобы backoff не сбрасывался.
			if ok && cur.Attempts > e.Attempts {
				e.Attempts = cur.Attempts
			}
			latest[e.TelegramID] = e
		} else if e.Attempts > cur.Attempts {
			cur.Attempts = e.Attempts
			latest[e.TelegramID] = cur
		}
	}

	out := make([]OutboxEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out
}

// EventTypes возвращает типы событий для записи в outbox.
func EventTypes(events []shared.Event) []shared.EventType {
	if len(events) == 0 {
		return nil
	}
	out := make([]shared.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}
