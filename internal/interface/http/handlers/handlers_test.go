package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/telegram"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		status   string
		ready    bool
	}{
		{"all up", ok, ok, StatusOK, true},
		{"redis down", ok, down, StatusDegraded, true},
		{"postgres down", down, ok, StatusDown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompositeHealthChecker("test")
			c.AddCheck("postgres", NewDatabaseCheck(tt.postgres))
			c.AddOptionalCheck("redis", NewCacheCheck(tt.redis))

			st := c.Check(context.Background())
			assert.Equal(t, tt.status, st.Status)
			assert.Equal(t, tt.ready, st.Ready)
			assert.Len(t, st.Checks, 2)
		})
	}
}

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	st := NewCompositeHealthChecker("v").Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, StatusOK, st.Status)
}

type reply struct {
	chatID   int64
	html     string
	keyboard *telegram.InlineKeyboardMarkup
}

type fakeReplier struct {
	replies []reply
}

func (f *fakeReplier) SendWithKeyboard(_ context.Context, chatID int64, html string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.replies = append(f.replies, reply{chatID: chatID, html: html, keyboard: kb})
	return &telegram.Message{}, nil
}

type fakeSummaries map[int64]*query.ProgressSummary

func (f fakeSummaries) Summary(_ context.Context, q query.GetProgressQuery) (*query.ProgressSummary, error) {
	if s, ok := f[q.TelegramID.Int64()]; ok {
		return s, nil
	}
	return nil, shared.ErrStateNotFound
}

func commandPayload(from int64, text string) []byte {
	return []byte(`{"update_id":1,"message":{"message_id":7,"date":0,` +
		`"from":{"id":` + strconv.FormatInt(from, 10) + `,"is_bot":false,"first_name":"Аня"},` +
		`"chat":{"id":` + strconv.FormatInt(from, 10) + `,"type":"private"},` +
		`"text":"` + text + `","entities":[{"type":"bot_command","offset":0,"length":` + strconv.Itoa(len(firstWord(text))) + `}]}}`)
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

func TestBotWebhook_Start(t *testing.T) {
	r := &fakeReplier{}
	bot := NewBotWebhook(nil)
	bot.RegisterCommand("start", NewStartCommand(r, "https://t.me/teens_space_bot/app"))

	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), commandPayload(1001, "/start")))
	require.Len(t, r.replies, 1)
	assert.Equal(t, int64(1001), r.replies[0].chatID)
	assert.Contains(t, r.replies[0].html, "Аня")
	require.NotNil(t, r.replies[0].keyboard)
	button := r.replies[0].keyboard.InlineKeyboard[0][0]
	require.NotNil(t, button.WebApp)
	assert.Equal(t, "https://t.me/teens_space_bot/app", button.WebApp.URL)
}

func TestBotWebhook_Progress(t *testing.T) {
	r := &fakeReplier{}
	bot := NewBotWebhook(nil)
	bot.RegisterCommand("/progress", NewProgressCommand(r, fakeSummaries{
		1001: {TelegramID: 1001, XP: 650, Level: 2, LevelTitle: "Исследователь", XPToNext: 350, Streak: 3, LessonsCompleted: 2, LessonsTotal: 12, CoursePct: 16},
	}, ""))

	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), commandPayload(1001, "/progress")))
	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), commandPayload(2002, "/progress")))

	require.Len(t, r.replies, 2)
	assert.Contains(t, r.replies[0].html, "Уровень 2")
	assert.Contains(t, r.replies[0].html, "Серия: 3 дня")
	assert.Contains(t, r.replies[0].html, "Уроков: 2 из 12 (16%)")
	assert.Nil(t, r.replies[0].keyboard)
	assert.Contains(t, r.replies[1].html, "Прогресса пока нет")
}

func TestBotWebhook_IgnoresNonCommands(t *testing.T) {
	r := &fakeReplier{}
	bot := NewBotWebhook(nil)
	bot.RegisterCommand("start", NewStartCommand(r, ""))

	plain := []byte(`{"update_id":2,"message":{"message_id":8,"date":0,"from":{"id":5,"first_name":"a"},"chat":{"id":5,"type":"private"},"text":"привет"}}`)
	group := []byte(`{"update_id":3,"message":{"message_id":9,"date":0,"from":{"id":5,"first_name":"a"},"chat":{"id":-100,"type":"group"},"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`)

	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), plain))
	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), group))
	require.NoError(t, bot.HandleTelegramUpdate(context.Background(), commandPayload(5, "/unknown")))
	assert.Empty(t, r.replies)

	assert.ErrorIs(t, bot.HandleTelegramUpdate(context.Background(), []byte("{")), shared.ErrInvalidFormat)
}

func TestWebhookSecretMiddleware(t *testing.T) {
	h := WebhookSecretMiddleware("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set(HeaderTelegramSecret, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
