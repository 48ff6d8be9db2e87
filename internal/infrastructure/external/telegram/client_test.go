package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/circuitbreaker"
)

func newTestClient(url string) *Client {
	cfg := DefaultClientConfig("TEST:TOKEN")
	cfg.BaseURL = url
	return NewClient(cfg)
}

func TestSendWithKeyboard_WebAppButton(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/sendMessage", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(42), body["chat_id"])
		assert.Equal(t, "HTML", body["parse_mode"])

		markup := body["reply_markup"].(map[string]any)
		rows := markup["inline_keyboard"].([]any)
		button := rows[0].([]any)[0].(map[string]any)
		assert.Equal(t, "https://app.teens.space", button["web_app"].(map[string]any)["url"])

		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"private"},"date":1}}`))
	}))
	defer srv.Close()

	kb := NewKeyboard().Row(WebAppButton("Открыть курс", "https://app.teens.space")).Build()
	msg, err := newTestClient(srv.URL).SendWithKeyboard(context.Background(), 42, "<b>Привет</b>", kb)
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.MessageID)
}

func TestSend_BlockedUserIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendHTML(context.Background(), 42, "hi")
	require.Error(t, err)
	assert.True(t, IsUserBlocked(err))
	assert.ErrorIs(t, err, shared.ErrTelegramAPIFailed)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_ServerErrorIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"TeensBot"}}`))
	}))
	defer srv.Close()

	me, err := newTestClient(srv.URL).GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TeensBot", me.FirstName)
	assert.Equal(t, int32(3), hits.Load())
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{"plain", &Message{Text: "/start", Entities: []MessageEntity{{Type: "bot_command", Length: 6}}}, "start"},
		{"with bot name", &Message{Text: "/progress@TeensBot", Entities: []MessageEntity{{Type: "bot_command", Length: 18}}}, "progress"},
		{"with args", &Message{Text: "/start ref", Entities: []MessageEntity{{Type: "bot_command", Length: 6}}}, "start"},
		{"text", &Message{Text: "hello"}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCommand(tt.msg))
		})
	}
}

func TestNotifier_BlockedUserIsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "reply_markup")

		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	n := NewNotifier(newTestClient(srv.URL), "https://app.teens.space")
	err := n.Notify(context.Background(), 42, "hi")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.True(t, IsUserBlocked(err))
}

func TestSetWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/setWebhook", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://hub.example/webhook/telegram/abc", body["url"])
		assert.Equal(t, "s3cret", body["secret_token"])
		assert.Equal(t, []any{"message"}, body["allowed_updates"])

		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SetWebhook(context.Background(), SetWebhookParams{
		URL:            "https://hub.example/webhook/telegram/abc",
		SecretToken:    "s3cret",
		AllowedUpdates: []string{"message"},
	})
	require.NoError(t, err)
}

func TestClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 10; i++ {
		_, err := c.SendHTML(context.Background(), 42, "hi")
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.State())
}

func TestIsOutage(t *testing.T) {
	assert.True(t, isOutage(errors.New("connection refused")))
	assert.True(t, isOutage(&APIError{Code: 502}))
	assert.True(t, isOutage(&APIError{Code: http.StatusTooManyRequests}))
	assert.False(t, isOutage(&APIError{Code: 403}))
	assert.False(t, isOutage(context.Canceled))
}
