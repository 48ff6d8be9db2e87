package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/catalog"
	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/auth"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/syncapi"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/teens-space/progress-hub/internal/interface/http/handlers"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

const (
	testBotToken = "123456:test-bot-token"
	testSecret   = "0123456789abcdef0123456789abcdef"
	learnerID    = 777
)

type testEnv struct {
	handler  http.Handler
	progress *memory.ProgressRepository
	curators *memory.CuratorRepository
	accounts *command.CuratorAccountHandler
	initData *auth.InitDataValidator
	tokens   *auth.Tokens
	required bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		progress: memory.NewProgressRepository(ledger.DefaultPolicy()),
		curators: memory.NewCuratorRepository(),
		initData: auth.NewInitDataValidator(testBotToken, time.Hour),
		required: true,
	}
	tokens, err := auth.NewTokens(testSecret, "progress-hub-test")
	require.NoError(t, err)
	env.tokens = tokens

	cat := catalog.MustDefault()
	log := logger.Nop()
	clock := timeutil.SystemClock{}

	env.accounts = command.NewCuratorAccountHandler(env.curators, tokens, time.Hour, bcrypt.MinCost, clock, log)

	cfg := DefaultConfig()
	cfg.WebhookToken = "hook-token"

	srv := NewServer(cfg, Dependencies{
		UpsertProgress: command.NewUpsertProgressHandler(env.progress, memory.NewReceiptStore(), nil, nil, log),
		CompleteLesson: command.NewCompleteLessonHandler(command.LedgerDeps{
			Repo:     env.progress,
			Catalog:  cat,
			Clock:    clock,
			Location: time.UTC,
			Logger:   log,
		}),
		Login:           command.NewLoginHandler(env.curators, tokens, nil, time.Hour, clock, log),
		CuratorAuth:     env.accounts,
		GenerateCode:    command.NewGenerateCodeHandler(env.curators, nil, clock, log),
		GetProgress:     query.NewGetProgressHandler(env.progress, nil, cat, log),
		ListStudents:    query.NewListStudentsHandler(env.curators, env.progress, cat, log),
		InitData:        env.initData,
		Sessions:        tokens,
		RequireInitData: func() bool { return env.required },
		Logger:          log,
		WebhookHandler:  handlers.NewBotWebhook(log),
	})
	env.handler = srv.Handler()
	return env
}

// signedInitData builds an X-Telegram-Init-Data value for user id.
func (e *testEnv) signedInitData(id int64) string {
	values := url.Values{}
	values.Set("query_id", "AAE")
	values.Set("user", `{"id":`+strconv.FormatInt(id, 10)+`,"first_name":"Аня"}`)
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("hash", e.initData.Sign(values))
	return values.Encode()
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
	Meta      *ResponseMeta   `json:"meta"`
}

func pushBody(t *testing.T, s *ledger.State) syncapi.ProgressDTO {
	t.Helper()
	dto, err := syncapi.NewProgressDTO(s)
	require.NoError(t, err)
	return dto
}

func stateWith(version int64, xp int) *ledger.State {
	s := ledger.NewState(learnerID)
	s.Version = version
	s.Economy.XP = xp
	return s
}

func (e *testEnv) put(t *testing.T, s *ledger.State) {
	t.Helper()
	res, err := e.progress.Put(context.Background(), s)
	require.NoError(t, err)
	require.True(t, res.Applied)
}

func decodeProgress(t *testing.T, raw json.RawMessage) *ledger.State {
	t.Helper()
	var dto syncapi.ProgressDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	s, err := ledger.Decode(dto.ProgressData)
	require.NoError(t, err)
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC API
// ══════════════════════════════════════════════════════════════════════════════

func TestUpsertProgress(t *testing.T) {
	e := newTestEnv(t)
	hdr := map[string]string{HeaderInitData: e.signedInitData(learnerID)}

	t.Run("applies newer version", func(t *testing.T) {
		headers := map[string]string{HeaderInitData: hdr[HeaderInitData], HeaderIdempotencyKey: "push-1"}
		rec, body := e.do(t, http.MethodPost, "/api/sync/progress", pushBody(t, stateWith(1, 120)), headers)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, body.Success)
		assert.NotEmpty(t, body.RequestID)
		assert.Equal(t, 120, decodeProgress(t, body.Data).Economy.XP)
	})

	t.Run("duplicate idempotency key replays", func(t *testing.T) {
		headers := map[string]string{HeaderInitData: hdr[HeaderInitData], HeaderIdempotencyKey: "push-1"}
		rec, body := e.do(t, http.MethodPost, "/api/sync/progress", pushBody(t, stateWith(1, 120)), headers)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
		assert.Equal(t, int64(1), decodeProgress(t, body.Data).Version)
	})

	t.Run("stale version returns server state", func(t *testing.T) {
		rec, body := e.do(t, http.MethodPost, "/api/sync/progress", pushBody(t, stateWith(1, 999)), hdr)

		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		require.NotNil(t, body.Error)
		assert.Equal(t, CodeVersionConflict, body.Error.Code)
		server := decodeProgress(t, body.Data)
		assert.Equal(t, int64(1), server.Version)
		assert.Equal(t, 120, server.Economy.XP)
	})

	t.Run("other learner is forbidden", func(t *testing.T) {
		other := ledger.NewState(learnerID + 1)
		other.Version = 1
		rec, body := e.do(t, http.MethodPost, "/api/sync/progress", pushBody(t, other), hdr)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, CodeForbidden, body.Error.Code)
	})

	t.Run("corrupt progress data", func(t *testing.T) {
		dto := syncapi.ProgressDTO{TelegramID: learnerID, ProgressData: json.RawMessage(`{"schema_version":99}`)}
		rec, _ := e.do(t, http.MethodPost, "/api/sync/progress", dto, hdr)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/sync/progress", strings.NewReader("{"))
		req.Header.Set(HeaderInitData, hdr[HeaderInitData])
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetProgress(t *testing.T) {
	e := newTestEnv(t)
	hdr := map[string]string{HeaderInitData: e.signedInitData(learnerID)}

	rec, body := e.do(t, http.MethodGet, "/api/sync/progress/777", nil, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, CodeNotFound, body.Error.Code)

	e.put(t, stateWith(3, 600))

	rec, body = e.do(t, http.MethodGet, "/api/sync/progress/777", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeProgress(t, body.Data)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, shared.Level(2), got.Level())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	rec, _ = e.do(t, http.MethodGet, "/api/sync/progress/abc", nil, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncAuthentication(t *testing.T) {
	e := newTestEnv(t)
	e.put(t, stateWith(1, 10))

	t.Run("missing init data is rejected", func(t *testing.T) {
		rec, body := e.do(t, http.MethodGet, "/api/sync/progress/777", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, CodeUnauthorized, body.Error.Code)
	})

	t.Run("forged init data is rejected", func(t *testing.T) {
		forged := strings.Replace(e.signedInitData(learnerID), "777", "778", 1)
		rec, _ := e.do(t, http.MethodGet, "/api/sync/progress/778", nil, map[string]string{HeaderInitData: forged})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("student token is accepted", func(t *testing.T) {
		token, err := e.tokens.Issue(curator.Session{
			Role:       curator.RoleStudent,
			CuratorID:  shared.CuratorID("6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b"),
			TelegramID: learnerID,
			ExpiresAt:  time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		rec, _ := e.do(t, http.MethodGet, "/api/sync/progress/777", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("parent token is forbidden", func(t *testing.T) {
		token, err := e.tokens.Issue(curator.Session{
			Role:       curator.RoleParent,
			CuratorID:  shared.CuratorID("6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b"),
			TelegramID: learnerID,
			ExpiresAt:  time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		rec, _ := e.do(t, http.MethodGet, "/api/sync/progress/777", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous access when the check is off", func(t *testing.T) {
		e.required = false
		defer func() { e.required = true }()

		rec, _ := e.do(t, http.MethodGet, "/api/sync/progress/777", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestCompleteLesson(t *testing.T) {
	e := newTestEnv(t)
	hdr := map[string]string{HeaderInitData: e.signedInitData(learnerID)}
	req := map[string]any{"telegram_id": learnerID, "lesson_id": "1-1", "date": "2026-10-14"}

	rec, body := e.do(t, http.MethodPost, "/api/telegram/complete-lesson", req, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first struct {
		LessonID string               `json:"lesson_id"`
		Title    string               `json:"title"`
		Outcome  ledger.LessonOutcome `json:"outcome"`
		Progress syncapi.ProgressDTO  `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &first))
	assert.Equal(t, "1-1", first.LessonID)
	assert.NotEmpty(t, first.Title)
	assert.False(t, first.Outcome.Duplicate)

	stored, err := e.progress.Get(context.Background(), learnerID)
	require.NoError(t, err)
	assert.True(t, stored.HasCompleted("1-1"))
	version := stored.Version

	rec, body = e.do(t, http.MethodPost, "/api/telegram/complete-lesson", req, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again struct {
		Outcome ledger.LessonOutcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &again))
	assert.True(t, again.Outcome.Duplicate)

	stored, err = e.progress.Get(context.Background(), learnerID)
	require.NoError(t, err)
	assert.Equal(t, version, stored.Version)

	rec, _ = e.do(t, http.MethodPost, "/api/telegram/complete-lesson",
		map[string]any{"telegram_id": learnerID, "lesson_id": "no-such-lesson"}, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// CURATOR FLOW
// ══════════════════════════════════════════════════════════════════════════════

func TestCuratorFlow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	c, err := e.accounts.Create(ctx, command.CreateCuratorCommand{Name: "Мария", Password: "correct horse battery"})
	require.NoError(t, err)

	// Curator logs in with a password.
	rec, body := e.do(t, http.MethodPost, "/api/auth/curator",
		map[string]string{"curator_id": c.ID.String(), "password": "wrong password here"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	rec, body = e.do(t, http.MethodPost, "/api/auth/curator",
		map[string]string{"curator_id": c.ID.String(), "password": "correct horse battery"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var curatorSession sessionResponse
	require.NoError(t, json.Unmarshal(body.Data, &curatorSession))
	assert.Equal(t, "curator", curatorSession.Role)
	bearer := map[string]string{"Authorization": "Bearer " + curatorSession.Token}

	// Curator issues a student code.
	rec, body = e.do(t, http.MethodPost, "/api/curator/generate-code",
		map[string]any{"role": "student", "ttl_hours": 24}, bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var code accessCodeResponse
	require.NoError(t, json.Unmarshal(body.Data, &code))
	require.NotEmpty(t, code.Code)
	assert.Equal(t, c.ID.String(), code.CuratorID)

	// Students cannot issue codes.
	rec, _ = e.do(t, http.MethodPost, "/api/curator/generate-code", map[string]any{"role": "student"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Learner redeems the code from the Mini App.
	learner := map[string]string{HeaderInitData: e.signedInitData(learnerID)}
	rec, body = e.do(t, http.MethodPost, "/api/auth/login?code="+url.QueryEscape(code.Code),
		map[string]any{"telegram_id": learnerID}, learner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var studentSession loginResponse
	require.NoError(t, json.Unmarshal(body.Data, &studentSession))
	assert.Equal(t, "student", studentSession.Role)
	assert.Equal(t, int64(learnerID), studentSession.TelegramID)
	assert.False(t, studentSession.LinkedAt.IsZero())

	// The code is single use.
	rec, _ = e.do(t, http.MethodPost, "/api/auth/login?code="+url.QueryEscape(code.Code),
		map[string]any{"telegram_id": learnerID}, learner)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	e.put(t, stateWith(2, 750))

	// Curator lists linked students.
	rec, body = e.do(t, http.MethodGet, "/api/curator/"+c.ID.String()+"/students", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list query.ListStudentsResult
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Students, 1)
	assert.Equal(t, int64(learnerID), list.Students[0].TelegramID)
	require.NotNil(t, list.Students[0].Progress)
	assert.Equal(t, 750, list.Students[0].Progress.XP)
	require.NotNil(t, body.Meta)
	assert.Equal(t, 1, body.Meta.TotalCount)

	rec, _ = e.do(t, http.MethodGet, "/api/curator/"+c.ID.String()+"/students?page=0", nil, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The student token cannot read the curator's roster.
	studentBearer := map[string]string{"Authorization": "Bearer " + studentSession.Token}
	rec, _ = e.do(t, http.MethodGet, "/api/curator/"+c.ID.String()+"/students", nil, studentBearer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	e := newTestEnv(t)
	srv := NewServer(DefaultConfig(), Dependencies{
		Login:        command.NewLoginHandler(e.curators, e.tokens, nil, time.Hour, nil, nil),
		LoginLimiter: denyAll{},
		Logger:       logger.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login?code=ABCD", strings.NewReader(`{"telegram_id":777}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, string) (bool, error) { return false, nil }

// ══════════════════════════════════════════════════════════════════════════════
// SYSTEM ROUTES
// ══════════════════════════════════════════════════════════════════════════════

func TestTelegramWebhookToken(t *testing.T) {
	e := newTestEnv(t)
	update := `{"update_id":1,"message":{"message_id":1,"text":"hello","chat":{"id":1,"type":"private"}}}`

	for _, tc := range []struct {
		path string
		want int
	}{
		{"/webhook/telegram/wrong", http.StatusNotFound},
		{"/webhook/telegram/hook-token", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(update))
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.path)
	}
}

func TestHealthRoutes(t *testing.T) {
	e := newTestEnv(t)

	rec, body := e.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = e.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnhealthyDependency(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return assert.AnError })
	srv := NewServer(DefaultConfig(), Dependencies{HealthChecker: checker, Logger: logger.Nop()})

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestUnwiredEndpoint(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/progress", strings.NewReader("{}")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
