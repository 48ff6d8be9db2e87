package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH & CURATOR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type sessionResponse struct {
	Token      string    `json:"token"`
	Role       string    `json:"role"`
	CuratorID  string    `json:"curator_id"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func newSessionResponse(token string, s curator.Session) sessionResponse {
	return sessionResponse{
		Token:      token,
		Role:       string(s.Role),
		CuratorID:  s.CuratorID.String(),
		TelegramID: s.TelegramID.Int64(),
		ExpiresAt:  s.ExpiresAt,
	}
}

// allowAttempt applies the login limiter. Limiter failures let the request through.
func (s *Server) allowAttempt(w http.ResponseWriter, r *http.Request, identifier, action string) bool {
	if s.deps.LoginLimiter == nil {
		return true
	}
	ok, err := s.deps.LoginLimiter.Allow(r.Context(), identifier, action)
	if err != nil {
		requestLogger(r).Warn("rate limiter unavailable", logger.String("action", action), logger.Err(err))
		return true
	}
	if !ok {
		writeError(w, r, shared.NewDomainError("http", action, shared.ErrRateLimited, "too many attempts, try again later"))
		return false
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /api/auth/login?code=...
// ─────────────────────────────────────────────────────────────────────────────

type loginRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Role       string `json:"role,omitempty"`
}

type loginResponse struct {
	sessionResponse
	LinkedAt time.Time `json:"linked_at"`
}

// handleLogin redeems a curator access code.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Login == nil {
		unavailable(w, r)
		return
	}
	if !s.allowAttempt(w, r, getClientIP(r), "login") {
		return
	}

	var body loginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	id := shared.TelegramID(body.TelegramID)
	if !id.IsValid() {
		writeError(w, r, shared.ErrInvalidTelegram)
		return
	}
	if err := s.authorizeLearner(r, id); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Login.Handle(r.Context(), command.LoginCommand{
		Code:       r.URL.Query().Get("code"),
		TelegramID: id,
		Role:       body.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, loginResponse{
		sessionResponse: newSessionResponse(res.Token, res.Session),
		LinkedAt:        res.Link.LinkedAt,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /api/auth/curator
// ─────────────────────────────────────────────────────────────────────────────

type curatorLoginRequest struct {
	CuratorID string `json:"curator_id"`
	Password  string `json:"password"`
}

// handleCuratorLogin checks curator credentials and issues a curator JWT.
func (s *Server) handleCuratorLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.CuratorAuth == nil {
		unavailable(w, r)
		return
	}

	var body curatorLoginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cid, err := shared.NewCuratorID(body.CuratorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.allowAttempt(w, r, cid.String(), "curator_login") {
		return
	}

	res, err := s.deps.CuratorAuth.Authenticate(r.Context(), command.AuthenticateCuratorCommand{
		CuratorID: cid,
		Password:  body.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newSessionResponse(res.Token, res.Session))
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /api/curator/generate-code
// ─────────────────────────────────────────────────────────────────────────────

type generateCodeRequest struct {
	Role     string `json:"role"`
	TTLHours int    `json:"ttl_hours,omitempty"`
}

type accessCodeResponse struct {
	Code      string    `json:"code"`
	Role      string    `json:"role"`
	CuratorID string    `json:"curator_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleGenerateCode issues a one-time access code for the calling curator.
func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	if s.deps.GenerateCode == nil {
		unavailable(w, r)
		return
	}
	session, err := s.requireCurator(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body generateCodeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	code, err := s.deps.GenerateCode.Handle(r.Context(), command.GenerateCodeCommand{
		CuratorID: session.CuratorID,
		Role:      body.Role,
		TTL:       time.Duration(body.TTLHours) * time.Hour,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, accessCodeResponse{
		Code:      code.Code,
		Role:      string(code.Role),
		CuratorID: code.CuratorID.String(),
		ExpiresAt: code.ExpiresAt,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// GET /api/curator/{id}/students
// ─────────────────────────────────────────────────────────────────────────────

// handleListStudents lists the curator's linked students with progress summaries.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		unavailable(w, r)
		return
	}
	session, err := s.requireSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cid, err := shared.NewCuratorID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := pageOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{CuratorID: cid, Session: session, Page: page})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res, &ResponseMeta{TotalCount: res.Total})
}

// pageOf reads ?page= and ?page_size=. Missing values fall back to defaults.
func pageOf(r *http.Request) (shared.Pagination, error) {
	page, err := positiveParam(r, "page")
	if err != nil {
		return shared.Pagination{}, err
	}
	size, err := positiveParam(r, "page_size")
	if err != nil {
		return shared.Pagination{}, err
	}
	return shared.Pagination{Page: page, PageSize: size}, nil
}

func positiveParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, shared.Errorf("http", "pageOf", shared.ErrInvalidInput, "%s must be a positive integer", name)
	}
	return n, nil
}
