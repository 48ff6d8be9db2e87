package http

import (
	"net/http"
	"strings"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/syncapi"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// Headers shared with the sync client.
const (
	HeaderInitData       = syncapi.HeaderInitData
	HeaderIdempotencyKey = syncapi.HeaderIdempotencyKey
)

// identity is the authenticated caller of a sync endpoint.
type identity struct {
	// TelegramID is zero when the check is disabled and nothing was presented.
	TelegramID shared.TelegramID
	Via        string
}

func (s *Server) initDataRequired() bool {
	return s.deps.RequireInitData == nil || s.deps.RequireInitData()
}

// authenticateLearner resolves who sends a sync request: signed init data
// first, then a student JWT.
func (s *Server) authenticateLearner(r *http.Request) (identity, error) {
	if raw := r.Header.Get(HeaderInitData); raw != "" && s.deps.InitData != nil {
		data, err := s.deps.InitData.Validate(raw)
		if err != nil {
			return identity{}, err
		}
		return identity{TelegramID: data.TelegramID(), Via: "init_data"}, nil
	}

	if token, ok := bearerToken(r); ok && s.deps.Sessions != nil {
		session, err := s.deps.Sessions.Parse(token)
		if err != nil {
			return identity{}, err
		}
		if session.Role != curator.RoleStudent {
			return identity{}, shared.NewDomainError("http", "Authenticate", shared.ErrForbidden,
				"only students can sync progress")
		}
		return identity{TelegramID: session.TelegramID, Via: "jwt"}, nil
	}

	if !s.initDataRequired() {
		return identity{Via: "none"}, nil
	}
	return identity{}, shared.NewDomainError("http", "Authenticate", shared.ErrUnauthorized,
		"X-Telegram-Init-Data or a bearer token is required")
}

// authorizeLearner checks that the caller may act on id.
func (s *Server) authorizeLearner(r *http.Request, id shared.TelegramID) error {
	who, err := s.authenticateLearner(r)
	if err != nil {
		return err
	}
	if who.TelegramID != 0 && who.TelegramID != id {
		return shared.Errorf("http", "Authorize", shared.ErrForbidden,
			"authenticated as %d, not %d", who.TelegramID, id)
	}
	return nil
}

// requireSession parses the bearer JWT of curator endpoints.
func (s *Server) requireSession(r *http.Request) (curator.Session, error) {
	token, ok := bearerToken(r)
	if !ok || s.deps.Sessions == nil {
		return curator.Session{}, shared.NewDomainError("http", "Authenticate", shared.ErrUnauthorized, "bearer token is required")
	}
	return s.deps.Sessions.Parse(token)
}

// requireCurator parses the bearer JWT and demands the curator role.
func (s *Server) requireCurator(r *http.Request) (curator.Session, error) {
	session, err := s.requireSession(r)
	if err != nil {
		return session, err
	}
	if session.Role != curator.RoleCurator {
		return session, shared.NewDomainError("http", "Authorize", shared.ErrForbidden, "curator role is required")
	}
	return session, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
