package command

import (
	"context"
	"fmt"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN COMMAND
// POST /api/auth/login?code=...: redeems an access code, links the student
// or parent to the curator and issues a session token.
// ══════════════════════════════════════════════════════════════════════════════

// TokenIssuer signs sessions into bearer tokens.
type TokenIssuer interface {
	Issue(s curator.Session) (string, error)
}

// LoginCommand contains the data to redeem an access code.
type LoginCommand struct {
	// Code is the access code as typed by the user.
	Code string

	// TelegramID is the account being linked.
	TelegramID shared.TelegramID

	// Role is optional. The code's role wins; a value here must still parse.
	Role string
}

// Validate validates the command.
func (c LoginCommand) Validate() error {
	if err := requireTelegramID("login", c.TelegramID); err != nil {
		return err
	}
	if curator.NormalizeCode(c.Code) == "" {
		return shared.NewDomainError("login", "Validate", shared.ErrInvalidInput, "code is required")
	}
	if c.Role != "" {
		if _, err := curator.ParseRole(c.Role); err != nil {
			return err
		}
	}
	return nil
}

// LoginResult contains the issued session.
type LoginResult struct {
	Link    curator.Link
	Session curator.Session
	Token   string
}

// LoginHandler handles the LoginCommand.
type LoginHandler struct {
	repo       curator.Repository
	tokens     TokenIssuer
	publisher  shared.EventPublisher
	sessionTTL time.Duration
	clock      timeutil.Clock
	logger     *logger.Logger
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(
	repo curator.Repository,
	tokens TokenIssuer,
	publisher shared.EventPublisher,
	sessionTTL time.Duration,
	clock timeutil.Clock,
	log *logger.Logger,
) *LoginHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &LoginHandler{
		repo:       repo,
		tokens:     tokens,
		publisher:  publisher,
		sessionTTL: sessionTTL,
		clock:      clock,
		logger:     log,
	}
}

// Handle executes the login command.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.clock.Now()

	link, err := h.repo.RedeemCode(ctx, cmd.Code, cmd.TelegramID, now)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if cmd.Role != "" {
		if requested, _ := curator.ParseRole(cmd.Role); requested != link.Role {
			h.logger.Info("requested role differs from access code role",
				logger.TelegramID(cmd.TelegramID.Int64()),
				logger.String("requested", string(requested)),
				logger.String("granted", string(link.Role)))
		}
	}

	session := curator.SessionFor(*link, h.sessionTTL, now)
	token, err := h.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}

	if err := shared.PublishAll(h.publisher, []shared.Event{curator.NewStudentLinked(*link)}); err != nil {
		h.logger.Warn("failed to publish student linked", logger.Err(err))
	}

	h.logger.Info("access code redeemed",
		logger.CuratorID(link.CuratorID.String()),
		logger.TelegramID(link.TelegramID.Int64()),
		logger.String("role", string(link.Role)))

	return &LoginResult{Link: *link, Session: session, Token: token}, nil
}
