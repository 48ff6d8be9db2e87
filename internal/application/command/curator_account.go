package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURATOR ACCOUNT COMMANDS
// Creating curators (`server curator create`) and password sign-in
// (POST /api/auth/curator).
// ══════════════════════════════════════════════════════════════════════════════

// MinPasswordLength is the shortest accepted curator password.
const MinPasswordLength = 8

// CreateCuratorCommand contains the data to create a curator.
type CreateCuratorCommand struct {
	Name       string
	Password   string
	TelegramID shared.TelegramID
}

// Validate validates the command.
func (c CreateCuratorCommand) Validate() error {
	if len(c.Password) < MinPasswordLength {
		return shared.Errorf("create_curator", "Validate", shared.ErrInvalidInput,
			"password must be at least %d characters", MinPasswordLength)
	}
	// bcrypt ignores everything past 72 bytes.
	if len(c.Password) > 72 {
		return shared.NewDomainError("create_curator", "Validate", shared.ErrInvalidInput, "password is too long")
	}
	return nil
}

// AuthenticateCuratorCommand contains curator credentials.
type AuthenticateCuratorCommand struct {
	CuratorID shared.CuratorID
	Password  string
}

// CuratorLoginResult contains the issued curator session.
type CuratorLoginResult struct {
	Curator *curator.Curator
	Session curator.Session
	Token   string
}

// CuratorAccountHandler handles curator creation and authentication.
type CuratorAccountHandler struct {
	repo       curator.Repository
	tokens     TokenIssuer
	sessionTTL time.Duration
	cost       int
	clock      timeutil.Clock
	logger     *logger.Logger
}

// NewCuratorAccountHandler creates a new CuratorAccountHandler.
// cost <= 0 uses bcrypt.DefaultCost.
func NewCuratorAccountHandler(repo curator.Repository, tokens TokenIssuer, sessionTTL time.Duration, cost int, clock timeutil.Clock, log *logger.Logger) *CuratorAccountHandler {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CuratorAccountHandler{
		repo:       repo,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		cost:       cost,
		clock:      clock,
		logger:     log,
	}
}

// Create creates a curator with a bcrypt-hashed password.
func (h *CuratorAccountHandler) Create(ctx context.Context, cmd CreateCuratorCommand) (*curator.Curator, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), h.cost)
	if err != nil {
		return nil, fmt.Errorf("create_curator: hash password: %w", err)
	}

	c, err := curator.NewCurator(shared.CuratorID(uuid.NewString()), cmd.Name, cmd.TelegramID, string(hash), h.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := h.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create_curator: %w", err)
	}

	h.logger.Info("curator created", logger.CuratorID(c.ID.String()))
	return c, nil
}

// Authenticate checks the password and issues a curator session.
// Unknown curators and wrong passwords both yield shared.ErrBadCredentials.
func (h *CuratorAccountHandler) Authenticate(ctx context.Context, cmd AuthenticateCuratorCommand) (*CuratorLoginResult, error) {
	if !cmd.CuratorID.IsValid() || cmd.Password == "" {
		return nil, shared.ErrBadCredentials
	}

	c, err := h.repo.GetByID(ctx, cmd.CuratorID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrBadCredentials
		}
		return nil, fmt.Errorf("authenticate_curator: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(cmd.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			h.logger.Info("curator password mismatch", logger.CuratorID(c.ID.String()))
			return nil, shared.ErrBadCredentials
		}
		return nil, fmt.Errorf("authenticate_curator: %w", err)
	}

	session := curator.CuratorSession(c, h.sessionTTL, h.clock.Now())
	token, err := h.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("authenticate_curator: issue token: %w", err)
	}
	return &CuratorLoginResult{Curator: c, Session: session, Token: token}, nil
}
