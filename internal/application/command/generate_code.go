package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE ACCESS CODE COMMAND
// A curator issues a one-time code that links a student or parent.
// ══════════════════════════════════════════════════════════════════════════════

// maxCodeCollisions bounds retries when a fresh code collides with a stored one.
const maxCodeCollisions = 5

// GenerateCodeCommand contains the data to issue an access code.
type GenerateCodeCommand struct {
	// CuratorID is the issuing curator (taken from the session).
	CuratorID shared.CuratorID

	// Role is "student" or "parent".
	Role string

	// TTL is the code lifetime. Zero means curator.DefaultCodeTTL.
	TTL time.Duration
}

// Validate validates the command.
func (c GenerateCodeCommand) Validate() error {
	if !c.CuratorID.IsValid() {
		return shared.NewDomainError("generate_code", "Validate", shared.ErrInvalidID, "invalid curator_id")
	}
	if _, err := curator.ParseRole(c.Role); err != nil {
		return err
	}
	if c.TTL < 0 || c.TTL > curator.MaxCodeTTL {
		return shared.Errorf("generate_code", "Validate", shared.ErrValueOutOfRange,
			"ttl must be within 0..%s", curator.MaxCodeTTL)
	}
	return nil
}

// GenerateCodeHandler handles the GenerateCodeCommand.
type GenerateCodeHandler struct {
	repo   curator.Repository
	random io.Reader
	clock  timeutil.Clock
	logger *logger.Logger
}

// NewGenerateCodeHandler creates a new GenerateCodeHandler.
// random == nil uses crypto/rand.
func NewGenerateCodeHandler(repo curator.Repository, random io.Reader, clock timeutil.Clock, log *logger.Logger) *GenerateCodeHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GenerateCodeHandler{repo: repo, random: random, clock: clock, logger: log}
}

// Handle executes the generate code command.
func (h *GenerateCodeHandler) Handle(ctx context.Context, cmd GenerateCodeCommand) (*curator.AccessCode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	role, _ := curator.ParseRole(cmd.Role)

	for attempt := 1; attempt <= maxCodeCollisions; attempt++ {
		raw, err := curator.GenerateCode(h.random)
		if err != nil {
			return nil, fmt.Errorf("generate_code: %w", err)
		}
		code, err := curator.NewAccessCode(raw, cmd.CuratorID, role, cmd.TTL, h.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("generate_code: %w", err)
		}

		err = h.repo.SaveCode(ctx, code)
		if err == nil {
			h.logger.Info("access code issued",
				logger.CuratorID(cmd.CuratorID.String()),
				logger.String("role", string(role)),
				logger.Time("expires_at", code.ExpiresAt))
			return code, nil
		}
		if !shared.IsAlreadyExists(err) {
			return nil, fmt.Errorf("generate_code: %w", err)
		}
		h.logger.Debug("access code collision", logger.Attempt(attempt))
	}

	return nil, shared.Errorf("generate_code", "Handle", shared.ErrServiceUnavailable,
		"no free access code after %d attempts", maxCodeCollisions)
}
