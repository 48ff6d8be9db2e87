package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PULL PROGRESS COMMAND
// Fetches the server copy and, when it moved past the sync base, rebases the
// local changes onto it.
// ══════════════════════════════════════════════════════════════════════════════

// PullProgressCommand contains the learner to pull.
type PullProgressCommand struct {
	TelegramID shared.TelegramID
}

// Validate validates the command.
func (c PullProgressCommand) Validate() error {
	return requireTelegramID("pull_progress", c.TelegramID)
}

// PullProgressResult contains the outcome of the pull.
type PullProgressResult struct {
	// Adopted is true when server changes were taken in.
	Adopted bool

	// LocalVersion and RemoteVersion are the versions seen before the pull.
	// Zero means there was no state on that side.
	LocalVersion  int64
	RemoteVersion int64

	// BaseVersion is the server version the local copy was built on.
	BaseVersion int64

	// State is the local state after the pull.
	State *ledger.State
}

// PullProgressHandler handles the PullProgressCommand.
type PullProgressHandler struct {
	local  LocalLedger
	remote RemoteProgress
	logger *logger.Logger
}

// NewPullProgressHandler creates a new PullProgressHandler.
func NewPullProgressHandler(local LocalLedger, remote RemoteProgress, log *logger.Logger) *PullProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PullProgressHandler{local: local, remote: remote, logger: log}
}

// Handle executes the pull.
func (h *PullProgressHandler) Handle(ctx context.Context, cmd PullProgressCommand) (*PullProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	result := &PullProgressResult{}

	local, err := h.local.Get(ctx, cmd.TelegramID)
	switch {
	case err == nil:
		result.LocalVersion = local.Version
		result.State = local
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("pull_progress: %w", err)
	}

	remote, err := h.remote.Pull(ctx, cmd.TelegramID)
	if err != nil {
		if shared.IsNotFound(err) {
			return result, nil
		}
		return nil, fmt.Errorf("pull_progress: %w", err)
	}
	result.RemoteVersion = remote.Version

	base, err := h.local.Base(ctx, cmd.TelegramID)
	switch {
	case err == nil:
		result.BaseVersion = base.Version
		if remote.Version <= base.Version {
			return result, nil
		}
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("pull_progress: %w", err)
	}

	state, err := h.local.Rebase(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("pull_progress: %w", err)
	}
	result.Adopted = true
	result.State = state

	h.logger.Info("pulled server progress",
		logger.TelegramID(cmd.TelegramID.Int64()),
		logger.Int64("base_version", result.BaseVersion),
		logger.Int64("server_version", remote.Version))
	return result, nil
}
