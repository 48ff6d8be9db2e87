package syncapi

import (
	"encoding/json"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard envelope returned by the sync API.
type APIResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *APIErrorDTO    `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// APIErrorDTO is the error part of the envelope.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS PAYLOAD
// ══════════════════════════════════════════════════════════════════════════════

// ProgressDTO is the body of POST /api/sync/progress and the data of both
// sync endpoints.
type ProgressDTO struct {
	TelegramID   int64           `json:"telegram_id"`
	ProgressData json.RawMessage `json:"progress_data"`
}

// NewProgressDTO encodes a state for the wire.
func NewProgressDTO(s *ledger.State) (ProgressDTO, error) {
	blob, err := ledger.Encode(s)
	if err != nil {
		return ProgressDTO{}, fmt.Errorf("encode state: %w", err)
	}
	return ProgressDTO{TelegramID: s.TelegramID.Int64(), ProgressData: blob}, nil
}

// State decodes and validates the payload. A payload that does not belong
// to want is rejected.
func (d ProgressDTO) State(want shared.TelegramID) (*ledger.State, error) {
	if len(d.ProgressData) == 0 {
		return nil, fmt.Errorf("%w: progress_data is missing", shared.ErrSyncAPIInvalid)
	}
	s, err := ledger.Decode(d.ProgressData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSyncAPIInvalid, err)
	}
	if s.TelegramID != want || shared.TelegramID(d.TelegramID) != want {
		return nil, fmt.Errorf("%w: payload belongs to %d, expected %d", shared.ErrSyncAPIInvalid, s.TelegramID, want)
	}
	return s, nil
}
