package http

import (
	"net/http"
	"strconv"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/syncapi"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC API HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUpsertProgress handles POST /api/sync/progress.
func (s *Server) handleUpsertProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpsertProgress == nil {
		unavailable(w, r)
		return
	}

	var body syncapi.ProgressDTO
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
	if len(body.ProgressData) == 0 {
		writeError(w, r, shared.NewDomainError("http", "UpsertProgress", shared.ErrInvalidInput, "progress_data is required"))
		return
	}
	state, err := ledger.Decode(body.ProgressData)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.UpsertProgress.Handle(r.Context(), command.UpsertProgressCommand{
		TelegramID:     id,
		State:          state,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		if shared.IsConflict(err) && res != nil && res.State != nil {
			s.writeConflict(w, r, res.State, err)
			return
		}
		writeError(w, r, err)
		return
	}

	dto, err := syncapi.NewProgressDTO(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Duplicate {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// writeConflict answers 409 with the state the server keeps.
func (s *Server) writeConflict(w http.ResponseWriter, r *http.Request, server *ledger.State, cause error) {
	dto, err := syncapi.NewProgressDTO(server)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requestLogger(r).Debug("push rejected",
		logger.TelegramID(server.TelegramID.Int64()),
		logger.StateVersion(server.Version),
		logger.Err(cause))
	writeJSONErrorWithData(w, r, http.StatusConflict, CodeVersionConflict,
		"server holds version "+strconv.FormatInt(server.Version, 10), dto)
}

// handleGetProgress handles GET /api/sync/progress/{telegram_id}.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProgress == nil {
		unavailable(w, r)
		return
	}

	id, err := pathTelegramID(r, "telegram_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authorizeLearner(r, id); err != nil {
		writeError(w, r, err)
		return
	}

	state, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{TelegramID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}

	dto, err := syncapi.NewProgressDTO(state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ─────────────────────────────────────────────────────────────────────────────
// Complete lesson
// ─────────────────────────────────────────────────────────────────────────────

type completeLessonRequest struct {
	TelegramID int64         `json:"telegram_id"`
	LessonID   string        `json:"lesson_id"`
	Date       timeutil.Date `json:"date,omitempty"`
}

type completeLessonResponse struct {
	LessonID string               `json:"lesson_id"`
	Title    string               `json:"title"`
	Outcome  ledger.LessonOutcome `json:"outcome"`
	Progress syncapi.ProgressDTO  `json:"progress"`
}

// handleCompleteLesson handles POST /api/telegram/complete-lesson. The
// Telegram congratulation is sent by the LessonCompleted event handler.
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	if s.deps.CompleteLesson == nil {
		unavailable(w, r)
		return
	}

	var body completeLessonRequest
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

	res, err := s.deps.CompleteLesson.Handle(r.Context(), command.CompleteLessonCommand{
		TelegramID: id,
		LessonID:   body.LessonID,
		Date:       body.Date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	dto, err := syncapi.NewProgressDTO(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, completeLessonResponse{
		LessonID: res.Lesson.ID,
		Title:    res.Lesson.Title,
		Outcome:  res.Outcome,
		Progress: dto,
	})
}

func pathTelegramID(r *http.Request, name string) (shared.TelegramID, error) {
	raw := r.PathValue(name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !shared.TelegramID(n).IsValid() {
		return 0, shared.Errorf("http", "PathValue", shared.ErrInvalidID, "invalid %s %q", name, raw)
	}
	return shared.TelegramID(n), nil
}
