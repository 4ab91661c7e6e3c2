// Package retry exposes the retry contract (spec §4.5) over HTTP: a
// conditional status=failed -> processing transition plus NewJob
// re-enqueue, with best-effort revert on enqueue failure.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/events"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Handler wires the retry contract to a chi router. It is not a general
// admin surface — just this one unauthenticated endpoint, per spec's
// Non-goals excluding authentication.
type Handler struct {
	Record   ports.Record
	Queue    ports.Queue
	Recorder events.Recorder
	Logger   *zap.SugaredLogger

	TranscriptionQueueURL string
}

func New(record ports.Record, queue ports.Queue, recorder events.Recorder, logger *zap.SugaredLogger, transcriptionQueueURL string) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		Record:                record,
		Queue:                 queue,
		Recorder:              recorder,
		Logger:                logger,
		TranscriptionQueueURL: transcriptionQueueURL,
	}
}

// Routes mounts the retry endpoint onto r. The path carries only
// meetingId, which alone does not address a unique item, so the handler
// also requires createdAt (from the JSON body or the ?createdAt= query
// parameter), since it is part of the primary key.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/meetings/{meetingId}/retry", h.handleRetry)
}

type retryRequest struct {
	CreatedAt time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingId")
	if meetingID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "meetingId is required"})
		return
	}

	var req retryRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if createdAtParam := r.URL.Query().Get("createdAt"); createdAtParam != "" {
		if t, err := time.Parse(time.RFC3339, createdAtParam); err == nil {
			req.CreatedAt = t
		}
	}
	if req.CreatedAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "createdAt is required (RFC3339, query param or JSON body)"})
		return
	}

	ctx := r.Context()
	if err := h.retry(ctx, meetingID, req.CreatedAt); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "meeting not found"})
		case errors.Is(err, pipeline.ErrRetryPrecondition):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "meeting is not in a failed state, or a concurrent retry won the race"})
		case errors.Is(err, errEnqueueFailed):
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to enqueue retry job"})
		default:
			h.Logger.Errorw("retry failed", "meetingId", meetingID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "retrying"})
}

var errEnqueueFailed = errors.New("retry: enqueue failed")

// retry implements spec §4.5's three steps.
func (h *Handler) retry(ctx context.Context, meetingID string, createdAt time.Time) error {
	item, err := h.Record.GetMeeting(ctx, meetingID, createdAt)
	if err != nil {
		var condErr ports.ConditionFailedError
		if errors.As(err, &condErr) {
			return pipeline.ErrNotFound
		}
		return fmt.Errorf("retry: load record: %w", err)
	}
	rec, err := pipeline.DecodeRecord(item)
	if err != nil {
		return fmt.Errorf("retry: decode record: %w", err)
	}

	// Step 1: conditional update, gated on status=failed. A losing
	// concurrent retry surfaces ConditionFailedError here, which the
	// HTTP layer maps to 409.
	err = h.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Sets: map[string]interface{}{
			"status":    string(pipeline.StatusProcessing),
			"stage":     string(pipeline.StageTranscribing),
			"updatedAt": time.Now().UTC(),
		},
		Removes:     []string{"errorMessage"},
		Condition:   "status = :expectedStatus",
		ConditionOn: map[string]interface{}{":expectedStatus": string(pipeline.StatusFailed)},
	})
	if err != nil {
		var condErr ports.ConditionFailedError
		if errors.As(err, &condErr) {
			return pipeline.ErrRetryPrecondition
		}
		return fmt.Errorf("%w: retry: conditional update: %v", pipeline.ErrTransient, err)
	}
	h.Recorder.Emit(ctx, meetingID, createdAt, string(pipeline.StageTranscribing), string(pipeline.StatusProcessing), "retry")

	// Step 2: re-enqueue a NewJob reproducing the record's s3Key,
	// filename, meetingType.
	job := pipeline.NewJob{
		MeetingID:   meetingID,
		S3Key:       rec.S3Key,
		Filename:    rec.Filename,
		MeetingType: rec.MeetingType,
		CreatedAt:   &createdAt,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("retry: marshal job: %w", err)
	}

	if err := h.Queue.Send(ctx, h.TranscriptionQueueURL, string(payload)); err != nil {
		// Step 3: best-effort revert on enqueue failure.
		h.revertToFailed(ctx, meetingID, createdAt, err)
		return errEnqueueFailed
	}
	return nil
}

func (h *Handler) revertToFailed(ctx context.Context, meetingID string, createdAt time.Time, cause error) {
	sets := map[string]interface{}{
		"status":       string(pipeline.StatusFailed),
		"stage":        string(pipeline.StageFailed),
		"errorMessage": fmt.Sprintf("SQS 入队失败: %v", cause),
		"updatedAt":    time.Now().UTC(),
	}
	if err := h.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Sets:      sets,
	}); err != nil {
		h.Logger.Warnw("failed to revert record after enqueue failure", "meetingId", meetingID, "error", err)
		return
	}
	h.Recorder.Emit(ctx, meetingID, createdAt, string(pipeline.StageFailed), string(pipeline.StatusFailed), sets["errorMessage"])
}
