package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder is the interface stage workers call to emit a stage
// transition into the outbox. It is satisfied by *PGRecorder or
// by NopRecorder when the outbox is disabled (config.EventOutboxEnabled
// returns false, e.g. in tests or a minimal deployment).
type Recorder interface {
	Emit(ctx context.Context, meetingID string, createdAt time.Time, stage, status string, detail interface{})
}

// PGRecorder adapts a *PGStore into a Recorder; failures to append are
// logged and swallowed since the outbox is observability, not the
// system of record — spec's record store remains authoritative.
type PGRecorder struct {
	store  *PGStore
	logger *zap.SugaredLogger
}

func NewPGRecorder(store *PGStore, logger *zap.SugaredLogger) *PGRecorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PGRecorder{store: store, logger: logger}
}

func (r *PGRecorder) Emit(ctx context.Context, meetingID string, createdAt time.Time, stage, status string, detail interface{}) {
	tr := &Transition{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
	}
	if err := r.store.AppendTransition(ctx, tr); err != nil {
		r.logger.Warnw("failed to append stage transition", "meetingId", meetingID, "stage", stage, "error", err)
	}
}

// NopRecorder discards every transition; used when the outbox is
// disabled.
type NopRecorder struct{}

func (NopRecorder) Emit(context.Context, string, time.Time, string, string, interface{}) {}
