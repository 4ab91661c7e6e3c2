package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/events"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Worker implements stage.Processor for the export stage.
type Worker struct {
	Record   ports.Record
	Blob     ports.Blob
	Email    ports.Email
	Recorder events.Recorder
	Logger   *zap.SugaredLogger

	FromAddress      string
	DefaultRecipient string // BCC'd when recipientEmails is set; used as To when it isn't.
}

func New(record ports.Record, blob ports.Blob, email ports.Email, recorder events.Recorder, logger *zap.SugaredLogger, fromAddress, defaultRecipient string) *Worker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Worker{
		Record:           record,
		Blob:             blob,
		Email:            email,
		Recorder:         recorder,
		Logger:           logger,
		FromAddress:      fromAddress,
		DefaultRecipient: defaultRecipient,
	}
}

// ProcessMessage implements stage.Processor.
func (w *Worker) ProcessMessage(ctx context.Context, body string) error {
	var msg pipeline.ReportDone
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("%w: export: decode message: %v", pipeline.ErrValidation, err)
	}

	if err := w.updateStage(ctx, msg.MeetingID, msg.CreatedAt, pipeline.StageSending); err != nil {
		return err
	}

	item, err := w.Record.GetMeeting(ctx, msg.MeetingID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: export: load record: %v", pipeline.ErrTransient, err)
	}
	rec, err := pipeline.DecodeRecord(item)
	if err != nil {
		return fmt.Errorf("export: decode record: %w", err)
	}

	rc, err := w.Blob.Get(ctx, msg.ReportKey)
	if err != nil {
		return fmt.Errorf("%w: export: fetch report: %v", pipeline.ErrTransient, err)
	}
	reportBody, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("%w: export: read report: %v", pipeline.ErrTransient, err)
	}

	report, err := decodeReport(reportBody)
	if err != nil {
		wrapped := fmt.Errorf("%w: export: parse report: %v", pipeline.ErrPermanent, err)
		w.markFailed(ctx, msg.MeetingID, msg.CreatedAt, wrapped)
		return wrapped
	}

	title := rec.Filename
	if title == "" {
		title = rec.MeetingID
	}
	htmlBody, err := renderBody(rec.MeetingID, title, buildSections(report))
	if err != nil {
		return fmt.Errorf("export: render body: %w", err)
	}

	to, bcc, skip := resolveRecipients(pipeline.FilterValidEmails(rec.RecipientEmails), w.DefaultRecipient)
	if skip {
		w.Logger.Infow("no recipient configured, skipping send", "meetingId", rec.MeetingID)
	} else {
		subject := fmt.Sprintf("会议纪要: %s", title)
		if err := w.Email.SendHTML(ctx, ports.EmailMessage{
			From:     w.FromAddress,
			To:       to,
			Bcc:      bcc,
			Subject:  subject,
			HTMLBody: htmlBody,
		}); err != nil {
			return fmt.Errorf("%w: export: send email: %v", pipeline.ErrTransient, err)
		}
	}

	now := time.Now().UTC()
	sets := map[string]interface{}{
		"status":     string(pipeline.StatusCompleted),
		"stage":      string(pipeline.StageDone),
		"exportedAt": now,
		"updatedAt":  now,
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: msg.MeetingID,
		CreatedAt: msg.CreatedAt,
		Sets:      sets,
	}); err != nil {
		return fmt.Errorf("%w: export: update record: %v", pipeline.ErrTransient, err)
	}
	w.Recorder.Emit(ctx, msg.MeetingID, msg.CreatedAt, string(pipeline.StageDone), string(pipeline.StatusCompleted), sets)
	return nil
}

// resolveRecipients implements spec §4.4 step 4: custom recipients go to
// To with the default in Bcc; an empty list falls back to the default as
// To; if neither is available, sending is skipped (the record is still
// marked complete by the caller).
func resolveRecipients(custom []string, defaultRecipient string) (to []string, bcc []string, skip bool) {
	if len(custom) > 0 {
		if defaultRecipient != "" {
			return custom, []string{defaultRecipient}, false
		}
		return custom, nil, false
	}
	if defaultRecipient != "" {
		return []string{defaultRecipient}, nil, false
	}
	return nil, nil, true
}

func (w *Worker) updateStage(ctx context.Context, meetingID string, createdAt time.Time, stage pipeline.Stage) error {
	sets := map[string]interface{}{
		"stage":     string(stage),
		"updatedAt": time.Now().UTC(),
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Sets:      sets,
	}); err != nil {
		return fmt.Errorf("%w: export: update stage %s: %v", pipeline.ErrTransient, stage, err)
	}
	return nil
}

func (w *Worker) markFailed(ctx context.Context, meetingID string, createdAt time.Time, cause error) {
	sets := map[string]interface{}{
		"status":       string(pipeline.StatusFailed),
		"stage":        string(pipeline.StageFailed),
		"errorMessage": cause.Error(),
		"updatedAt":    time.Now().UTC(),
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Sets:      sets,
	}); err != nil {
		w.Logger.Warnw("failed to mark record failed", "meetingId", meetingID, "error", err)
		return
	}
	w.Recorder.Emit(ctx, meetingID, createdAt, string(pipeline.StageFailed), string(pipeline.StatusFailed), cause.Error())
}
