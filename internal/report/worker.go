package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/events"
	"github.com/ILLUVRSE/meeting-minutes/internal/glossary"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// maxOutputTokens is spec §4.3 step 7's recommended LLM output budget.
const maxOutputTokens = 16000

var validate = validator.New()

// Worker implements stage.Processor for the report stage.
type Worker struct {
	Record   ports.Record
	Blob     ports.Blob
	Queue    ports.Queue
	LLM      ports.LLM
	Glossary *glossary.Cache
	Recorder events.Recorder
	Logger   *zap.SugaredLogger

	ExportQueueURL string
}

func New(record ports.Record, blob ports.Blob, queue ports.Queue, llm ports.LLM, gloss *glossary.Cache, recorder events.Recorder, logger *zap.SugaredLogger, exportQueueURL string) *Worker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Worker{
		Record:         record,
		Blob:           blob,
		Queue:          queue,
		LLM:            llm,
		Glossary:       gloss,
		Recorder:       recorder,
		Logger:         logger,
		ExportQueueURL: exportQueueURL,
	}
}

// ProcessMessage implements stage.Processor.
func (w *Worker) ProcessMessage(ctx context.Context, body string) error {
	var msg pipeline.TranscribeDone
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("%w: report: decode message: %v", pipeline.ErrValidation, err)
	}

	now := time.Now().UTC()
	if err := w.updateStage(ctx, msg.MeetingID, msg.CreatedAt, pipeline.StageGenerating, nil); err != nil {
		return err
	}

	meetingType := w.resolveMeetingType(ctx, msg.MeetingType, msg.MeetingID, msg.CreatedAt)

	transcript, err := AssembleTranscript(ctx, w.Blob, msg.TranscribeKey, msg.WhisperKey, msg.FunasrKey)
	if err != nil {
		w.markFailed(ctx, msg.MeetingID, msg.CreatedAt, err)
		return err
	}

	terms, err := w.Glossary.Terms(ctx)
	if err != nil {
		w.Logger.Warnw("glossary fetch failed, proceeding without terms", "meetingId", msg.MeetingID, "error", err)
		terms = nil
	}

	prompt := BuildPrompt(meetingType, transcript, terms)

	raw, err := w.LLM.Invoke(ctx, prompt, maxOutputTokens)
	if err != nil {
		wrapped := fmt.Errorf("%w: report: llm invoke: %v", pipeline.ErrTransient, err)
		w.markFailed(ctx, msg.MeetingID, msg.CreatedAt, wrapped)
		return wrapped
	}

	reportJSON, err := extractAndValidate(meetingType, raw)
	if err != nil {
		wrapped := fmt.Errorf("%w: report: %v", pipeline.ErrPermanent, err)
		w.markFailed(ctx, msg.MeetingID, msg.CreatedAt, wrapped)
		return wrapped
	}

	reportKey := fmt.Sprintf("reports/%s/report.json", msg.MeetingID)
	storedKey, err := w.Blob.Put(ctx, reportKey, reportJSON, "application/json")
	if err != nil {
		return fmt.Errorf("%w: report: store report: %v", pipeline.ErrTransient, err)
	}

	sets := map[string]interface{}{
		"status":    string(pipeline.StatusReported),
		"stage":     string(pipeline.StageExporting),
		"reportKey": storedKey,
		"updatedAt": now,
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: msg.MeetingID,
		CreatedAt: msg.CreatedAt,
		Sets:      sets,
	}); err != nil {
		return fmt.Errorf("%w: report: update record: %v", pipeline.ErrTransient, err)
	}
	w.Recorder.Emit(ctx, msg.MeetingID, msg.CreatedAt, string(pipeline.StageExporting), string(pipeline.StatusReported), sets)

	done := pipeline.ReportDone{
		MeetingID: msg.MeetingID,
		CreatedAt: msg.CreatedAt,
		ReportKey: storedKey,
	}
	payload, err := json.Marshal(done)
	if err != nil {
		return fmt.Errorf("report: marshal ReportDone: %w", err)
	}
	if err := w.Queue.Send(ctx, w.ExportQueueURL, string(payload)); err != nil {
		return fmt.Errorf("%w: report: enqueue export stage: %v", pipeline.ErrTransient, err)
	}
	return nil
}

func (w *Worker) updateStage(ctx context.Context, meetingID string, createdAt time.Time, stage pipeline.Stage, extraSets map[string]interface{}) error {
	sets := map[string]interface{}{
		"stage":     string(stage),
		"updatedAt": time.Now().UTC(),
	}
	for k, v := range extraSets {
		sets[k] = v
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: meetingID,
		CreatedAt: createdAt,
		Sets:      sets,
	}); err != nil {
		return fmt.Errorf("%w: report: update stage %s: %v", pipeline.ErrTransient, stage, err)
	}
	return nil
}

func (w *Worker) resolveMeetingType(ctx context.Context, fromMessage pipeline.MeetingType, meetingID string, createdAt time.Time) pipeline.MeetingType {
	if fromMessage != "" && fromMessage != pipeline.MeetingGeneral {
		return fromMessage
	}
	item, err := w.Record.GetMeeting(ctx, meetingID, createdAt)
	if err != nil {
		return pipeline.MeetingGeneral
	}
	rec, err := pipeline.DecodeRecord(item)
	if err != nil {
		return pipeline.MeetingGeneral
	}
	return pipeline.ResolveMeetingType(fromMessage, rec.MeetingType)
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

// extractAndValidate implements spec §4.3 steps 8-9's parse half: find
// the first top-level {...} substring in raw, unmarshal it into the
// schema struct selected by meetingType, validate required fields, and
// return the canonical (re-marshaled) JSON bytes to persist.
func extractAndValidate(meetingType pipeline.MeetingType, raw string) ([]byte, error) {
	candidate, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	target := emptyForType(meetingType)
	if err := json.Unmarshal([]byte(candidate), target); err != nil {
		return nil, fmt.Errorf("unmarshal llm response: %w", err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, fmt.Errorf("validate llm response: %w", err)
	}

	out, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("marshal validated report: %w", err)
	}
	return out, nil
}

// extractJSONObject returns the first balanced {...} substring of s,
// honoring quoted strings and escapes so braces inside string values
// don't throw off the depth count.
func extractJSONObject(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("no balanced JSON object found in llm response")
}
