// Package transcription implements the transcription stage worker (spec
// §4.2): it consumes NewJob messages, deduplicates external notifications
// by blob key, fans out to up to three ASR tracks in parallel, persists
// per-track artifacts, advances the record to transcribed, and enqueues
// the report stage.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/meeting-minutes/internal/events"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// dedupStatuses is the set of statuses the external-notification dedup
// query checks, per spec §4.2 step 2.
var dedupStatuses = []pipeline.Status{
	pipeline.StatusPending,
	pipeline.StatusProcessing,
	pipeline.StatusReported,
	pipeline.StatusCompleted,
}

// Worker implements stage.Processor for the transcription stage.
type Worker struct {
	Record   ports.Record
	Blob     ports.Blob
	Queue    ports.Queue
	Tracks   []ports.ASRTrack // up to three: aws-transcribe, whisper, funasr
	Recorder events.Recorder
	Logger   *zap.SugaredLogger

	ReportQueueURL string
}

// New constructs a transcription Worker. recorder may be events.NopRecorder{}
// when the outbox is disabled.
func New(record ports.Record, blob ports.Blob, queue ports.Queue, tracks []ports.ASRTrack, recorder events.Recorder, logger *zap.SugaredLogger, reportQueueURL string) *Worker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Worker{
		Record:         record,
		Blob:           blob,
		Queue:          queue,
		Tracks:         tracks,
		Recorder:       recorder,
		Logger:         logger,
		ReportQueueURL: reportQueueURL,
	}
}

// ProcessMessage implements stage.Processor.
func (w *Worker) ProcessMessage(ctx context.Context, body string) error {
	var job pipeline.NewJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("%w: transcription: decode message: %v", pipeline.ErrValidation, err)
	}

	external := job.IsExternal()
	now := time.Now().UTC()
	if err := job.Normalize(now); err != nil {
		// Validation failures (missing s3Key) are dropped, per spec §4.2
		// step 1 and §7's Validation kind — the caller deletes the message.
		return fmt.Errorf("%w: %v", pipeline.ErrValidation, err)
	}

	if strings.HasSuffix(job.S3Key, ".keep") {
		return fmt.Errorf("%w: transcription: .keep sentinel object", pipeline.ErrValidation)
	}

	var createdAt time.Time
	if job.CreatedAt != nil {
		createdAt = job.CreatedAt.UTC()
	} else {
		createdAt = now
	}

	if external {
		dup, err := w.isDuplicate(ctx, job.S3Key)
		if err != nil {
			return fmt.Errorf("%w: transcription: dedup query: %v", pipeline.ErrTransient, err)
		}
		if dup {
			w.Logger.Infow("duplicate external notification, skipping", "s3Key", job.S3Key)
			return nil
		}

		rec := &pipeline.MeetingRecord{
			MeetingID:   job.MeetingID,
			CreatedAt:   createdAt,
			Status:      pipeline.StatusPending,
			Stage:       pipeline.StageTranscribing,
			Filename:    job.Filename,
			MeetingType: job.MeetingType,
			S3Key:       job.S3Key,
			UpdatedAt:   now,
		}
		item, err := pipeline.EncodeRecord(rec)
		if err != nil {
			return fmt.Errorf("transcription: encode new record: %w", err)
		}
		if err := w.Record.PutMeeting(ctx, item); err != nil {
			return fmt.Errorf("%w: transcription: create record: %v", pipeline.ErrTransient, err)
		}
		w.Recorder.Emit(ctx, job.MeetingID, createdAt, string(pipeline.StageTranscribing), string(pipeline.StatusPending), nil)
	}

	result, err := w.runTracks(ctx, job.MeetingID, job.S3Key)
	if err != nil {
		w.markFailed(ctx, job.MeetingID, createdAt, err)
		return err
	}

	sets := map[string]interface{}{
		"status":        string(pipeline.StatusTranscribed),
		"transcribeKey": result.transcribeKey,
		"whisperKey":    result.whisperKey,
		"funasrKey":     result.funasrKey,
		"updatedAt":     now,
	}
	if err := w.Record.UpdateMeeting(ctx, ports.UpdateInput{
		MeetingID: job.MeetingID,
		CreatedAt: createdAt,
		Sets:      sets,
	}); err != nil {
		return fmt.Errorf("%w: transcription: update record: %v", pipeline.ErrTransient, err)
	}
	w.Recorder.Emit(ctx, job.MeetingID, createdAt, string(pipeline.StageTranscribing), string(pipeline.StatusTranscribed), sets)

	meetingType := w.resolveMeetingType(ctx, job.MeetingType, job.MeetingID, createdAt)

	done := pipeline.TranscribeDone{
		MeetingID:     job.MeetingID,
		CreatedAt:     createdAt,
		TranscribeKey: result.transcribeKey,
		WhisperKey:    result.whisperKey,
		FunasrKey:     result.funasrKey,
		MeetingType:   meetingType,
	}
	payload, err := json.Marshal(done)
	if err != nil {
		return fmt.Errorf("transcription: marshal TranscribeDone: %w", err)
	}
	if err := w.Queue.Send(ctx, w.ReportQueueURL, string(payload)); err != nil {
		return fmt.Errorf("%w: transcription: enqueue report stage: %v", pipeline.ErrTransient, err)
	}
	return nil
}

// isDuplicate implements spec §4.2 step 2: an index query per status,
// stopping on first hit.
func (w *Worker) isDuplicate(ctx context.Context, s3Key string) (bool, error) {
	for _, status := range dedupStatuses {
		items, err := w.Record.QueryMeetingsByStatus(ctx, ports.QueryInput{
			IndexName:      "status-createdAt-index",
			PartitionValue: string(status),
			FilterAttr:     "s3Key",
			FilterValue:    s3Key,
			Limit:          1,
		})
		if err != nil {
			return false, err
		}
		if len(items) > 0 {
			return true, nil
		}
	}
	return false, nil
}

type trackResult struct {
	transcribeKey string
	whisperKey    string
	funasrKey     string
}

// runTracks fans out to every enabled track in parallel via errgroup,
// launching each Run call before any result is joined — the fix for the
// "await inside allSettled" bug spec §9 calls out. One track's error
// never cancels its siblings; ctx is shared but not derived per-track.
func (w *Worker) runTracks(ctx context.Context, meetingID, s3Key string) (trackResult, error) {
	var result trackResult
	var anySucceeded bool

	g, gctx := errgroup.WithContext(context.Background())
	_ = gctx // each track call uses the caller ctx directly; errgroup here only waits for the goroutines. Failures go into errs and every closure returns nil, so no sibling is cancelled.

	keys := make([]string, len(w.Tracks))
	errs := make([]error, len(w.Tracks))

	for i, track := range w.Tracks {
		i, track := i, track
		if !track.Enabled() {
			continue
		}
		g.Go(func() error {
			res, err := track.Run(ctx, meetingID, s3Key)
			if err != nil {
				errs[i] = err
				w.Logger.Warnw("asr track failed", "track", track.Name(), "error", err)
				return nil
			}
			keys[i] = res.BlobKey
			return nil
		})
	}
	_ = g.Wait()

	for i, track := range w.Tracks {
		switch track.Name() {
		case "aws-transcribe":
			result.transcribeKey = keys[i]
		case "whisper":
			result.whisperKey = keys[i]
		case "funasr":
			result.funasrKey = keys[i]
		}
		if keys[i] != "" {
			anySucceeded = true
		}
	}

	if !anySucceeded {
		return result, pipeline.ErrAllTracksFailed
	}
	return result, nil
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
