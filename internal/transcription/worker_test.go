package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

type fakeRecord struct {
	queryResults map[string][]map[string]interface{} // by status
	puts         []map[string]interface{}
	updates      []ports.UpdateInput
	getItem      map[string]interface{}
}

func (f *fakeRecord) GetMeeting(ctx context.Context, meetingID string, createdAt time.Time) (map[string]interface{}, error) {
	return f.getItem, nil
}
func (f *fakeRecord) PutMeeting(ctx context.Context, item map[string]interface{}) error {
	f.puts = append(f.puts, item)
	return nil
}
func (f *fakeRecord) UpdateMeeting(ctx context.Context, in ports.UpdateInput) error {
	f.updates = append(f.updates, in)
	return nil
}
func (f *fakeRecord) QueryMeetingsByStatus(ctx context.Context, in ports.QueryInput) ([]map[string]interface{}, error) {
	return f.queryResults[in.PartitionValue], nil
}
func (f *fakeRecord) ScanGlossaryTerms(ctx context.Context, pageToken string) ([]map[string]interface{}, string, error) {
	return nil, "", nil
}

type fakeQueue struct {
	sent []string
}

func (f *fakeQueue) Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]ports.Message, error) {
	return nil, nil
}
func (f *fakeQueue) Delete(ctx context.Context, queueURL string, receiptHandle string) error {
	return nil
}
func (f *fakeQueue) Send(ctx context.Context, queueURL string, body string) error {
	f.sent = append(f.sent, body)
	return nil
}

type fakeTrack struct {
	name    string
	enabled bool
	key     string
	err     error
	delay   time.Duration
}

func (t *fakeTrack) Name() string    { return t.name }
func (t *fakeTrack) Enabled() bool   { return t.enabled }
func (t *fakeTrack) Run(ctx context.Context, meetingID, s3Key string) (ports.ASRResult, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	if t.err != nil {
		return ports.ASRResult{}, t.err
	}
	return ports.ASRResult{BlobKey: t.key}, nil
}

type fakeRecorder struct{ emitted int }

func (f *fakeRecorder) Emit(ctx context.Context, meetingID string, createdAt time.Time, stage, status string, detail interface{}) {
	f.emitted++
}

func TestWorker_ProcessMessage_ExternalDedup_SkipsKnownKey(t *testing.T) {
	record := &fakeRecord{queryResults: map[string][]map[string]interface{}{
		string(pipeline.StatusCompleted): {{"s3Key": "uploads/a.mp3"}},
	}}
	queue := &fakeQueue{}
	tracks := []ports.ASRTrack{&fakeTrack{name: "whisper", enabled: true, key: "transcripts/x/whisper.json"}}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	body := `{"Records":[{"s3":{"object":{"key":"uploads/a.mp3"}}}]}`
	if err := w.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(record.puts) != 0 {
		t.Fatalf("expected no new record created for a duplicate key, got %d", len(record.puts))
	}
	if len(queue.sent) != 0 {
		t.Fatalf("expected no enqueue for a duplicate, got %d", len(queue.sent))
	}
}

func TestWorker_ProcessMessage_ExternalNewKey_CreatesRecordAndEnqueues(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	tracks := []ports.ASRTrack{&fakeTrack{name: "whisper", enabled: true, key: "transcripts/m/whisper.json"}}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	body := `{"Records":[{"s3":{"object":{"key":"uploads/new.mp3"}}}]}`
	if err := w.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(record.puts) != 1 {
		t.Fatalf("expected one new record created, got %d", len(record.puts))
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected one report-stage enqueue, got %d", len(queue.sent))
	}
	var done pipeline.TranscribeDone
	if err := json.Unmarshal([]byte(queue.sent[0]), &done); err != nil {
		t.Fatalf("decode TranscribeDone: %v", err)
	}
	if done.WhisperKey != "transcripts/m/whisper.json" {
		t.Fatalf("expected whisper key propagated, got %+v", done)
	}
}

func TestWorker_ProcessMessage_KeepSentinelIsValidationError(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	w := New(record, nil, queue, nil, &fakeRecorder{}, nil, "report-queue")

	body := `{"meetingId":"m1","s3Key":"uploads/.keep"}`
	err := w.ProcessMessage(context.Background(), body)
	if err == nil || !errors.Is(err, pipeline.ErrValidation) {
		t.Fatalf("expected a validation-kind error for .keep sentinel, got %v", err)
	}
}

func TestWorker_ProcessMessage_NoS3KeyIsValidationError(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	w := New(record, nil, queue, nil, &fakeRecorder{}, nil, "report-queue")

	err := w.ProcessMessage(context.Background(), `{"meetingId":"m1"}`)
	if err == nil || !errors.Is(err, pipeline.ErrValidation) {
		t.Fatalf("expected a validation-kind error for missing s3Key, got %v", err)
	}
}

func TestWorker_RunTracks_PartialFailureStillSucceeds(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	tracks := []ports.ASRTrack{
		&fakeTrack{name: "aws-transcribe", enabled: true, err: errors.New("transcribe unavailable")},
		&fakeTrack{name: "whisper", enabled: true, key: "transcripts/m/whisper.json"},
	}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	result, err := w.runTracks(context.Background(), "m1", "uploads/m1.mp3")
	if err != nil {
		t.Fatalf("expected partial success to not error, got %v", err)
	}
	if result.transcribeKey != "" {
		t.Fatalf("expected empty transcribeKey for the failed track, got %q", result.transcribeKey)
	}
	if result.whisperKey != "transcripts/m/whisper.json" {
		t.Fatalf("expected whisper key present, got %q", result.whisperKey)
	}
}

func TestWorker_RunTracks_AllTracksFailedReturnsError(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	tracks := []ports.ASRTrack{
		&fakeTrack{name: "aws-transcribe", enabled: true, err: errors.New("boom")},
		&fakeTrack{name: "whisper", enabled: true, err: errors.New("boom")},
	}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	_, err := w.runTracks(context.Background(), "m1", "uploads/m1.mp3")
	if !errors.Is(err, pipeline.ErrAllTracksFailed) {
		t.Fatalf("expected ErrAllTracksFailed, got %v", err)
	}
}

func TestWorker_RunTracks_NoTracksEnabledFailsAsAllTracksFailed(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	tracks := []ports.ASRTrack{
		&fakeTrack{name: "aws-transcribe", enabled: false},
		&fakeTrack{name: "whisper", enabled: false},
		&fakeTrack{name: "funasr", enabled: false},
	}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	_, err := w.runTracks(context.Background(), "m1", "uploads/m1.mp3")
	if err == nil {
		t.Fatalf("expected an error when no track is enabled")
	}
}

func TestWorker_RunTracks_LaunchesAllBeforeJoining(t *testing.T) {
	// Each track sleeps; if they ran sequentially this would take >= 3x the
	// per-track delay. Running them concurrently (the allSettled-style fan
	// out fix) keeps the wall time close to a single delay.
	record := &fakeRecord{}
	queue := &fakeQueue{}
	delay := 50 * time.Millisecond
	tracks := []ports.ASRTrack{
		&fakeTrack{name: "aws-transcribe", enabled: true, key: "a", delay: delay},
		&fakeTrack{name: "whisper", enabled: true, key: "b", delay: delay},
		&fakeTrack{name: "funasr", enabled: true, key: "c", delay: delay},
	}
	w := New(record, nil, queue, tracks, &fakeRecorder{}, nil, "report-queue")

	start := time.Now()
	_, err := w.runTracks(context.Background(), "m1", "uploads/m1.mp3")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 2*delay {
		t.Fatalf("expected concurrent fan-out to finish well under %v, took %v", 2*delay, elapsed)
	}
}
