package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ILLUVRSE/meeting-minutes/internal/glossary"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

type recordCall struct {
	in ports.UpdateInput
}

type fakeRecord struct {
	item    map[string]interface{}
	getErr  error
	updates []recordCall
}

func (f *fakeRecord) GetMeeting(ctx context.Context, meetingID string, createdAt time.Time) (map[string]interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.item, nil
}
func (f *fakeRecord) PutMeeting(ctx context.Context, item map[string]interface{}) error { return nil }
func (f *fakeRecord) UpdateMeeting(ctx context.Context, in ports.UpdateInput) error {
	f.updates = append(f.updates, recordCall{in: in})
	return nil
}
func (f *fakeRecord) QueryMeetingsByStatus(ctx context.Context, in ports.QueryInput) ([]map[string]interface{}, error) {
	return nil, nil
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

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f.response, f.err
}

type fakeRecorder struct {
	emitted int
}

func (f *fakeRecorder) Emit(ctx context.Context, meetingID string, createdAt time.Time, stage, status string, detail interface{}) {
	f.emitted++
}

func TestWorker_ProcessMessage_HappyPath(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m1/whisper.json": []byte(`{"text":"plain transcript"}`),
	}}
	record := &fakeRecord{}
	queue := &fakeQueue{}
	llm := &fakeLLM{response: `{"summary":"s","keyTopics":["t"],"highlights":["h"],"lowlights":["l"],"decisions":["d"],"actions":[{"task":"t","owner":"o","deadline":"d","priority":"high"}],"participants":["p"],"duration":"30m","meetingType":"general"}`}
	recorder := &fakeRecorder{}

	w := New(record, blob, queue, llm, glossary.New(record), recorder, nil, "export-queue-url")

	msg := pipeline.TranscribeDone{
		MeetingID:   "m1",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WhisperKey:  "transcripts/m1/whisper.json",
		MeetingType: pipeline.MeetingGeneral,
	}
	body, _ := json.Marshal(msg)

	if err := w.ProcessMessage(context.Background(), string(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.sent) != 1 {
		t.Fatalf("expected one message enqueued to export stage, got %d", len(queue.sent))
	}
	var done pipeline.ReportDone
	if err := json.Unmarshal([]byte(queue.sent[0]), &done); err != nil {
		t.Fatalf("failed to decode enqueued ReportDone: %v", err)
	}
	if done.MeetingID != "m1" {
		t.Fatalf("expected meetingId m1, got %s", done.MeetingID)
	}
	if done.ReportKey == "" {
		t.Fatalf("expected non-empty reportKey")
	}
	if recorder.emitted == 0 {
		t.Fatalf("expected at least one event emitted")
	}

	var sawReported bool
	for _, c := range record.updates {
		if c.in.Sets["status"] == string(pipeline.StatusReported) {
			sawReported = true
		}
	}
	if !sawReported {
		t.Fatalf("expected a status=reported update, got %+v", record.updates)
	}
}

func TestWorker_ProcessMessage_AllSourcesFailedMarksFailed(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{}}
	record := &fakeRecord{}
	queue := &fakeQueue{}
	llm := &fakeLLM{}
	recorder := &fakeRecorder{}

	w := New(record, blob, queue, llm, glossary.New(record), recorder, nil, "export-queue-url")

	msg := pipeline.TranscribeDone{MeetingID: "m2", CreatedAt: time.Now().UTC()}
	body, _ := json.Marshal(msg)

	if err := w.ProcessMessage(context.Background(), string(body)); err == nil {
		t.Fatalf("expected error when no transcript sources are present")
	}
	if len(queue.sent) != 0 {
		t.Fatalf("expected no export message enqueued on failure")
	}

	var sawFailed bool
	for _, c := range record.updates {
		if c.in.Sets["status"] == string(pipeline.StatusFailed) {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("expected a status=failed update, got %+v", record.updates)
	}
}

func TestWorker_ProcessMessage_LLMErrorMarksFailedAndWrapsTransient(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m3/whisper.json": []byte(`{"text":"hi"}`),
	}}
	record := &fakeRecord{}
	queue := &fakeQueue{}
	llm := &fakeLLM{err: context.DeadlineExceeded}
	recorder := &fakeRecorder{}

	w := New(record, blob, queue, llm, glossary.New(record), recorder, nil, "export-queue-url")

	msg := pipeline.TranscribeDone{MeetingID: "m3", CreatedAt: time.Now().UTC(), WhisperKey: "transcripts/m3/whisper.json"}
	body, _ := json.Marshal(msg)

	err := w.ProcessMessage(context.Background(), string(body))
	if err == nil {
		t.Fatalf("expected error when LLM invocation fails")
	}
	if !errors.Is(err, pipeline.ErrTransient) {
		t.Fatalf("expected error wrapping ErrTransient, got %v", err)
	}
	if len(queue.sent) != 0 {
		t.Fatalf("expected no export message enqueued")
	}

	var sawFailed bool
	for _, c := range record.updates {
		if c.in.Sets["status"] == string(pipeline.StatusFailed) {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("expected a status=failed update, got %+v", record.updates)
	}
}

func TestWorker_ProcessMessage_InvalidLLMJSONMarksFailed(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m4/whisper.json": []byte(`{"text":"hi"}`),
	}}
	record := &fakeRecord{}
	queue := &fakeQueue{}
	llm := &fakeLLM{response: "no json here"}
	recorder := &fakeRecorder{}

	w := New(record, blob, queue, llm, glossary.New(record), recorder, nil, "export-queue-url")

	msg := pipeline.TranscribeDone{MeetingID: "m4", CreatedAt: time.Now().UTC(), WhisperKey: "transcripts/m4/whisper.json"}
	body, _ := json.Marshal(msg)

	if err := w.ProcessMessage(context.Background(), string(body)); err == nil {
		t.Fatalf("expected error when LLM response has no extractable JSON object")
	}
	if len(queue.sent) != 0 {
		t.Fatalf("expected no export message enqueued")
	}

	var sawFailed bool
	for _, c := range record.updates {
		if c.in.Sets["status"] == string(pipeline.StatusFailed) {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("expected a status=failed update, got %+v", record.updates)
	}
}
