package retry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

type fakeRecord struct {
	item      map[string]interface{}
	getErr    error
	updateErr error
	updates   []ports.UpdateInput
}

func (f *fakeRecord) GetMeeting(ctx context.Context, meetingID string, createdAt time.Time) (map[string]interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.item, nil
}
func (f *fakeRecord) PutMeeting(ctx context.Context, item map[string]interface{}) error { return nil }
func (f *fakeRecord) UpdateMeeting(ctx context.Context, in ports.UpdateInput) error {
	f.updates = append(f.updates, in)
	if f.updateErr != nil && in.Condition != "" {
		return f.updateErr
	}
	return nil
}
func (f *fakeRecord) QueryMeetingsByStatus(ctx context.Context, in ports.QueryInput) ([]map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeRecord) ScanGlossaryTerms(ctx context.Context, pageToken string) ([]map[string]interface{}, string, error) {
	return nil, "", nil
}

type fakeQueue struct {
	sent   []string
	sendErr error
}

func (f *fakeQueue) Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]ports.Message, error) {
	return nil, nil
}
func (f *fakeQueue) Delete(ctx context.Context, queueURL string, receiptHandle string) error {
	return nil
}
func (f *fakeQueue) Send(ctx context.Context, queueURL string, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, body)
	return nil
}

type fakeRecorder struct{ emitted int }

func (f *fakeRecorder) Emit(ctx context.Context, meetingID string, createdAt time.Time, stage, status string, detail interface{}) {
	f.emitted++
}

func encodeRecordItem(t *testing.T, rec pipeline.MeetingRecord) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	return m
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestHandleRetry_HappyPathReenqueuesAndReturns200(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := pipeline.MeetingRecord{
		MeetingID: "m1",
		CreatedAt: createdAt,
		S3Key:     "uploads/m1.mp3",
		Filename:  "standup.mp3",
	}
	record := &fakeRecord{item: encodeRecordItem(t, rec)}
	queue := &fakeQueue{}
	recorder := &fakeRecorder{}

	h := New(record, queue, recorder, nil, "transcription-queue-url")
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/meetings/m1/retry?createdAt="+createdAt.Format(time.RFC3339), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected one re-enqueued job, got %d", len(queue.sent))
	}
	var job pipeline.NewJob
	if err := json.Unmarshal([]byte(queue.sent[0]), &job); err != nil {
		t.Fatalf("failed to decode enqueued job: %v", err)
	}
	if job.MeetingID != "m1" || job.S3Key != "uploads/m1.mp3" {
		t.Fatalf("expected job to carry record's s3Key/meetingId, got %+v", job)
	}
	if recorder.emitted == 0 {
		t.Fatalf("expected an event emitted")
	}
}

func TestHandleRetry_MissingCreatedAtReturns400(t *testing.T) {
	record := &fakeRecord{}
	queue := &fakeQueue{}
	h := New(record, queue, &fakeRecorder{}, nil, "transcription-queue-url")
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/meetings/m1/retry", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleRetry_NotFoundReturns404(t *testing.T) {
	record := &fakeRecord{getErr: ports.ConditionFailedError{}}
	queue := &fakeQueue{}
	h := New(record, queue, &fakeRecorder{}, nil, "transcription-queue-url")
	router := newTestRouter(h)

	createdAt := time.Now().UTC()
	req := httptest.NewRequest(http.MethodPost, "/meetings/ghost/retry?createdAt="+createdAt.Format(time.RFC3339), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleRetry_ConditionRaceReturns409(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := pipeline.MeetingRecord{MeetingID: "m1", CreatedAt: createdAt}
	record := &fakeRecord{item: encodeRecordItem(t, rec), updateErr: ports.ConditionFailedError{}}
	queue := &fakeQueue{}
	h := New(record, queue, &fakeRecorder{}, nil, "transcription-queue-url")
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/meetings/m1/retry?createdAt="+createdAt.Format(time.RFC3339), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(queue.sent) != 0 {
		t.Fatalf("expected no enqueue on a losing race")
	}
}

func TestHandleRetry_EnqueueFailureRevertsAndReturns500(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := pipeline.MeetingRecord{MeetingID: "m1", CreatedAt: createdAt, S3Key: "uploads/m1.mp3"}
	record := &fakeRecord{item: encodeRecordItem(t, rec)}
	queue := &fakeQueue{sendErr: context.DeadlineExceeded}
	recorder := &fakeRecorder{}
	h := New(record, queue, recorder, nil, "transcription-queue-url")
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/meetings/m1/retry?createdAt="+createdAt.Format(time.RFC3339), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}

	var sawRevert bool
	for _, u := range record.updates {
		if u.Sets["status"] == string(pipeline.StatusFailed) {
			sawRevert = true
		}
	}
	if !sawRevert {
		t.Fatalf("expected a revert-to-failed update after enqueue failure, got %+v", record.updates)
	}
}
