package report

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
)

type fakeBlob struct {
	data map[string][]byte
}

func (f *fakeBlob) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlob) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	f.data[key] = body
	return key, nil
}

func TestAssembleTranscript_SingleTrackBare(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m1/whisper.json": []byte(`{"text":"hello there"}`),
	}}

	got, err := AssembleTranscript(context.Background(), blob, "", "transcripts/m1/whisper.json", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("expected bare transcript with no label, got %q", got)
	}
}

func TestAssembleTranscript_DualLabeled(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m1/transcribe.json": []byte(`{"results":{"transcripts":[{"transcript":"aws side"}]}}`),
		"transcripts/m1/whisper.json":    []byte(`{"text":"whisper side"}`),
	}}

	got, err := AssembleTranscript(context.Background(), blob, "transcripts/m1/transcribe.json", "transcripts/m1/whisper.json", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, awsLabel) || !strings.Contains(got, whisperLabel) {
		t.Fatalf("expected both labels present, got %q", got)
	}
	if !strings.Contains(got, "aws side") || !strings.Contains(got, "whisper side") {
		t.Fatalf("expected both transcripts present, got %q", got)
	}
}

func TestAssembleTranscript_FunASRCoalescesSpeakers(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{
		"transcripts/m1/funasr.json": []byte(`{"segments":[{"speaker":"S0","text":"hi"},{"speaker":"S0","text":"all"},{"speaker":"S1","text":"hello"}]}`),
	}}

	got, err := AssembleTranscript(context.Background(), blob, "", "", "transcripts/m1/funasr.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "[S0] hi all") {
		t.Fatalf("expected coalesced S0 line, got %q", got)
	}
	if !strings.Contains(got, "[S1] hello") {
		t.Fatalf("expected S1 line, got %q", got)
	}
	if !strings.Contains(got, funasrLabel) {
		t.Fatalf("expected funasr label, got %q", got)
	}
}

func TestAssembleTranscript_AllSourcesFailed(t *testing.T) {
	blob := &fakeBlob{data: map[string][]byte{}}

	_, err := AssembleTranscript(context.Background(), blob, "", "", "")
	if err == nil {
		t.Fatalf("expected error when no sources present")
	}
}

func TestApplyTruncation_DualSplitsAt60k(t *testing.T) {
	awsText := strings.Repeat("a", 80000)
	whisperText := strings.Repeat("b", 80000)
	full := awsLabel + "\n" + awsText + "\n\n" + whisperLabel + "\n" + whisperText

	out := applyTruncation(full, true, false)

	idx := strings.Index(out, whisperLabel)
	if idx < 0 {
		t.Fatalf("expected whisper label to survive truncation")
	}
	awsSide := out[:idx]
	whisperSide := out[idx:]
	if len(awsSide) > trackTruncateLimit {
		t.Fatalf("aws side exceeds 60k: %d", len(awsSide))
	}
	if len(whisperSide) > trackTruncateLimit {
		t.Fatalf("whisper side exceeds 60k: %d", len(whisperSide))
	}
}

func TestApplyTruncation_SingleCapsAt120k(t *testing.T) {
	full := strings.Repeat("x", 200000)
	out := applyTruncation(full, false, false)
	if len(out) != singleTruncateLimit {
		t.Fatalf("expected single-mode cap at 120k, got %d", len(out))
	}
}

func TestApplyTruncation_FunASROnlyAlreadyTruncated(t *testing.T) {
	full := funasrLabel + "\n" + strings.Repeat("y", 60000)
	out := applyTruncation(full, false, true)
	if out != full {
		t.Fatalf("funasr-only branch should pass through unchanged")
	}
}

func TestExtractJSONObject_SkipsPreamble(t *testing.T) {
	raw := `here is your report:
{"summary": "ok", "nested": {"a": 1}}
thanks`
	got, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"summary": "ok", "nested": {"a": 1}}` {
		t.Fatalf("unexpected extracted object: %q", got)
	}
}

func TestExtractJSONObject_NoObjectFails(t *testing.T) {
	_, err := extractJSONObject("no json here at all")
	if err == nil {
		t.Fatalf("expected error when no JSON object is present")
	}
}

func TestExtractAndValidate_GeneralReport(t *testing.T) {
	raw := `preamble {"summary":"s","keyTopics":["t"],"highlights":["h"],"lowlights":["l"],"decisions":["d"],"actions":[{"task":"t","owner":"o","deadline":"d","priority":"high"}],"participants":["p"],"duration":"30m","meetingType":"general"} trailing`

	out, err := extractAndValidate(pipeline.MeetingGeneral, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), `"summary":"s"`) {
		t.Fatalf("expected validated report to round-trip summary, got %s", out)
	}
}

func TestExtractAndValidate_MissingRequiredFieldFails(t *testing.T) {
	raw := `{"keyTopics":["t"]}`
	if _, err := extractAndValidate(pipeline.MeetingGeneral, raw); err == nil {
		t.Fatalf("expected validation error for missing required fields")
	}
}

// A meeting with no action items is a legitimate, completable report:
// empty optional sections must not be treated as validation failures.
func TestExtractAndValidate_EmptyOptionalSectionsPass(t *testing.T) {
	raw := `{"summary":"ok","actions":[],"keyTopics":[],"highlights":[],"lowlights":[],"decisions":[],"participants":[]}`
	out, err := extractAndValidate(pipeline.MeetingGeneral, raw)
	if err != nil {
		t.Fatalf("unexpected error for empty optional sections: %v", err)
	}
	if !strings.Contains(string(out), `"summary":"ok"`) {
		t.Fatalf("expected validated report to round-trip summary, got %s", out)
	}
}
