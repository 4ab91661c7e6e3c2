package report

import (
	"strings"
	"testing"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
)

func TestBuildPrompt_NoSpeakerTagsOmitsNote(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingGeneral, "plain transcript text", nil)
	if strings.Contains(got, "speaker tags") {
		t.Fatalf("expected no speaker note without [SPEAKER_ markers, got %q", got)
	}
}

func TestBuildPrompt_SpeakerTagsIncludesNote(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingGeneral, "[SPEAKER_0] hello", nil)
	if !strings.Contains(got, "speaker tags") {
		t.Fatalf("expected speaker note when transcript has [SPEAKER_ markers, got %q", got)
	}
}

func TestBuildPrompt_NoGlossaryOmitsBlock(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingGeneral, "text", nil)
	if strings.Contains(got, "domain terms") {
		t.Fatalf("expected no glossary block with empty terms, got %q", got)
	}
}

func TestBuildPrompt_GlossaryIncludesTermsAndAliases(t *testing.T) {
	terms := []pipeline.GlossaryTerm{
		{Term: "EC2", Aliases: []string{"Elastic Compute Cloud"}, Definition: "virtual machines"},
	}
	got := BuildPrompt(pipeline.MeetingGeneral, "text", terms)
	if !strings.Contains(got, "domain terms") {
		t.Fatalf("expected glossary block present, got %q", got)
	}
	if !strings.Contains(got, "EC2") || !strings.Contains(got, "Elastic Compute Cloud") || !strings.Contains(got, "virtual machines") {
		t.Fatalf("expected term, alias, and definition all present, got %q", got)
	}
}

func TestBuildPrompt_SelectsSchemaByMeetingType(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingTech, "text", nil)
	if !strings.Contains(got, "knowledgeBase") {
		t.Fatalf("expected tech schema description, got %q", got)
	}
	if strings.Contains(got, "customerInfo") {
		t.Fatalf("did not expect customer schema fields in tech prompt, got %q", got)
	}
}

func TestBuildPrompt_UnknownMeetingTypeFallsBackToGeneral(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingType("unknown"), "text", nil)
	if !strings.Contains(got, `"meetingType": "general"`) {
		t.Fatalf("expected fallback to general schema, got %q", got)
	}
}

func TestBuildPrompt_EndsWithJSONOnlyMandate(t *testing.T) {
	got := BuildPrompt(pipeline.MeetingGeneral, "text", nil)
	if !strings.HasSuffix(got, jsonOnlyMandate) {
		t.Fatalf("expected prompt to end with the JSON-only mandate, got %q", got)
	}
}
