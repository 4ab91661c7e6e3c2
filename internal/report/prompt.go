package report

import (
	"fmt"
	"strings"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
)

const speakerNote = "The transcript contains speaker tags in the form [SPEAKER_n]; use them to attribute statements to distinct participants where the report schema calls for it.\n\n"

// glossaryNote renders the glossary terms block, or the empty string when
// there are no terms to inject.
func glossaryNote(terms []pipeline.GlossaryTerm) string {
	if len(terms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The following domain terms may appear in the transcript; use the given definitions when interpreting them:\n")
	for _, t := range terms {
		b.WriteString(fmt.Sprintf("- %s", t.Term))
		if len(t.Aliases) > 0 {
			b.WriteString(fmt.Sprintf(" (%s)", strings.Join(t.Aliases, ", ")))
		}
		b.WriteString(fmt.Sprintf(": %s\n", t.Definition))
	}
	b.WriteString("\n")
	return b.String()
}

const jsonOnlyMandate = "\nRespond with JSON only: a single object matching the schema above, no surrounding prose, no markdown code fence.\n"

var schemaDescriptions = map[pipeline.MeetingType]string{
	pipeline.MeetingGeneral: `{
  "summary": string,
  "keyTopics": [string],
  "highlights": [string],
  "lowlights": [string],
  "decisions": [string],
  "actions": [{"task": string, "owner": string, "deadline": string, "priority": "high"|"medium"|"low"}],
  "participants": [string],
  "duration": string,
  "meetingType": "general"
}`,
	pipeline.MeetingWeekly: `{
  "summary": string,
  "teamKPI": {"overview": string, "individuals": [{"name": string, "kpi": string, "status": "on-track"|"at-risk"|"completed"}]},
  "announcements": [string],
  "projectReviews": [{"project": string, "progress": string, "followUps": [string], "highlights": [string], "lowlights": [string], "risks": [{"impact": "high"|"medium"|"low", "mitigation": string}], "challenges": [string]}],
  "decisions": [string],
  "actions": [{"task": string, "owner": string, "deadline": string, "priority": "high"|"medium"|"low"}],
  "participants": [string],
  "nextMeeting": string
}`,
	pipeline.MeetingTech: `{
  "summary": string,
  "topics": [{"topic": string, "discussion": string, "conclusion": string}],
  "highlights": [string],
  "lowlights": [string],
  "actions": [{"task": string, "owner": string, "deadline": string, "priority": "high"|"medium"|"low", "estimate": string}],
  "knowledgeBase": [{"title": string, "content": string}],
  "participants": [string],
  "techStack": [string]
}`,
	pipeline.MeetingCustomer: `{
  "summary": string,
  "customerInfo": {"company": string, "attendees": [string]},
  "awsAttendees": [string],
  "customerNeeds": [{"need": string, "priority": string, "background": string}],
  "painPoints": [{"point": string, "detail": string}],
  "solutionsDiscussed": [{"solution": string, "awsServices": [string], "customerFeedback": string}],
  "commitments": [{"party": "AWS"|"客户", "commitment": string, "owner": string, "deadline": string}],
  "nextSteps": [{"task": string, "owner": string, "deadline": string, "priority": string}],
  "participants": [string]
}`,
}

// BuildPrompt assembles the LLM prompt for meetingType, per spec §4.3
// step 6: a speakerNote (only if the transcript carries a literal
// "[SPEAKER_" token), a glossaryNote (only if terms is non-empty), the
// schema description for meetingType, the transcript itself, and the
// "JSON only" mandate.
func BuildPrompt(meetingType pipeline.MeetingType, transcript string, terms []pipeline.GlossaryTerm) string {
	schema, ok := schemaDescriptions[meetingType]
	if !ok {
		schema = schemaDescriptions[pipeline.MeetingGeneral]
	}

	var b strings.Builder
	if strings.Contains(transcript, "[SPEAKER_") {
		b.WriteString(speakerNote)
	}
	b.WriteString(glossaryNote(terms))
	b.WriteString("You are producing a structured meeting report from the transcript below. Respond with a JSON object matching exactly this shape:\n")
	b.WriteString(schema)
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(transcript)
	b.WriteString(jsonOnlyMandate)
	return b.String()
}
