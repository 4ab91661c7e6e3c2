// Package pipeline contains the canonical models used across the three
// stage workers: the durable meeting record, the glossary term, and the
// queue message shapes that carry a job from one stage to the next.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the coarse lifecycle state of a MeetingRecord.
type Status string

const (
	StatusCreated     Status = "created"
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusTranscribed Status = "transcribed"
	StatusReported    Status = "reported"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Stage is the fine-grained, UI-facing progress label.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageReporting    Stage = "reporting"
	StageGenerating   Stage = "generating"
	StageExporting    Stage = "exporting"
	StageSending      Stage = "sending"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// MeetingType selects the LLM prompt template used by the report stage.
type MeetingType string

const (
	MeetingGeneral  MeetingType = "general"
	MeetingWeekly   MeetingType = "weekly"
	MeetingTech     MeetingType = "tech"
	MeetingCustomer MeetingType = "customer"
)

// MeetingRecord is the durable record of a single job. Its primary key is
// the pair (MeetingID, CreatedAt); a secondary index over (Status,
// CreatedAt) supports dedup lookups and listing.
type MeetingRecord struct {
	MeetingID   string      `json:"meetingId" dynamodbav:"meetingId"`
	CreatedAt   time.Time   `json:"createdAt" dynamodbav:"createdAt"`
	Status      Status      `json:"status" dynamodbav:"status"`
	Stage       Stage       `json:"stage" dynamodbav:"stage"`
	Title       string      `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Filename    string      `json:"filename" dynamodbav:"filename"`
	MeetingType MeetingType `json:"meetingType" dynamodbav:"meetingType"`

	S3Key         string `json:"s3Key" dynamodbav:"s3Key"`
	TranscribeKey string `json:"transcribeKey,omitempty" dynamodbav:"transcribeKey,omitempty"`
	WhisperKey    string `json:"whisperKey,omitempty" dynamodbav:"whisperKey,omitempty"`
	FunasrKey     string `json:"funasrKey,omitempty" dynamodbav:"funasrKey,omitempty"`
	ReportKey     string `json:"reportKey,omitempty" dynamodbav:"reportKey,omitempty"`
	PdfKey        string `json:"pdfKey,omitempty" dynamodbav:"pdfKey,omitempty"`

	RecipientEmails []string `json:"recipientEmails,omitempty" dynamodbav:"recipientEmails,omitempty"`
	ErrorMessage    string   `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`

	UpdatedAt  time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
	ExportedAt *time.Time `json:"exportedAt,omitempty" dynamodbav:"exportedAt,omitempty"`
}

// EncodeRecord converts a MeetingRecord into the generic map[string]interface{}
// shape ports.Record operates on, round-tripping through JSON so the same
// field names/omitempty rules the record store persists are honored.
func EncodeRecord(rec *MeetingRecord) (map[string]interface{}, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal record: %w", err)
	}
	var item map[string]interface{}
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("pipeline: unmarshal record to map: %w", err)
	}
	return item, nil
}

// DecodeRecord converts a generic record-store item back into a MeetingRecord.
func DecodeRecord(item map[string]interface{}) (*MeetingRecord, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal item: %w", err)
	}
	var rec MeetingRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("pipeline: unmarshal item to record: %w", err)
	}
	return &rec, nil
}

// GlossaryTerm is a read-only domain term injected into report-stage prompts.
type GlossaryTerm struct {
	TermID     string   `json:"termId" dynamodbav:"termId"`
	Term       string   `json:"term" dynamodbav:"term"`
	Aliases    []string `json:"aliases,omitempty" dynamodbav:"aliases,omitempty"`
	Definition string   `json:"definition" dynamodbav:"definition"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// NewJob is the transcription-queue message. It covers both the internal
// shape (produced by the upload collaborator or the retry contract) and
// the external bucket-notification envelope; Normalize reconciles the two.
type NewJob struct {
	MeetingID   string      `json:"meetingId,omitempty"`
	S3Key       string      `json:"s3Key,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	MeetingType MeetingType `json:"meetingType,omitempty"`
	CreatedAt   *time.Time  `json:"createdAt,omitempty"`

	// Records carries the external bucket-notification envelope shape:
	// {"Records":[{"s3":{"object":{"key": "..."}}}]}
	Records []struct {
		S3 struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records,omitempty"`
}

// IsExternal reports whether this message is a raw bucket-notification
// envelope rather than an internally produced NewJob.
func (j *NewJob) IsExternal() bool {
	return j.MeetingID == "" && len(j.Records) > 0
}

// ErrNoS3Key is returned by Normalize when neither shape carries a key.
var ErrNoS3Key = errors.New("pipeline: message carries no s3 key")

// Normalize resolves the two NewJob shapes into a single internal
// representation, synthesizing MeetingID and MeetingType for external
// notifications per spec §3.
func (j *NewJob) Normalize(now time.Time) error {
	if j.IsExternal() {
		key := j.Records[0].S3.Object.Key
		if key == "" {
			return ErrNoS3Key
		}
		j.S3Key = key
		j.Filename = baseName(key)
		j.MeetingID = "meeting-" + formatEpochMillis(now)
		j.MeetingType = classifyByFilenamePrefix(j.Filename)
		return nil
	}
	if j.S3Key == "" {
		return ErrNoS3Key
	}
	if j.MeetingType == "" {
		j.MeetingType = MeetingGeneral
	}
	return nil
}

// TranscribeDone is the report-queue message produced by the transcription
// stage. Track keys are empty strings (never omitted/null) when a track
// did not produce an artifact, matching spec §3.
type TranscribeDone struct {
	MeetingID     string      `json:"meetingId"`
	CreatedAt     time.Time   `json:"createdAt"`
	TranscribeKey string      `json:"transcribeKey"`
	WhisperKey    string      `json:"whisperKey"`
	FunasrKey     string      `json:"funasrKey"`
	MeetingType   MeetingType `json:"meetingType"`
}

// ReportDone is the export-queue message produced by the report stage.
type ReportDone struct {
	MeetingID   string    `json:"meetingId"`
	CreatedAt   time.Time `json:"createdAt"`
	ReportKey   string    `json:"reportKey"`
	MeetingName string    `json:"meetingName,omitempty"`
}
