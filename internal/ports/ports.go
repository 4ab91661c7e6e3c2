// Package ports declares the abstract external contracts the pipeline core
// depends on (spec §6). Concrete implementations live under
// internal/adapters/*; tests substitute small fakes implementing the same
// interfaces, in the style of kernel/internal/audit/streamer_test.go's
// fakeProducer/fakeArchiver.
package ports

import (
	"context"
	"io"
	"time"
)

// Message is a single received queue message: its body and the receipt
// handle needed to delete it.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Queue is the at-least-once messaging port. Visibility timeout governs
// redelivery; Receive should long-poll when the backend supports it.
type Queue interface {
	Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]Message, error)
	Delete(ctx context.Context, queueURL string, receiptHandle string) error
	Send(ctx context.Context, queueURL string, body string) error
}

// Blob is the object-storage port, keyed by string.
type Blob interface {
	// Get returns the object's content; callers must close the stream.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores bytes at key and returns the full key including any
	// configured bucket prefix.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// QueryInput describes a secondary-index query: equality on the index's
// partition key plus an optional scalar filter on one attribute.
type QueryInput struct {
	IndexName      string
	PartitionKey   string
	PartitionValue string
	FilterAttr     string
	FilterValue    string
	Limit          int32
}

// UpdateInput describes a conditional/unconditional attribute update
// keyed by (meetingID, createdAt).
type UpdateInput struct {
	MeetingID   string
	CreatedAt   time.Time
	Sets        map[string]interface{}
	Removes     []string
	Condition   string // e.g. "status = :expectedStatus"; empty means unconditional
	ConditionOn map[string]interface{}
}

// ConditionFailedError is returned by Record.UpdateMeeting when Condition
// was set and did not hold. The DynamoDB record store also returns it from
// GetMeeting when no item exists for the key.
type ConditionFailedError struct{}

func (ConditionFailedError) Error() string { return "ports: conditional update failed" }

// Record is the keyed-record-store port over MeetingRecord and
// GlossaryTerm: composite primary key (meetingId, createdAt), GSI on
// (status, createdAt).
type Record interface {
	GetMeeting(ctx context.Context, meetingID string, createdAt time.Time) (map[string]interface{}, error)
	PutMeeting(ctx context.Context, item map[string]interface{}) error
	UpdateMeeting(ctx context.Context, in UpdateInput) error
	QueryMeetingsByStatus(ctx context.Context, in QueryInput) ([]map[string]interface{}, error)

	ScanGlossaryTerms(ctx context.Context, pageToken string) (items []map[string]interface{}, nextPageToken string, err error)
}

// ASRResult is what a single ASR track returns: the blob key of its
// output artifact, or an empty key when the track produced nothing
// (disabled, unhealthy) without that being an error.
type ASRResult struct {
	BlobKey string
}

// ASRTrack models one of up to three independent ASR back-ends (spec
// §4.2, §9 "finite and closed polymorphism... tagged variant with a
// common run operation").
type ASRTrack interface {
	Name() string
	Enabled() bool
	// Run transcribes the media at s3Key for meetingID and returns the
	// blob key of the stored transcript, or a zero-value ASRResult (no
	// error) if the track is disabled or unavailable.
	Run(ctx context.Context, meetingID string, s3Key string) (ASRResult, error)
}

// LLM is the prompt-in/JSON-out completion port.
type LLM interface {
	Invoke(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// EmailMessage is a single HTML email to send.
type EmailMessage struct {
	From     string
	To       []string
	Bcc      []string
	Subject  string
	HTMLBody string
}

// Email is the outbound mail port.
type Email interface {
	SendHTML(ctx context.Context, msg EmailMessage) error
}
