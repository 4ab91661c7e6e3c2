// Package events implements the stage-transition outbox: a durable,
// Postgres-backed claim queue that streams every meeting record's
// stage/status transition to Kafka and archives a canonical JSON
// snapshot to S3. It is adapted wholesale from kernel/internal/audit's
// DB-first claim/stream/archive subsystem, repurposed from signed audit
// events to unsigned stage-transition notifications — this pipeline has
// no tamper-evidence requirement, so the hash-chain and Ed25519 signer
// machinery the teacher built for compliance audit trails is dropped.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Transition is one recorded stage/status change for a meeting record.
type Transition struct {
	ID          string      `json:"id,omitempty"`
	MeetingID   string      `json:"meetingId"`
	CreatedAt   time.Time   `json:"createdAt"`
	Stage       string      `json:"stage"`
	Status      string      `json:"status"`
	Detail      interface{} `json:"detail,omitempty"`
	Ts          time.Time   `json:"ts"`
}

// ErrNotFound is returned when a requested transition cannot be located.
var ErrNotFound = errors.New("not found")

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}
