package pipeline

import "errors"

// Error-kind taxonomy from spec §7. These are sentinels, not exhaustive
// types: adapters and stage code wrap the underlying cause with
// fmt.Errorf("...: %w", cause) and callers match with errors.Is.
var (
	// ErrValidation covers messages the controller should delete without
	// mutating the record: missing s3Key, ".keep" suffix, duplicate s3Key.
	ErrValidation = errors.New("pipeline: validation error")

	// ErrTransient covers downstream failures expected to succeed on
	// redelivery: queue/blob/record/LLM/ASR errors, network failures.
	ErrTransient = errors.New("pipeline: transient downstream error")

	// ErrPermanent covers failures that will recur on redelivery (bad
	// bucket key, malformed LLM JSON) until a human intervenes via retry.
	ErrPermanent = errors.New("pipeline: permanent downstream error")

	// ErrAllTracksFailed is raised when every enabled ASR track returned
	// no artifact (spec §4.2 step 5).
	ErrAllTracksFailed = errors.New("pipeline: all enabled ASR tracks failed")

	// ErrAllSourcesFailed is raised when the report stage could not
	// assemble any transcript text (spec §4.3 step 3).
	ErrAllSourcesFailed = errors.New("pipeline: all transcript sources failed")

	// ErrNoTracksEnabled is a configuration error caught at startup when
	// Transcribe, Whisper, and FunASR are all disabled (spec §4.2 step 4).
	ErrNoTracksEnabled = errors.New("pipeline: no ASR track enabled")

	// ErrRetryPrecondition is surfaced by the retry contract (spec §4.5)
	// when the record is not currently in status=failed.
	ErrRetryPrecondition = errors.New("pipeline: retry precondition failed")

	// ErrNotFound covers record lookups with no matching item.
	ErrNotFound = errors.New("pipeline: record not found")
)
