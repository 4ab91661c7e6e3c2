// Package stage implements the shared stage-controller loop (spec §4.1)
// used by all three stage workers: long-poll the assigned queue, process
// each message in a failure-isolated scope, delete on success, leave
// undeleted on failure so the queue's visibility timeout redelivers it.
//
// Grounded on ai-infra/internal/runner.RunWorker's poll-sleep-retry shape
// and on kernel/internal/audit.Streamer's per-item failure isolation
// (one item's error never aborts the batch or the loop).
package stage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/metrics"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Processor handles a single queue message body. A non-nil error leaves
// the message undeleted (redelivery via visibility timeout); an error
// wrapping pipeline.ErrValidation (or a nil return) deletes the message
// without further side effects.
type Processor interface {
	ProcessMessage(ctx context.Context, body string) error
}

// FailureHandler is invoked, best-effort, when ProcessMessage returns an
// error. A second failure inside it must never escape — the caller
// swallows it and logs, per spec §4.1/§7.
type FailureHandler func(ctx context.Context, body string, cause error)

// Config tunes the poll loop. Zero values take the spec-recommended
// defaults (N=1, 20s long-poll wait, 5s empty-poll sleep).
type Config struct {
	QueueURL    string
	MaxMessages int32
	WaitSeconds int32
	EmptySleep  time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1
	}
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = 20
	}
	if c.EmptySleep <= 0 {
		c.EmptySleep = 5 * time.Second
	}
}

// Controller is the shared polling loop for one queue.
type Controller struct {
	Queue     ports.Queue
	Processor Processor
	OnFailure FailureHandler
	Logger    *zap.SugaredLogger
	Config    Config

	// Metrics is optional; a nil Metrics disables recording rather than
	// panicking, so tests and callers that don't care about observability
	// can leave it unset.
	Metrics *metrics.Stage
}

// Run blocks, polling Queue.Receive until ctx is cancelled. Shutdown is
// cooperative: the current message is always finished before the loop
// exits.
func (c *Controller) Run(ctx context.Context) {
	c.Config.setDefaults()
	log := c.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.Queue.Receive(ctx, c.Config.QueueURL, c.Config.MaxMessages, c.Config.WaitSeconds)
		if err != nil {
			log.Warnw("stage controller: receive failed", "queue", c.Config.QueueURL, "err", err)
			sleepOrDone(ctx, c.Config.EmptySleep)
			continue
		}

		if len(msgs) == 0 {
			sleepOrDone(ctx, c.Config.EmptySleep)
			continue
		}

		for _, msg := range msgs {
			c.processOne(ctx, msg, log)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// processOne isolates a single message: a processing failure (or a
// recovered panic) never aborts the batch or the loop.
func (c *Controller) processOne(ctx context.Context, msg ports.Message, log *zap.SugaredLogger) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.Metrics.Observe(metrics.OutcomePanic, time.Since(start))
			log.Errorw("stage controller: panic processing message", "recover", r)
			c.runFailureHandler(ctx, msg.Body, panicError{r})
		}
	}()

	err := c.Processor.ProcessMessage(ctx, msg.Body)
	if err == nil || errors.Is(err, pipeline.ErrValidation) {
		// Validation failures (spec §7: no s3Key, .keep suffix, duplicate
		// s3Key) are deleted with no record change, same as success —
		// redelivering a message that will never become valid just wastes
		// the visibility-timeout window.
		if err != nil {
			c.Metrics.Observe(metrics.OutcomeValidation, time.Since(start))
			log.Warnw("stage controller: validation error, deleting message", "err", err)
		} else {
			c.Metrics.Observe(metrics.OutcomeSuccess, time.Since(start))
		}
		if delErr := c.Queue.Delete(ctx, c.Config.QueueURL, msg.ReceiptHandle); delErr != nil {
			log.Warnw("stage controller: delete failed", "err", delErr)
		}
		return
	}

	c.Metrics.Observe(metrics.OutcomeError, time.Since(start))
	log.Errorw("stage controller: process failed, leaving message for redelivery", "err", err)
	c.runFailureHandler(ctx, msg.Body, err)
}

// runFailureHandler calls OnFailure best-effort; any failure inside it is
// logged and swallowed, never propagated (spec §4.1, §7).
func (c *Controller) runFailureHandler(ctx context.Context, body string, cause error) {
	if c.OnFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if c.Logger != nil {
				c.Logger.Errorw("stage controller: failure handler panicked, swallowing", "recover", r)
			}
		}
	}()
	c.OnFailure(ctx, body, cause)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "panic in processor" }
