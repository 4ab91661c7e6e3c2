package events

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/canonical"
)

// Producer is the subset of KafkaProducer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (producedAt time.Time, err error)
	Close() error
}

// StreamerConfig configures the durable DB-first streamer. Same shape as
// kernel/internal/audit's StreamerConfig.
type StreamerConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	MaxConcurrency int
}

// Streamer implements a durable DB-first transition streamer: it claims
// pending rows via PGStore.FetchPendingForStreaming, produces a canonical
// envelope to Kafka, archives it to S3, and marks the row's outcome —
// adapted wholesale from kernel/internal/audit/streamer.go.
type Streamer struct {
	store    *PGStore
	producer Producer
	archiver Archiver
	cfg      StreamerConfig
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup
}

func NewStreamer(store *PGStore, producer Producer, archiver Archiver, cfg StreamerConfig, logger *zap.SugaredLogger) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Streamer{store: store, producer: producer, archiver: archiver, cfg: cfg, logger: logger}
}

// Run polls for claimed transitions and processes them with bounded
// concurrency until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Infow("events streamer starting", "batch", s.cfg.BatchSize, "concurrency", s.cfg.MaxConcurrency)
	defer s.logger.Infow("events streamer stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		transitions, err := s.store.FetchPendingForStreaming(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logger.Errorw("fetch pending transitions", "error", err)
			time.Sleep(s.cfg.PollInterval)
			continue
		}

		if len(transitions) == 0 {
			time.Sleep(s.cfg.PollInterval)
			continue
		}

		for _, tr := range transitions {
			select {
			case <-ctx.Done():
			default:
			}

			sem <- struct{}{}
			s.wg.Add(1)
			go func(tr *Transition) {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processTransition(ctx, tr); err != nil {
					s.logger.Warnw("process transition failed", "id", tr.ID, "error", err)
				}
			}(tr)
		}

		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			sem <- struct{}{}
		}
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			<-sem
		}
	}
}

func (s *Streamer) processTransition(parentCtx context.Context, tr *Transition) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	envelope := map[string]interface{}{
		"id":        tr.ID,
		"meetingId": tr.MeetingID,
		"createdAt": tr.CreatedAt.Format(time.RFC3339Nano),
		"stage":     tr.Stage,
		"status":    tr.Status,
		"detail":    tr.Detail,
		"ts":        tr.Ts.Format(time.RFC3339Nano),
	}
	canonBytes, err := canonical.MarshalCanonical(envelope)
	if err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("canonicalize envelope: %v", err), Valid: true}
		_ = s.store.MarkStreamResult(parentCtx, tr.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("canonicalize envelope: %w", err)
	}

	if _, err := s.producer.Produce(ctx, []byte(tr.MeetingID), canonBytes); err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("kafka produce: %v", err), Valid: true}
		_ = s.store.MarkStreamResult(parentCtx, tr.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("kafka produce: %w", err)
	}

	var archivedKey sql.NullString
	if s3Arch, ok := s.archiver.(*S3Archiver); ok {
		key, err := s3Arch.ArchiveTransitionAndReturnKey(ctx, tr)
		if err != nil {
			errMsg := sql.NullString{String: fmt.Sprintf("s3 archive: %v", err), Valid: true}
			_ = s.store.MarkStreamResult(parentCtx, tr.ID, sql.NullString{}, false, errMsg)
			return fmt.Errorf("s3 archive: %w", err)
		}
		archivedKey = sql.NullString{String: key, Valid: true}
	} else if err := s.archiver.ArchiveTransition(ctx, tr); err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("s3 archive: %v", err), Valid: true}
		_ = s.store.MarkStreamResult(parentCtx, tr.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("s3 archive: %w", err)
	}

	if err := s.store.MarkStreamResult(parentCtx, tr.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark transition stream success: %w", err)
	}
	return nil
}
