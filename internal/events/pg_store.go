package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PGStore persists stage transitions into Postgres. Adapted from
// kernel/internal/audit/pg_store.go: AppendAuditEvent's hashing/signing
// steps are dropped (no tamper-evidence requirement here), but the
// claim-based streaming support (FetchPendingForStreaming /
// MarkStreamResult) is kept verbatim in shape since it solves the exact
// problem this outbox has — many workers, one Postgres table, at-least-
// once delivery to Kafka/S3 without double-claiming a row.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// AppendTransition inserts a new stage-transition row with stream_status
// 'pending', ready to be claimed by the streamer.
func (p *PGStore) AppendTransition(ctx context.Context, tr *Transition) error {
	if tr.ID == "" {
		tr.ID = NewUUID()
	}
	if tr.Ts.IsZero() {
		tr.Ts = time.Now().UTC()
	}

	detailJSON := []byte("null")
	if tr.Detail != nil {
		b, err := json.Marshal(tr.Detail)
		if err != nil {
			return fmt.Errorf("events: marshal detail: %w", err)
		}
		detailJSON = b
	}

	q := `
		INSERT INTO stage_transitions
		  (id, meeting_id, created_at, stage, status, detail, ts, stream_status, stream_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0)
	`
	_, err := p.db.ExecContext(ctx, q, tr.ID, tr.MeetingID, tr.CreatedAt, tr.Stage, tr.Status, detailJSON, tr.Ts)
	if err != nil {
		return fmt.Errorf("events: insert transition: %w", err)
	}
	return nil
}

// FetchPendingForStreaming selects and claims a batch of pending/retry
// transitions using SELECT ... FOR UPDATE SKIP LOCKED, so multiple
// streamer instances can run concurrently without double-processing a
// row.
func (p *PGStore) FetchPendingForStreaming(ctx context.Context, batchSize int) ([]*Transition, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("events: begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	q := `
		SELECT id, meeting_id, created_at, stage, status, detail, ts
		FROM stage_transitions
		WHERE stream_status IN ('pending','retry')
		ORDER BY ts ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := tx.QueryContext(ctx, q, batchSize)
	if err != nil {
		return nil, fmt.Errorf("events: select pending: %w", err)
	}
	defer rows.Close()

	var ids []string
	var out []*Transition
	for rows.Next() {
		var tr Transition
		var detailBytes []byte
		if err := rows.Scan(&tr.ID, &tr.MeetingID, &tr.CreatedAt, &tr.Stage, &tr.Status, &detailBytes, &tr.Ts); err != nil {
			return nil, fmt.Errorf("events: scan pending row: %w", err)
		}
		if len(detailBytes) > 0 && string(detailBytes) != "null" {
			var detail interface{}
			if err := json.Unmarshal(detailBytes, &detail); err == nil {
				tr.Detail = detail
			}
		}
		out = append(out, &tr)
		ids = append(ids, tr.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: rows err: %w", err)
	}

	if len(ids) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("events: commit empty select: %w", err)
		}
		tx = nil
		return out, nil
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE stage_transitions
			SET stream_status = 'in_progress',
			    stream_attempts = stream_attempts + 1,
			    last_stream_attempt_at = now(),
			    last_stream_error = NULL
			WHERE id = $1
		`, id)
		if err != nil {
			return nil, fmt.Errorf("events: claim transition %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("events: commit claim: %w", err)
	}
	tx = nil
	return out, nil
}

// MarkStreamResult records the outcome of a produce+archive attempt.
func (p *PGStore) MarkStreamResult(ctx context.Context, id string, archivedKey sql.NullString, success bool, errMsg sql.NullString) error {
	const maxStreamAttempts = 5

	if success {
		q := `
			UPDATE stage_transitions
			SET s3_object_key = $1,
			    s3_archived_at = COALESCE(s3_archived_at, now()),
			    kafka_produced_at = COALESCE(kafka_produced_at, now()),
			    last_stream_error = NULL,
			    stream_status = 'complete'
			WHERE id = $2
		`
		_, err := p.db.ExecContext(ctx, q, archivedKey, id)
		if err != nil {
			return fmt.Errorf("events: mark stream success: %w", err)
		}
		return nil
	}

	q := fmt.Sprintf(`
		UPDATE stage_transitions
		SET last_stream_attempt_at = now(),
		    last_stream_error = $1,
		    stream_status = CASE WHEN stream_attempts >= %d THEN 'failed' ELSE 'retry' END
		WHERE id = $2
	`, maxStreamAttempts)
	_, err := p.db.ExecContext(ctx, q, errMsg, id)
	if err != nil {
		return fmt.Errorf("events: mark stream failure: %w", err)
	}
	return nil
}
