// Package httpasr implements the Whisper and FunASR HTTP ASR back-ends
// (spec §6) behind ports.ASRTrack. It is adapted from
// ai-infra/internal/sentinel/http_client.go's shape: a configurable base
// URL/path and a per-call timeout — extended with the 5s health probe, a
// circuit breaker around the transcription POST, and the hard 30-minute
// cancellation window spec §5 requires. A failed POST is not retried, and
// the raw response body is stored as-is rather than decoded.
package httpasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

const (
	healthTimeout  = 5 * time.Second
	postCancelWait = 30 * time.Minute
)

// Config configures one HTTP ASR track.
type Config struct {
	Name       string // "whisper" or "funasr"
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
}

// Track implements ports.ASRTrack for an HTTP-based ASR back-end that
// exposes POST /asr and GET /health.
type Track struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.SugaredLogger
	breaker *gobreaker.CircuitBreaker

	// storeResult persists the raw response body to the blob store under
	// the per-job key and returns the stored key; set by callers
	// (transcription stage) since the blob namespace (meetingId, bucket
	// prefix) is stage-owned, not adapter-owned.
	storeResult func(ctx context.Context, meetingID string, body []byte) (string, error)

	// buildRequestBody builds the POST payload for this track (s3_key,
	// s3_bucket, and for FunASR a language hint).
	buildRequestBody func(meetingID, s3Key string) ([]byte, error)
}

// NewTrack constructs an HTTP ASR track. storeResult persists the raw
// response to the blob store; buildRequestBody shapes the POST body for
// Whisper vs FunASR (they differ only in an extra "language" field).
func NewTrack(cfg Config, storeResult func(ctx context.Context, meetingID string, body []byte) (string, error), buildRequestBody func(meetingID, s3Key string) ([]byte, error)) *Track {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: postCancelWait}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Track{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
		storeResult:      storeResult,
		buildRequestBody: buildRequestBody,
	}
}

func (t *Track) Name() string { return t.name }

func (t *Track) Enabled() bool { return t.baseURL != "" }

// Run health-probes the back-end (5s timeout); if unreachable it returns
// a zero ASRResult with no error (spec §4.2 step 4: "if down, skip").
// Otherwise it POSTs the job, bounded by a 30-minute cancellation handle
// cleared on both success and failure, and stores the returned JSON.
func (t *Track) Run(ctx context.Context, meetingID string, s3Key string) (ports.ASRResult, error) {
	if !t.Enabled() {
		return ports.ASRResult{}, nil
	}

	if !t.healthy(ctx) {
		t.logger.Warnw("asr track unhealthy, skipping", "track", t.name)
		return ports.ASRResult{}, nil
	}

	body, err := t.buildRequestBody(meetingID, s3Key)
	if err != nil {
		return ports.ASRResult{}, fmt.Errorf("httpasr[%s]: build request: %w", t.name, err)
	}

	postCtx, cancel := context.WithTimeout(ctx, postCancelWait)
	defer cancel()

	respBody, err := t.post(postCtx, body)
	if err != nil {
		return ports.ASRResult{}, fmt.Errorf("httpasr[%s]: %w", t.name, err)
	}

	key, err := t.storeResult(ctx, meetingID, respBody)
	if err != nil {
		return ports.ASRResult{}, fmt.Errorf("httpasr[%s]: store result: %w", t.name, err)
	}
	return ports.ASRResult{BlobKey: key}, nil
}

func (t *Track) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (t *Track) post(ctx context.Context, body []byte) ([]byte, error) {
	result, err := t.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/asr", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("non-2xx response %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// WhisperRequestBody builds {"s3_key":..., "s3_bucket":...}.
func WhisperRequestBody(bucket string) func(meetingID, s3Key string) ([]byte, error) {
	return func(meetingID, s3Key string) ([]byte, error) {
		return json.Marshal(map[string]string{"s3_key": s3Key, "s3_bucket": bucket})
	}
}

// FunASRRequestBody builds {"s3_key":..., "s3_bucket":..., "language":...}.
func FunASRRequestBody(bucket, language string) func(meetingID, s3Key string) ([]byte, error) {
	return func(meetingID, s3Key string) ([]byte, error) {
		return json.Marshal(map[string]string{"s3_key": s3Key, "s3_bucket": bucket, "language": language})
	}
}
