package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/transcribeasr"
	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

const (
	awsLabel     = "[AWS Transcribe 转录]"
	whisperLabel = "[Whisper 转录]"
	funasrLabel  = "[FunASR 转录（含说话人标签）]"

	trackTruncateLimit = 60000
	singleTruncateLimit = 120000
)

// fetchResult is the outcome of fetching and decoding one track's blob.
type fetchResult struct {
	text string
	err  error
}

// fetchTrack starts a blob Get + decode for one track; the caller is
// responsible for launching this as a goroutine *before* joining results —
// spec §9's "await inside allSettled" fix applies here exactly as it does
// in the transcription stage's ASR fan-out.
func fetchTrack(ctx context.Context, blob ports.Blob, key string, isAWSTranscribe bool) fetchResult {
	if key == "" {
		return fetchResult{}
	}
	rc, err := blob.Get(ctx, key)
	if err != nil {
		return fetchResult{err: fmt.Errorf("fetch %s: %w", key, err)}
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return fetchResult{err: fmt.Errorf("read %s: %w", key, err)}
	}

	if isAWSTranscribe {
		text, err := transcribeasr.ExtractText(body)
		if err != nil {
			// Not valid AWS Transcribe JSON; treat the raw payload as text
			// per spec §4.3 step 3.
			return fetchResult{text: string(body)}
		}
		return fetchResult{text: text}
	}

	var whisperResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &whisperResp); err == nil && whisperResp.Text != "" {
		return fetchResult{text: whisperResp.Text}
	}
	return fetchResult{text: string(body)}
}

type funasrSegment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type funasrResponse struct {
	Segments []funasrSegment `json:"segments"`
	Text     string          `json:"text,omitempty"`
}

// fetchFunASR fetches and coalesces adjacent same-speaker segments into
// "[<speaker>] <text>" lines, per spec §4.3 step 3.
func fetchFunASR(ctx context.Context, blob ports.Blob, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	rc, err := blob.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch funasr %s: %w", key, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read funasr %s: %w", key, err)
	}

	var resp funasrResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Segments) == 0 {
		return resp.Text, nil
	}

	var lines []string
	var curSpeaker, curText string
	flush := func() {
		if curText != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s", curSpeaker, strings.TrimSpace(curText)))
		}
	}
	for _, seg := range resp.Segments {
		if seg.Speaker == curSpeaker {
			curText += " " + seg.Text
			continue
		}
		flush()
		curSpeaker = seg.Speaker
		curText = seg.Text
	}
	flush()

	return strings.Join(lines, "\n"), nil
}

// AssembleTranscript implements spec §4.3 steps 3-4: fetch present
// sources concurrently, label and concatenate them, then truncate under
// one of three modes.
func AssembleTranscript(ctx context.Context, blob ports.Blob, transcribeKey, whisperKey, funasrKey string) (string, error) {
	type result struct {
		text string
		err  error
	}

	awsCh := make(chan result, 1)
	whisperCh := make(chan result, 1)
	funasrCh := make(chan result, 1)

	go func() {
		r := fetchTrack(ctx, blob, transcribeKey, true)
		awsCh <- result{text: r.text, err: r.err}
	}()
	go func() {
		r := fetchTrack(ctx, blob, whisperKey, false)
		whisperCh <- result{text: r.text, err: r.err}
	}()
	go func() {
		text, err := fetchFunASR(ctx, blob, funasrKey)
		funasrCh <- result{text: text, err: err}
	}()

	awsRes, whisperRes, funasrRes := <-awsCh, <-whisperCh, <-funasrCh

	var awsText, whisperText, funasrText string
	if transcribeKey != "" && awsRes.err == nil {
		awsText = awsRes.text
	}
	if whisperKey != "" && whisperRes.err == nil {
		whisperText = whisperRes.text
	}
	if funasrKey != "" && funasrRes.err == nil {
		funasrText = funasrRes.text
	}

	var awsWhisperBlock string
	switch {
	case awsText != "" && whisperText != "":
		awsWhisperBlock = fmt.Sprintf("%s\n%s\n\n%s\n%s", awsLabel, awsText, whisperLabel, whisperText)
	case awsText != "":
		awsWhisperBlock = awsText
	case whisperText != "":
		awsWhisperBlock = whisperText
	}

	var funasrBlock string
	if funasrText != "" {
		funasrBlock = fmt.Sprintf("%s\n%s", funasrLabel, truncate(funasrText, trackTruncateLimit))
	}

	var parts []string
	if awsWhisperBlock != "" {
		parts = append(parts, awsWhisperBlock)
	}
	if funasrBlock != "" {
		parts = append(parts, funasrBlock)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("report: %w", pipeline.ErrAllSourcesFailed)
	}

	final := strings.Join(parts, "\n\n")
	return applyTruncation(final, awsText != "" && whisperText != "", funasrText != "" && awsWhisperBlock == ""), nil
}

// applyTruncation implements spec §4.3 step 4's three modes. full already
// has the FunASR block truncated to 60k by AssembleTranscript; this pass
// handles the AWS+Whisper dual-label split and the single/other whole-
// string cap.
func applyTruncation(full string, dual bool, funasrOnly bool) string {
	if funasrOnly {
		return full
	}
	if dual {
		idx := strings.Index(full, whisperLabel)
		if idx < 0 {
			return truncate(full, singleTruncateLimit)
		}
		awsSide := full[:idx]
		whisperSide := full[idx:]
		return truncate(awsSide, trackTruncateLimit) + truncate(whisperSide, trackTruncateLimit)
	}
	return truncate(full, singleTruncateLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
