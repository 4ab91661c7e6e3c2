// Command transcription-worker runs the transcription stage (spec §4.2):
// it polls the transcription queue, fans out to up to three ASR tracks,
// and enqueues the report stage.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/httpasr"
	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/transcribeasr"
	"github.com/ILLUVRSE/meeting-minutes/internal/bootstrap"
	"github.com/ILLUVRSE/meeting-minutes/internal/config"
	"github.com/ILLUVRSE/meeting-minutes/internal/metrics"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
	"github.com/ILLUVRSE/meeting-minutes/internal/stage"
	"github.com/ILLUVRSE/meeting-minutes/internal/transcription"
)

func main() {
	logger := zap.NewNop()
	if l, err := zap.NewProduction(); err == nil {
		logger = l
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.LoadFromEnv()
	if err := cfg.ValidateTracks(); err != nil {
		log.Fatalf("[transcription-worker] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aws, err := bootstrap.NewAWS(ctx, cfg)
	if err != nil {
		log.Fatalf("[transcription-worker] %v", err)
	}

	outbox, err := bootstrap.NewOutbox(ctx, cfg, aws.S3, sugar)
	if err != nil {
		log.Fatalf("[transcription-worker] %v", err)
	}
	defer outbox.Stop()

	tracks := buildTracks(cfg, aws, sugar)

	worker := transcription.New(aws.Record, aws.Blob, aws.Queue, tracks, outbox.Recorder, sugar, cfg.SQSReportQueue)

	controller := &stage.Controller{
		Queue:     aws.Queue,
		Processor: worker,
		Logger:    sugar,
		Metrics:   metrics.NewStage(nil, "transcription"),
		Config: stage.Config{
			QueueURL:    cfg.SQSTranscriptionQueue,
			WaitSeconds: cfg.PollWaitSeconds,
			EmptySleep:  time.Duration(cfg.PollEmptySleep) * time.Second,
		},
	}

	go controller.Run(ctx)
	go serveHealth(cfg.HealthAddr, sugar)

	waitForShutdown(sugar, cancel)
}

// buildTracks constructs the up-to-three ports.ASRTrack implementations
// spec §4.2 names, each writing its stored artifact under
// transcripts/<meetingId>/<track>.json.
func buildTracks(cfg *config.Config, a *bootstrap.AWS, logger *zap.SugaredLogger) []ports.ASRTrack {
	storeResult := func(name string) func(ctx context.Context, meetingID string, body []byte) (string, error) {
		return func(ctx context.Context, meetingID string, body []byte) (string, error) {
			key := fmt.Sprintf("transcripts/%s/%s.json", meetingID, name)
			return a.Blob.Put(ctx, key, body, "application/json")
		}
	}

	var tracks []ports.ASRTrack

	if cfg.EnableTranscribe {
		tracks = append(tracks, transcribeasr.New(a.Transcribe, cfg.S3Bucket, storeResult("transcribe"), logger))
	} else {
		tracks = append(tracks, transcribeasr.New(nil, cfg.S3Bucket, storeResult("transcribe"), logger))
	}

	whisperURL := ""
	if cfg.EnableWhisper {
		whisperURL = cfg.WhisperURL
	}
	tracks = append(tracks, httpasr.NewTrack(
		httpasr.Config{Name: "whisper", BaseURL: whisperURL, Logger: logger},
		storeResult("whisper"),
		httpasr.WhisperRequestBody(cfg.S3Bucket),
	))

	tracks = append(tracks, httpasr.NewTrack(
		httpasr.Config{Name: "funasr", BaseURL: cfg.FunASRURL, Logger: logger},
		storeResult("funasr"),
		httpasr.FunASRRequestBody(cfg.S3Bucket, "zh"),
	))

	return tracks
}

func serveHealth(addr string, logger *zap.SugaredLogger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	logger.Infow("health endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Errorw("health endpoint failed", "error", err)
	}
}

func waitForShutdown(logger *zap.SugaredLogger, cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
