// Command report-worker runs the report stage (spec §4.3): it assembles
// the transcript, prompts the LLM for a structured report, and enqueues
// the export stage.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/anthropicllm"
	"github.com/ILLUVRSE/meeting-minutes/internal/bootstrap"
	"github.com/ILLUVRSE/meeting-minutes/internal/config"
	"github.com/ILLUVRSE/meeting-minutes/internal/glossary"
	"github.com/ILLUVRSE/meeting-minutes/internal/metrics"
	"github.com/ILLUVRSE/meeting-minutes/internal/report"
	"github.com/ILLUVRSE/meeting-minutes/internal/stage"
)

func main() {
	logger := zap.NewNop()
	if l, err := zap.NewProduction(); err == nil {
		logger = l
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.LoadFromEnv()
	if cfg.AnthropicAPIKey == "" {
		log.Fatalf("[report-worker] ANTHROPIC_API_KEY is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aws, err := bootstrap.NewAWS(ctx, cfg)
	if err != nil {
		log.Fatalf("[report-worker] %v", err)
	}

	outbox, err := bootstrap.NewOutbox(ctx, cfg, aws.S3, sugar)
	if err != nil {
		log.Fatalf("[report-worker] %v", err)
	}
	defer outbox.Stop()

	llm := anthropicllm.New(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	gloss := glossary.New(aws.Record)

	worker := report.New(aws.Record, aws.Blob, aws.Queue, llm, gloss, outbox.Recorder, sugar, cfg.SQSExportQueue)

	controller := &stage.Controller{
		Queue:     aws.Queue,
		Processor: worker,
		Logger:    sugar,
		Metrics:   metrics.NewStage(nil, "report"),
		Config: stage.Config{
			QueueURL:    cfg.SQSReportQueue,
			WaitSeconds: cfg.PollWaitSeconds,
			EmptySleep:  time.Duration(cfg.PollEmptySleep) * time.Second,
		},
	}

	go controller.Run(ctx)
	go serveHealth(cfg.HealthAddr, sugar)

	waitForShutdown(sugar, cancel)
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
