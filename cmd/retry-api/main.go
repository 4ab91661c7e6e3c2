// Command retry-api exposes the retry contract (spec §4.5) over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/bootstrap"
	"github.com/ILLUVRSE/meeting-minutes/internal/config"
	"github.com/ILLUVRSE/meeting-minutes/internal/retry"
	"github.com/ILLUVRSE/meeting-minutes/internal/tlsutil"
)

func main() {
	logger := zap.NewNop()
	if l, err := zap.NewProduction(); err == nil {
		logger = l
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.LoadFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aws, err := bootstrap.NewAWS(ctx, cfg)
	if err != nil {
		log.Fatalf("[retry-api] %v", err)
	}

	outbox, err := bootstrap.NewOutbox(ctx, cfg, aws.S3, sugar)
	if err != nil {
		log.Fatalf("[retry-api] %v", err)
	}
	defer outbox.Stop()

	handler := retry.New(aws.Record, aws.Queue, outbox.Recorder, sugar, cfg.SQSTranscriptionQueue)

	r := chi.NewRouter()
	handler.Routes(r)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.HealthAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.RetryTLSEnabled() {
		tlsCfg, err := tlsutil.NewServerConfig(cfg.RetryTLSCertFile, cfg.RetryTLSKeyFile, cfg.RetryTLSClientCAFile, cfg.RetryTLSRequireClientCert)
		if err != nil {
			log.Fatalf("[retry-api] %v", err)
		}
		srv.TLSConfig = tlsCfg
	}

	go func() {
		sugar.Infow("retry-api listening", "addr", cfg.HealthAddr, "tls", cfg.RetryTLSEnabled())
		var err error
		if cfg.RetryTLSEnabled() {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("[retry-api] server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("shutdown error", "error", err)
	}
	cancel()
}
