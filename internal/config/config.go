// Package config provides the environment-backed configuration loader
// shared by the three stage workers and the retry API, in the same shape
// as kernel/internal/config and ai-infra/internal/config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
)

// Config holds every runtime value named in spec §6's Configuration table,
// plus the added-adapter values (event outbox, LLM credentials) from
// SPEC_FULL.md §10.
type Config struct {
	AWSRegion string

	S3Bucket string
	S3Prefix string

	DynamoDBTable  string
	GlossaryTable  string

	SQSTranscriptionQueue string
	SQSReportQueue        string
	SQSExportQueue        string

	EnableTranscribe bool
	EnableWhisper    bool
	WhisperURL       string
	FunASRURL        string

	SESFromEmail string
	SESToEmail   string

	AnthropicAPIKey    string
	AnthropicModel     string
	LLMMaxOutputTokens int

	// Stage-transition outbox (optional; disabled unless all three are set).
	EventOutboxDatabaseURL string
	KafkaBrokers           []string
	KafkaTopic             string

	PollWaitSeconds   int32
	PollEmptySleep    int
	TranscribePollSec int
	TranscribePollMax int

	HealthAddr string

	// Optional TLS for the retry API's HTTP server; unset means plain HTTP.
	RetryTLSCertFile         string
	RetryTLSKeyFile          string
	RetryTLSClientCAFile     string
	RetryTLSRequireClientCert bool
}

// LoadFromEnv reads config values from the environment. It does not
// validate cross-field invariants (e.g. "at least one ASR track enabled");
// callers check those at startup, mirroring ai-infra's enforceProdGuardrails.
func LoadFromEnv() *Config {
	cfg := &Config{
		AWSRegion: os.Getenv("AWS_REGION"),

		S3Bucket: os.Getenv("S3_BUCKET"),
		S3Prefix: os.Getenv("S3_PREFIX"),

		DynamoDBTable: os.Getenv("DYNAMODB_TABLE"),
		GlossaryTable: os.Getenv("GLOSSARY_TABLE"),

		SQSTranscriptionQueue: os.Getenv("SQS_TRANSCRIPTION_QUEUE"),
		SQSReportQueue:        os.Getenv("SQS_REPORT_QUEUE"),
		SQSExportQueue:        os.Getenv("SQS_EXPORT_QUEUE"),

		WhisperURL: os.Getenv("WHISPER_URL"),
		FunASRURL:  os.Getenv("FUNASR_URL"),

		SESFromEmail: os.Getenv("SES_FROM_EMAIL"),
		SESToEmail:   os.Getenv("SES_TO_EMAIL"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-opus-4-1"),

		EventOutboxDatabaseURL: firstNonEmpty(os.Getenv("EVENT_OUTBOX_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaTopic:             os.Getenv("KAFKA_TOPIC"),

		HealthAddr: getEnv("HEALTH_ADDR", ":8080"),

		RetryTLSCertFile:     os.Getenv("RETRY_TLS_CERT_FILE"),
		RetryTLSKeyFile:      os.Getenv("RETRY_TLS_KEY_FILE"),
		RetryTLSClientCAFile: os.Getenv("RETRY_TLS_CLIENT_CA_FILE"),
	}

	cfg.RetryTLSRequireClientCert = getBool("RETRY_TLS_REQUIRE_CLIENT_CERT", false)

	cfg.EnableTranscribe = getBool("ENABLE_TRANSCRIBE", false)
	cfg.EnableWhisper = getBool("ENABLE_WHISPER", false)

	cfg.LLMMaxOutputTokens = getInt("LLM_MAX_OUTPUT_TOKENS", 16000)

	cfg.PollWaitSeconds = int32(getInt("SQS_WAIT_SECONDS", 20))
	cfg.PollEmptySleep = getInt("POLL_EMPTY_SLEEP_SECONDS", 5)
	cfg.TranscribePollSec = getInt("TRANSCRIBE_POLL_INTERVAL_SECONDS", 10)
	cfg.TranscribePollMax = getInt("TRANSCRIBE_POLL_MAX_ATTEMPTS", 180)

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

// EventOutboxEnabled reports whether the stage-transition outbox has
// enough configuration to start, mirroring cmd/kernel/main.go's gating of
// the audit streamer on KAFKA_BROKERS/KAFKA_TOPIC/S3_BUCKET.
func (c *Config) EventOutboxEnabled() bool {
	return c.EventOutboxDatabaseURL != "" && len(c.KafkaBrokers) > 0 && c.KafkaTopic != "" && c.S3Bucket != ""
}

// RetryTLSEnabled reports whether the retry API should terminate TLS
// itself rather than rely on a fronting load balancer.
func (c *Config) RetryTLSEnabled() bool {
	return c.RetryTLSCertFile != "" && c.RetryTLSKeyFile != ""
}

// ValidateTracks enforces spec §4.2's configuration invariant: at least
// one ASR track must be enabled.
func (c *Config) ValidateTracks() error {
	if !c.EnableTranscribe && !c.EnableWhisper && c.FunASRURL == "" {
		return fmt.Errorf("config: at least one of ENABLE_TRANSCRIBE, ENABLE_WHISPER, FUNASR_URL must be set: %w", pipeline.ErrNoTracksEnabled)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
