// Package bootstrap collects the AWS SDK client construction and
// stage-transition-outbox wiring shared by all four cmd/ entrypoints, so
// each main.go only has to call one function before wiring its own
// stage-specific worker.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/blobstore"
	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/recordstore"
	"github.com/ILLUVRSE/meeting-minutes/internal/adapters/sqsqueue"
	"github.com/ILLUVRSE/meeting-minutes/internal/config"
	"github.com/ILLUVRSE/meeting-minutes/internal/events"
)

// AWS bundles the concrete AWS-backed port adapters every stage worker
// needs; it's a thin struct, not a DI container, built once in main and
// passed down.
type AWS struct {
	S3         *s3.Client
	DynamoDB   *dynamodb.Client
	SQS        *sqs.Client
	SESv2      *sesv2.Client
	Transcribe *transcribe.Client

	Blob   *blobstore.Store
	Record *recordstore.Store
	Queue  *sqsqueue.Queue
}

// NewAWS loads the default AWS config (region, credentials chain) and
// constructs every service client and port adapter this pipeline uses.
func NewAWS(ctx context.Context, cfg *config.Config) (*AWS, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}

	a := &AWS{
		S3:         s3.NewFromConfig(awsCfg),
		DynamoDB:   dynamodb.NewFromConfig(awsCfg),
		SQS:        sqs.NewFromConfig(awsCfg),
		SESv2:      sesv2.NewFromConfig(awsCfg),
		Transcribe: transcribe.NewFromConfig(awsCfg),
	}
	a.Blob = blobstore.New(a.S3, cfg.S3Bucket, cfg.S3Prefix)
	a.Record = recordstore.New(a.DynamoDB, cfg.DynamoDBTable, cfg.GlossaryTable)
	a.Queue = sqsqueue.New(a.SQS)
	return a, nil
}

// Outbox bundles the stage-transition outbox's running pieces so main can
// close/cancel them on shutdown; Recorder is events.NopRecorder{} when
// the outbox is disabled.
type Outbox struct {
	DB       *sql.DB
	Recorder events.Recorder
	Stop     func()
}

// NewOutbox wires the stage-transition outbox per
// config.Config.EventOutboxEnabled, mirroring cmd/kernel/main.go's gating
// of the audit streamer on DB + Kafka + S3 all being configured. When
// disabled, Recorder is a no-op and Stop is a no-op.
func NewOutbox(ctx context.Context, cfg *config.Config, s3Client *s3.Client, logger *zap.SugaredLogger) (*Outbox, error) {
	if !cfg.EventOutboxEnabled() {
		logger.Info("stage-transition outbox disabled: EVENT_OUTBOX_DATABASE_URL/KAFKA_BROKERS/KAFKA_TOPIC/S3_BUCKET not all set")
		return &Outbox{Recorder: events.NopRecorder{}, Stop: func() {}}, nil
	}

	db, err := sql.Open("postgres", cfg.EventOutboxDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open outbox postgres: %w", err)
	}
	pgStore := events.NewPGStore(db)
	if err := pgStore.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap: ping outbox postgres: %w", err)
	}

	producer, err := events.NewKafkaProducer(events.KafkaProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap: kafka producer: %w", err)
	}

	archiver := events.NewS3Archiver(s3Client, cfg.S3Bucket, cfg.S3Prefix)

	streamer := events.NewStreamer(pgStore, producer, archiver, events.StreamerConfig{}, logger)
	streamCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := streamer.Run(streamCtx); err != nil && err != context.Canceled {
			logger.Warnw("stage-transition outbox streamer exited", "error", err)
		}
	}()

	recorder := events.NewPGRecorder(pgStore, logger)
	stop := func() {
		cancel()
		_ = producer.Close()
		_ = db.Close()
	}
	return &Outbox{DB: db, Recorder: recorder, Stop: stop}, nil
}
