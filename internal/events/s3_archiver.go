package events

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ILLUVRSE/meeting-minutes/internal/canonical"
)

// Archiver uploads a canonical transition snapshot to object storage.
type Archiver interface {
	ArchiveTransition(ctx context.Context, tr *Transition) error
}

// S3Archiver writes canonicalized transitions to S3 paths like:
//
//	s3://<bucket>/<prefix>/transitions/YYYY/MM/DD/<id>.json
//
// Adapted directly from kernel/internal/audit/s3_archiver.go.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

func NewS3Archiver(client *s3.Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: manager.NewUploader(client)}
}

func (a *S3Archiver) objectKey(tr *Transition) string {
	ts := time.Now().UTC()
	if !tr.Ts.IsZero() {
		ts = tr.Ts
	}
	year, month, day := ts.Date()
	return path.Join(a.prefix, "transitions",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", tr.ID),
	)
}

func (a *S3Archiver) ArchiveTransition(ctx context.Context, tr *Transition) error {
	_, err := a.ArchiveTransitionAndReturnKey(ctx, tr)
	return err
}

// ArchiveTransitionAndReturnKey canonicalizes the transition envelope,
// uploads it, and returns the object key so the caller can persist the
// S3 pointer.
func (a *S3Archiver) ArchiveTransitionAndReturnKey(ctx context.Context, tr *Transition) (string, error) {
	if tr == nil {
		return "", fmt.Errorf("events: nil transition")
	}

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
		return "", fmt.Errorf("events: canonicalize envelope: %w", err)
	}

	key := a.objectKey(tr)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(canonBytes),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("events: s3 upload failed: %w", err)
	}
	return key, nil
}
