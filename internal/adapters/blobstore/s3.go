// Package blobstore implements the ports.Blob contract over S3, adapted
// directly from kernel/internal/audit/s3_archiver.go's bucket/prefix
// layout and manager.Uploader usage.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Store implements ports.Blob over S3. All keys passed to Put are joined
// under the configured prefix; Get expects the same, already-prefixed
// key that a prior Put returned.
type Store struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

func New(client *s3.Client, bucket, prefix string) *Store {
	return &Store{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get object %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	fullKey := path.Join(s.prefix, key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(fullKey),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: put object %s: %w", fullKey, err)
	}
	return fullKey, nil
}
