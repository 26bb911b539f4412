package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Archiver keeps an audit copy of raw webhook payloads.
type Archiver interface {
	Archive(ctx context.Context, evt Event, receivedAt time.Time) error
}

// S3API is the subset of the S3 client used by S3Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each payload under webhooks/v1/by-date/. With no bucket
// it does nothing.
type S3Archiver struct {
	client S3API
	bucket string
	logger *logging.Logger
}

func NewS3Archiver(client S3API, bucket string, logger *logging.Logger) *S3Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Archiver{client: client, bucket: bucket, logger: logger}
}

func (a *S3Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

func (a *S3Archiver) Archive(ctx context.Context, evt Event, receivedAt time.Time) error {
	if !a.Enabled() {
		return nil
	}
	receivedAt = receivedAt.UTC()
	key := fmt.Sprintf("webhooks/v1/by-date/%d/%02d/%02d/%s.json",
		receivedAt.Year(), receivedAt.Month(), receivedAt.Day(), evt.ID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(evt.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type": evt.Type,
		},
	})
	if err != nil {
		return fmt.Errorf("webhooks: s3 put %s: %w", key, err)
	}
	a.logger.Debug("archived webhook payload", "event_id", evt.ID, "s3_key", key)
	return nil
}
