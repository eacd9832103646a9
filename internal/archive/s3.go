// Package archive mirrors published envelopes to object storage for
// long-term retention. Its caller is the outbox publish worker, which
// archives each row after publishing it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ILLUVRSE/eventcore/internal/events"
)

// Archiver uploads one envelope's JSON representation to object storage.
type Archiver interface {
	ArchiveEnvelope(ctx context.Context, env events.Envelope) error
}

// S3Archiver writes envelopes to S3 paths like:
//
//	s3://<bucket>/<prefix>/events/YYYY/MM/DD/<streamID>/<eventID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Credentials/region are resolved
// from the environment by the AWS SDK's default config chain.
func NewS3Archiver(ctx context.Context, bucket string, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("eventcore: archive bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventcore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (a *S3Archiver) objectKey(env events.Envelope) string {
	ts := env.OccurredOn
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, month, day := ts.Date()
	return path.Join(a.prefix, "events",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		env.StreamID.String(),
		fmt.Sprintf("%s.json", env.EventID),
	)
}

// ArchiveEnvelope uploads env's JSON representation to S3. The stored
// object is the full envelope, not just the decoded payload, so the
// archive can be replayed without consulting the event store.
func (a *S3Archiver) ArchiveEnvelope(ctx context.Context, env events.Envelope) error {
	body, err := json.Marshal(archivedEnvelope{
		EventID:       env.EventID,
		EventName:     env.EventName,
		StreamID:      env.StreamID,
		StreamName:    env.StreamName,
		StreamVersion: env.StreamVersion,
		Sequence:      env.Sequence,
		OccurredOn:    env.OccurredOn,
		CausationID:   env.CausationID,
		CorrelationID: env.CorrelationID,
		Payload:       env.Event,
	})
	if err != nil {
		return fmt.Errorf("eventcore: marshal envelope for archive: %w", err)
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(a.objectKey(env)),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("eventcore: s3 archive upload failed: %w", err)
	}
	return nil
}

type archivedEnvelope struct {
	EventID       interface{} `json:"event_id"`
	EventName     string      `json:"event_name"`
	StreamID      interface{} `json:"stream_id"`
	StreamName    string      `json:"stream_name"`
	StreamVersion int64       `json:"stream_version"`
	Sequence      int64       `json:"sequence"`
	OccurredOn    time.Time   `json:"occurred_on"`
	CausationID   string      `json:"causation_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       interface{} `json:"payload"`
}

var _ Archiver = (*S3Archiver)(nil)
