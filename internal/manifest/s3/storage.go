package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
	"github.com/project-ncl/sbomer-sub004/internal/manifest"
)

var _ manifest.Storage = (*Storage)(nil)

var ErrManifestTooLarge = errors.New("manifest too large")

const contentTypeJSON = "application/json"

type Storage struct {
	client *s3.Client
	bucket string

	// uploadPartSize should be greater than or equal 5MB.
	// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
	uploadPartSize int
}

func NewStorage(client *s3.Client, bucket string) *Storage {
	return &Storage{
		client:         client,
		bucket:         bucket,
		uploadPartSize: 10 * 1024 * 1024, // 10MB
	}
}

// Key returns the object key of m.
func Key(m *generation.Manifest) string {
	return path.Join("generations", m.GenerationID.String(), m.ID.String()+".json")
}

// UploadManifest implements manifest.Storage.
func (s *Storage) UploadManifest(ctx context.Context, m *generation.Manifest) error {
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = int64(s.uploadPartSize)
	})

	key := Key(m)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(m.Content),
		ContentType: aws.String(contentTypeJSON),
		Metadata: map[string]string{
			"generation-id": m.GenerationID.String(),
			"source-path":   m.SourcePath,
		},
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			err = errors.Join(ErrManifestTooLarge, err)
		}
		return fmt.Errorf("s3.Storage: %w", err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, time.Minute)
	if err != nil {
		return fmt.Errorf("s3.Storage: %w", err)
	}

	return nil
}
