// Package storage reads raw provider-response snapshots from S3. Snapshots
// are JSON dumps written by earlier collection jobs; cmd/import loads them
// into the cache tables.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/chasquifx/chasquifx-cache/internal/config"
)

// Archive is the snapshot source the importer reads from; *SnapshotArchive
// satisfies it, tests use in-memory fakes.
type Archive interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type SnapshotArchive struct {
	client *s3.S3
	bucket string
}

func NewSnapshotArchive(cfg *config.Config) *SnapshotArchive {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &SnapshotArchive{
		client: s3.New(sess),
		bucket: cfg.S3Bucket,
	}
}

// List returns the object keys under prefix, following pagination.
func (a *SnapshotArchive) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}

	err := a.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list failed: %w", err)
	}
	return keys, nil
}

func (a *SnapshotArchive) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read failed: %w", err)
	}
	return content, nil
}
