package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chandan989/StrideOn/server/game"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver stores the final state of ended sessions
type Archiver interface {
	Archive(ctx context.Context, sum game.Summary) error
}

// SessionArchive is the archived document
type SessionArchive struct {
	Summary game.Summary `json:"summary"`
	Final   *game.State  `json:"final"`
}

// NewArchiver returns a MinIO archiver, or a no-op one without an endpoint.
func NewArchiver(cfg ArchiveConfig) (Archiver, error) {
	if cfg.Endpoint == "" {
		return nopArchiver{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &minioArchiver{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

type minioArchiver struct {
	client *minio.Client
	bucket string
	region string

	mu      sync.Mutex
	ensured bool
}

// ensureBucket creates the bucket the first time it is needed.
func (a *minioArchiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ensured {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	}
	a.ensured = true
	return nil
}

// Archive writes sessions/<id>.json.
func (a *minioArchiver) Archive(ctx context.Context, sum game.Summary) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(SessionArchive{Summary: sum, Final: sum.Final})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, archiveKey(sum.Session), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", archiveKey(sum.Session), err)
	}
	return nil
}

func archiveKey(sessionID string) string {
	return "sessions/" + sessionID + ".json"
}

type nopArchiver struct{}

func (nopArchiver) Archive(context.Context, game.Summary) error { return nil }
