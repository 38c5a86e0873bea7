package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/foxxcyber/voicecart/internal/models"
)

const archivePrefix = "archives"

// ArchiveStorage keeps list archives as JSON objects on S3-compatible storage
type ArchiveStorage struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewArchiveStorage creates a new S3 archive store
func NewArchiveStorage(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*ArchiveStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &ArchiveStorage{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ArchiveStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// SaveArchive uploads one archive as archives/<user>/<id>.json
func (s *ArchiveStorage) SaveArchive(ctx context.Context, a models.Archive) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucketName, archiveKey(a.UserID, a.ID), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}
	return nil
}

// ListArchives downloads every archive of a user, newest first
func (s *ArchiveStorage) ListArchives(ctx context.Context, userID string) ([]models.Archive, error) {
	prefix := path.Join(archivePrefix, userID) + "/"

	var out []models.Archive
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		a, err := s.download(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.After(out[j].ArchivedAt) })
	return out, nil
}

// ArchiveURL generates a presigned download URL for one archive
func (s *ArchiveStorage) ArchiveURL(ctx context.Context, userID, id string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, archiveKey(userID, id), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

func (s *ArchiveStorage) download(ctx context.Context, key string) (models.Archive, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return models.Archive{}, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return models.Archive{}, fmt.Errorf("failed to read archive %s: %w", key, err)
	}
	var a models.Archive
	if err := json.Unmarshal(raw, &a); err != nil {
		return models.Archive{}, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return a, nil
}

func archiveKey(userID, id string) string {
	return path.Join(archivePrefix, userID, id+".json")
}
