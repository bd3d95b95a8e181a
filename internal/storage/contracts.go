// Package storage keeps customers' contract documents in a MinIO bucket,
// one prefix per external id.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/seguralta/portal/internal/config"
)

// ErrInvalidName is returned for document names that would escape the
// owner's prefix.
var ErrInvalidName = errors.New("storage: invalid document name")

// Contract is one stored document.
type Contract struct {
	Name         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ContractStore is a thin wrapper around the minio client.
type ContractStore struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// NewContractStore creates the MinIO client and ensures the bucket exists.
func NewContractStore(ctx context.Context, cfg config.StorageConfig) (*ContractStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := newContractStore(mc, cfg.Bucket, cfg.PresignTTL)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func newContractStore(mc *minio.Client, bucket string, ttl time.Duration) *ContractStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ContractStore{client: mc, bucket: bucket, presignTTL: ttl}
}

func ownerPrefix(externalID string) string {
	return externalID + "/"
}

// objectKey joins owner and name, rejecting names with path segments.
func objectKey(externalID, name string) (string, error) {
	if externalID == "" || strings.Contains(externalID, "/") {
		return "", ErrInvalidName
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") || path.Clean(name) != name {
		return "", ErrInvalidName
	}
	return ownerPrefix(externalID) + name, nil
}

// List returns the owner's documents sorted by name.
func (s *ContractStore) List(ctx context.Context, externalID string) ([]Contract, error) {
	prefix := ownerPrefix(externalID)
	var out []Contract
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, Contract{
			Name:         name,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upload stores a document under the owner's prefix.
func (s *ContractStore) Upload(ctx context.Context, externalID, name string, r io.Reader, size int64, contentType string) error {
	key, err := objectKey(externalID, name)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PresignedURL returns a download link valid for the configured TTL.
func (s *ContractStore) PresignedURL(ctx context.Context, externalID, name string) (string, error) {
	key, err := objectKey(externalID, name)
	if err != nil {
		return "", err
	}
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}

// Ping checks that the bucket is reachable; used by /ready.
func (s *ContractStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}
