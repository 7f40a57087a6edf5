// Package storage brokers access to the S3-compatible object store. Each
// project owns one physical bucket; logical buckets are prefixes inside it.
// Clients never see store credentials — all access goes through presigned
// URLs issued here.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// objectKeyPattern is the restricted character class object keys must match.
var objectKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)

// Broker issues presigned URLs and manages physical bucket lifecycle.
type Broker struct {
	client  *s3.Client
	presign *s3.PresignClient
	store   *store.Store
	expiry  time.Duration
	maxSize int64
	logger  *slog.Logger
}

// NewBroker creates a storage broker. expiry bounds presigned URL lifetime;
// maxSize caps declared upload sizes.
func NewBroker(client *s3.Client, st *store.Store, expiry time.Duration, maxSize int64, logger *slog.Logger) *Broker {
	return &Broker{
		client:  client,
		presign: s3.NewPresignClient(client),
		store:   st,
		expiry:  expiry,
		maxSize: maxSize,
		logger:  logger,
	}
}

// PhysicalBucket derives the bucket name for a project.
func PhysicalBucket(projectID uuid.UUID) string {
	return "proj-" + projectID.String()
}

// SanitizeKey validates an object key against the restricted character
// class and rejects traversal segments.
func SanitizeKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", apperr.New(apperr.KindBadRequest, "object key is required")
	}
	if !objectKeyPattern.MatchString(key) {
		return "", apperr.New(apperr.KindBadRequest, "object key contains invalid characters")
	}
	if strings.Contains(key, "..") {
		return "", apperr.New(apperr.KindBadRequest, "object key must not contain '..'")
	}
	return key, nil
}

// requireLogicalBucket verifies the logical bucket exists in metadata.
func (b *Broker) requireLogicalBucket(ctx context.Context, projectID uuid.UUID, name string) error {
	if _, err := b.store.GetBucket(ctx, projectID, name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.KindNotFound, "bucket %q not found", name)
		}
		return fmt.Errorf("looking up bucket %q: %w", name, err)
	}
	return nil
}

// UploadGrant is a presigned upload.
type UploadGrant struct {
	ObjectKey string `json:"objectKey"`
	UploadURL string `json:"uploadUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

// PresignUpload validates the logical bucket and declared size, records
// best-effort file metadata, and returns a presigned PUT URL.
func (b *Broker) PresignUpload(ctx context.Context, projectID uuid.UUID, logical, path, contentType string, maxSize int64) (UploadGrant, error) {
	if err := b.requireLogicalBucket(ctx, projectID, logical); err != nil {
		return UploadGrant{}, err
	}
	path, err := SanitizeKey(path)
	if err != nil {
		return UploadGrant{}, err
	}
	if maxSize > b.maxSize {
		return UploadGrant{}, apperr.Newf(apperr.KindBadRequest, "maxSize exceeds the %d byte upload cap", b.maxSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := logical + "/" + path
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(PhysicalBucket(projectID)),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return UploadGrant{}, apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to presign upload", err)
	}

	// Metadata is best-effort; the object store is the ground truth.
	if _, err := b.store.UpsertFileMetadata(ctx, store.FileMetadata{
		ProjectID:   projectID,
		BucketName:  logical,
		ObjectKey:   objectKey,
		ContentType: contentType,
		SizeBytes:   maxSize,
	}); err != nil {
		b.logger.Warn("recording file metadata", "error", err, "object_key", objectKey)
	}

	return UploadGrant{
		ObjectKey: objectKey,
		UploadURL: req.URL,
		ExpiresIn: int(b.expiry.Seconds()),
	}, nil
}

// DownloadGrant is a presigned download.
type DownloadGrant struct {
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   int    `json:"expiresIn"`
}

// PresignDownload returns a time-limited GET URL for one object. No listing
// happens here; the caller must already know the key.
func (b *Broker) PresignDownload(ctx context.Context, projectID uuid.UUID, logical, objectKey string) (DownloadGrant, error) {
	if err := b.requireLogicalBucket(ctx, projectID, logical); err != nil {
		return DownloadGrant{}, err
	}
	objectKey, err := SanitizeKey(objectKey)
	if err != nil {
		return DownloadGrant{}, err
	}
	if !strings.HasPrefix(objectKey, logical+"/") {
		objectKey = logical + "/" + objectKey
	}

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(PhysicalBucket(projectID)),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return DownloadGrant{}, apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to presign download", err)
	}

	return DownloadGrant{DownloadURL: req.URL, ExpiresIn: int(b.expiry.Seconds())}, nil
}

// Object describes one stored object.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// List enumerates objects in one logical bucket. Only secret-tier callers
// reach this.
func (b *Broker) List(ctx context.Context, projectID uuid.UUID, logical, prefix string, limit int) ([]Object, error) {
	if err := b.requireLogicalBucket(ctx, projectID, logical); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 1000
	}

	fullPrefix := logical + "/"
	if prefix != "" {
		clean, err := SanitizeKey(prefix)
		if err != nil {
			return nil, err
		}
		fullPrefix += clean
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(PhysicalBucket(projectID)),
		Prefix:  aws.String(fullPrefix),
		MaxKeys: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to list objects", err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		objects = append(objects, Object{
			Key:          aws.ToString(o.Key),
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
		})
	}
	return objects, nil
}

// Delete removes one object and its metadata row.
func (b *Broker) Delete(ctx context.Context, projectID uuid.UUID, logical, objectKey string) error {
	if err := b.requireLogicalBucket(ctx, projectID, logical); err != nil {
		return err
	}
	objectKey, err := SanitizeKey(objectKey)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(objectKey, logical+"/") {
		objectKey = logical + "/" + objectKey
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(PhysicalBucket(projectID)),
		Key:    aws.String(objectKey),
	}); err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to delete object", err)
	}

	if err := b.store.DeleteFileMetadata(ctx, projectID, objectKey); err != nil {
		b.logger.Warn("deleting file metadata", "error", err, "object_key", objectKey)
	}
	return nil
}

// CreateProjectNamespace creates the project's physical bucket. Creating a
// bucket that already exists is treated as success.
func (b *Broker) CreateProjectNamespace(ctx context.Context, projectID uuid.UUID) error {
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(PhysicalBucket(projectID)),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("creating bucket: %w", err)
	}
	return nil
}

// DestroyProjectNamespace drains and deletes the project's physical bucket.
func (b *Broker) DestroyProjectNamespace(ctx context.Context, projectID uuid.UUID) error {
	bucket := PhysicalBucket(projectID)
	if err := b.drainBucket(ctx, bucket); err != nil {
		return err
	}
	if _, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("deleting bucket: %w", err)
	}
	return nil
}

// drainBucket pages through and deletes every object in a bucket.
func (b *Broker) drainBucket(ctx context.Context, bucket string) error {
	var continuation *string
	for {
		page, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("listing objects for drain: %w", err)
		}

		for _, o := range page.Contents {
			if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    o.Key,
			}); err != nil {
				return fmt.Errorf("deleting object %s: %w", aws.ToString(o.Key), err)
			}
		}

		if !aws.ToBool(page.IsTruncated) {
			return nil
		}
		continuation = page.NextContinuationToken
	}
}

// EnsureBucket creates a named bucket if it does not exist. Used for the
// fixed backup bucket.
func (b *Broker) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// Put uploads a whole object.
func (b *Broker) Put(ctx context.Context, bucket, key, contentType string, body []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// Get downloads a whole object into memory.
func (b *Broker) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes one object from a named bucket.
func (b *Broker) DeleteObject(ctx context.Context, bucket, key string) error {
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// PresignObjectDownload issues a GET URL against a named bucket. Used by
// the backup download endpoint.
func (b *Broker) PresignObjectDownload(ctx context.Context, bucket, key string) (DownloadGrant, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return DownloadGrant{}, apperr.Wrap(apperr.KindUpstreamObjectStore, "failed to presign download", err)
	}
	return DownloadGrant{DownloadURL: req.URL, ExpiresIn: int(b.expiry.Seconds())}, nil
}
