package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

const expiresAtMeta = "Expires-At"

// S3Backend keeps one object per key under a prefix. Object stores have no
// per-object TTL, so the expiry is written as user metadata and enforced on
// read.
type S3Backend struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Backend(client *minio.Client, bucket, prefix string) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *S3Backend) objectKey(key string) string {
	return s.prefix + key
}

func (s *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrMiss
		}
		return nil, err
	}
	if expired(info.UserMetadata, s.now()) {
		return nil, ErrMiss
	}

	return io.ReadAll(obj)
}

func (s *S3Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		s.objectKey(key),
		bytes.NewReader(value),
		int64(len(value)),
		minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{expiresAtMeta: formatExpiry(s.now().Add(ttl))},
		},
	)
	return err
}

// Flush removes every object under the backend prefix.
func (s *S3Backend) Flush(ctx context.Context) error {
	listErr := make(chan error, 1)
	objects := make(chan minio.ObjectInfo)

	go func() {
		defer close(objects)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}

	select {
	case err := <-listErr:
		return fmt.Errorf("list objects: %w", err)
	default:
	}
	return firstErr
}

func (s *S3Backend) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *S3Backend) Close() error { return nil }

func formatExpiry(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// expired reports whether the expiry stored in meta has passed. Objects
// without a readable expiry are treated as expired.
func expired(meta map[string]string, now time.Time) bool {
	for k, v := range meta {
		if !strings.EqualFold(k, expiresAtMeta) {
			continue
		}
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return true
		}
		return !now.Before(time.Unix(sec, 0))
	}
	return true
}
