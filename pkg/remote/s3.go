package remote

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// S3 is a Store backed by an S3 compatible bucket. A container is the key prefix
// "<prefix><name>/" and holds the uploaded archive.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 store. Empty keys fall back to the AWS_* environment variables.
func NewS3(opts S3Options) (*S3, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}

	creds := credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	if opts.AccessKey == "" && opts.SecretKey == "" {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3{client: client, bucket: opts.Bucket, prefix: normalizePrefix(opts.Prefix)}, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *S3) Location() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) containerPrefix(name string) string {
	return s.prefix + name + "/"
}

func (s *S3) List(ctx context.Context) ([]Container, error) {
	var containers []Container
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix}) {
		if obj.Err != nil {
			return nil, &Error{Op: "list", Err: obj.Err}
		}
		rel := strings.TrimPrefix(obj.Key, s.prefix)
		isDir := strings.HasSuffix(rel, "/")
		name := strings.TrimSuffix(rel, "/")
		if name == "" {
			continue
		}
		containers = append(containers, Container{Name: name, Size: obj.Size, ModTime: obj.LastModified, IsDir: isDir})
	}
	return containers, nil
}

func (s *S3) Remove(ctx context.Context, name string) error {
	if name == "" {
		return &Error{Op: "remove", Err: errors.New("refusing to purge the remote root")}
	}
	if err := s.removeUnder(ctx, s.containerPrefix(name), ""); err != nil {
		return &Error{Op: "remove", Container: name, Err: err}
	}
	return nil
}

func (s *S3) Sync(ctx context.Context, localPath, name string) error {
	key := s.containerPrefix(name) + filepath.Base(localPath)
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return &Error{Op: "sync", Container: name, Err: err}
	}
	plog.Debug("Uploaded object", "bucket", s.bucket, "key", key, "size", info.Size, "etag", info.ETag)

	// Like rclone sync, leave only the uploaded file in the container.
	if err := s.removeUnder(ctx, s.containerPrefix(name), key); err != nil {
		return &Error{Op: "sync", Container: name, Err: err}
	}
	return nil
}

// removeUnder deletes every object whose key starts with prefix, except keep.
func (s *S3) removeUnder(ctx context.Context, prefix, keep string) error {
	objectsCh := make(chan minio.ObjectInfo)

	var g errgroup.Group
	g.Go(func() error {
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				return obj.Err
			}
			if obj.Key == keep {
				continue
			}
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return firstErr
}
