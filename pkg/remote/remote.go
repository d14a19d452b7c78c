package remote

import (
	"context"
	"fmt"
	"time"
)

// Store types.
const (
	TypeRclone = "rclone"
	TypeS3     = "s3"
)

// Container is one entry of a remote listing.
type Container struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Store is the remote collaborator used by retention and the backup runner.
type Store interface {
	// List returns the top-level containers of the store.
	List(ctx context.Context) ([]Container, error)
	// Remove deletes a container and everything in it.
	Remove(ctx context.Context, name string) error
	// Sync makes container name hold exactly the file at localPath.
	Sync(ctx context.Context, localPath, name string) error
	// Location describes the store for log lines, e.g. "crypt:" or "s3://bucket/prefix".
	Location() string
}

// Error is returned for any failed remote operation.
type Error struct {
	Op        string // "list", "remove" or "sync"
	Container string // empty for list
	Err       error
}

func (e *Error) Error() string {
	if e.Container == "" {
		return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s of %q failed: %v", e.Op, e.Container, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// S3Options configures the S3 store.
type S3Options struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Options selects and configures a Store.
type Options struct {
	Type       string
	Name       string
	ConfigPath string
	Binary     string
	ExtraArgs  []string
	S3         S3Options
}

// New builds the Store described by opts.
func New(opts Options) (Store, error) {
	switch opts.Type {
	case TypeRclone, "":
		return NewRclone(opts.Binary, opts.Name, opts.ConfigPath, opts.ExtraArgs, nil), nil
	case TypeS3:
		return NewS3(opts.S3)
	default:
		return nil, fmt.Errorf("unknown remote type: %q", opts.Type)
	}
}
