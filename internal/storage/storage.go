// Package storage holds uploaded contact files. Files live on local disk in
// development and in S3 otherwise; both are addressed by object key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey is returned for keys that escape the store.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Opener reads an uploaded file.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Store reads and writes uploaded files.
type Store interface {
	Opener
	Put(ctx context.Context, key string, body io.Reader) error
}

// Config selects the backing store.
type Config struct {
	Type      string // "local" or "s3"
	LocalPath string
	Bucket    string
	Prefix    string
}

// New returns the store described by cfg. s3Client is only used when
// cfg.Type is "s3".
func New(cfg Config, s3Client S3API) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "s3":
		if s3Client == nil || cfg.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 requires a client and bucket")
		}
		return NewS3(s3Client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
	}
}

// UploadKey returns a fresh object key for a tenant's upload.
func UploadKey(tenantID, filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == "/" || name == "" {
		name = "contacts.csv"
	}
	return fmt.Sprintf("uploads/%s/%s-%s", tenantID, uuid.NewString(), name)
}

// Local stores files under a directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (l *Local) Put(_ context.Context, key string, body io.Reader) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	return f.Close()
}
