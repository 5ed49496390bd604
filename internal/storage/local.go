// Package storage is the object store for uploaded images.  Objects live in
// named buckets under a root directory on disk and are served back over
// HTTP under a public URL prefix.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for empty object paths or paths that try to
// leave their bucket.
var ErrInvalidPath = errors.New("invalid object path")

// LocalStore keeps objects at <Root>/<bucket>/<path> and exposes them at
// <PublicURL>/<bucket>/<path>.
type LocalStore struct {
	Root      string
	PublicURL string
}

func NewLocalStore(root, publicURL string) *LocalStore {
	return &LocalStore{Root: root, PublicURL: strings.TrimRight(publicURL, "/")}
}

// Upload writes the object, creating intermediate directories.  An
// existing object at the same path is replaced.
func (s *LocalStore) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) error {
	dst, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// PublicURLFor returns the URL under which an object is served.
func (s *LocalStore) PublicURLFor(bucket, objectPath string) string {
	segs := strings.Split(path.Clean("/"+bucket+"/"+objectPath), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.PublicURL + strings.Join(segs, "/")
}

func (s *LocalStore) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || objectPath == "" || strings.ContainsAny(bucket, `/\`) {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.Root, bucket, filepath.FromSlash(clean)), nil
}
