// Package photos is the object-storage boundary for report photos.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxPhotos    = 5
	MaxPhotoSize = 10 << 20
)

var (
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrTooLarge        = errors.New("photo too large")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectStore stores photo bytes and hands back a stable reference.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Delete removes the objects behind refs returned by Put.
	Delete(ctx context.Context, refs []string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// UserPrefix is the namespace holding every photo of userID.
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}

// NewKey builds a fresh object key for a photo of reportID, or
// ErrUnsupportedType for content types that are not images we accept.
func NewKey(userID, reportID, contentType string) (string, error) {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	return path.Join("users", userID, reportID, uuid.NewString()+ext), nil
}

// FileStore keeps objects on local disk under Root and serves them from
// URLPrefix.
type FileStore struct {
	Root      string
	URLPrefix string
}

func NewFileStore(root, urlPrefix string) *FileStore {
	return &FileStore{Root: root, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, MaxPhotoSize+1))
	closeErr := out.Close()
	if err == nil && n > MaxPhotoSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	return s.URLPrefix + "/" + key, nil
}

func (s *FileStore) Delete(ctx context.Context, refs []string) error {
	var errs []error
	for _, ref := range refs {
		key := strings.TrimPrefix(strings.TrimPrefix(ref, s.URLPrefix), "/")
		dst, err := s.resolve(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeletePrefix removes every object whose key starts with prefix. A missing
// prefix is not an error.
func (s *FileStore) DeletePrefix(ctx context.Context, prefix string) error {
	dir, err := s.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete photos under %s: %w", prefix, err)
	}
	return nil
}

func (s *FileStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}
