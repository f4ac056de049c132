package localfs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

// Storage is a filesystem blob store for development setups without S3.
// The bucket is a directory below basePath.
type Storage struct {
	basePath string
	bucket   string
}

func New(basePath, bucket string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if bucket == "" {
		bucket = "documents"
	}
	return &Storage{basePath: basePath, bucket: bucket}, nil
}

func (s *Storage) Bucket() string {
	return s.bucket
}

func (s *Storage) EnsureBucket(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.basePath, s.bucket), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return nil
}

func (s *Storage) Put(_ context.Context, key, _ string, data io.Reader, _ int64) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (s *Storage) Head(_ context.Context, key string) (domain.ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return domain.ObjectInfo{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ObjectInfo{}, domain.WrapError(domain.ErrObjectNotFound, "head object", err)
		}
		return domain.ObjectInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	hash := md5.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return domain.ObjectInfo{}, fmt.Errorf("hash file: %w", err)
	}
	return domain.ObjectInfo{Size: size, ETag: hex.EncodeToString(hash.Sum(nil))}, nil
}

// PresignGet is not supported by the filesystem backend.
func (s *Storage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (s *Storage) resolve(key string) (string, error) {
	root := filepath.Join(s.basePath, s.bucket)
	path := filepath.Join(root, filepath.FromSlash(key))
	if path == root || !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrValidation, "resolve key", fmt.Errorf("key %q escapes bucket", key))
	}
	return path, nil
}
