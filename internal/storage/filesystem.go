package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// ErrInvalidSignature is returned by Verify for forged or expired URLs.
var ErrInvalidSignature = errors.New("storage: invalid or expired signature")

// FileStore keeps bucketed objects on the local filesystem and issues
// HMAC-signed read URLs for them. It is intended for development and test
// environments where an object storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
	key      []byte
	now      func() time.Time
}

// Options configures a FileStore.
type Options struct {
	BasePath   string
	BaseURL    string
	SigningKey string
	Now        func() time.Time
}

// NewFileStore initializes a FileStore rooted at opts.BasePath.
func NewFileStore(opts Options) (*FileStore, error) {
	basePath := strings.TrimSpace(opts.BasePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if opts.SigningKey == "" {
		return nil, errors.New("storage: signing key is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		key:      []byte(opts.SigningKey),
		now:      now,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists data at bucket/key and returns the canonical key.
func (s *FileStore) Write(ctx context.Context, bucket, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, cleanKey, err := s.resolve(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Open returns the object at bucket/key. Missing objects are domain.ErrNotFound.
func (s *FileStore) Open(bucket, key string) (*os.File, error) {
	fullPath, _, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: %s/%s: %w", bucket, key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return f, nil
}

// SignURL implements domain.URLSigner. The object must exist; buckets are
// never guessed.
func (s *FileStore) SignURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, cleanKey, err := s.resolve(bucket, key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: %s/%s: %w", bucket, cleanKey, domain.ErrNotFound)
		}
		return "", fmt.Errorf("storage: stat: %w", err)
	}
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signature(bucket, cleanKey, expires))
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + escapeKey(cleanKey) + "?" + q.Encode(), nil
}

// Verify checks a signature issued by SignURL.
func (s *FileStore) Verify(bucket, key, expires, sig string) error {
	_, cleanKey, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrInvalidSignature
	}
	want := s.signature(bucket, cleanKey, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Remove implements domain.ObjectRemover. Missing objects are not an error.
func (s *FileStore) Remove(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, _, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

func (s *FileStore) signature(bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(bucket + "/" + key + "\n" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *FileStore) resolve(bucket, key string) (string, string, error) {
	if err := validateBucket(bucket); err != nil {
		return "", "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.basePath, bucket, filepath.FromSlash(cleanKey)), cleanKey, nil
}

func validateBucket(bucket string) error {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return fmt.Errorf("storage: %w: invalid bucket %q", domain.ErrValidation, bucket)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the bucket root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage: %w: key is required", domain.ErrValidation)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: %w: invalid key", domain.ErrValidation)
	}
	return cleaned, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ domain.ObjectStore = (*FileStore)(nil)
