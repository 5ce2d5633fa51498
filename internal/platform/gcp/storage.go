package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
}

// ObjectStorage reads evidence objects from GCS (or the fake-gcs emulator).
type ObjectStorage struct {
	log          *logger.Logger
	client       *storage.Client
	mode         ObjectStorageMode
	emulatorHost string
	http         *http.Client
	timeout      time.Duration
}

func NewObjectStorage(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (*ObjectStorage, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	s := &ObjectStorage{
		log:          log.With("service", "ObjectStorage"),
		mode:         cfg.Mode,
		emulatorHost: strings.TrimRight(cfg.EmulatorHost, "/"),
		http:         &http.Client{},
		timeout:      5 * time.Minute,
	}
	if !cfg.IsEmulatorMode() {
		opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadOnly))
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		s.client = client
	}
	s.log.Info("Object storage initialized", "mode", cfg.Mode, "emulator_host", s.emulatorHost)
	return s, nil
}

func (s *ObjectStorage) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Download copies bucket/key into localPath, creating parent directories,
// and returns the number of bytes written.
func (s *ObjectStorage) Download(ctx context.Context, bucket, key, localPath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rc, err := s.open(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local file: %w", err)
	}
	n, copyErr := io.Copy(f, rc)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(localPath)
		return 0, fmt.Errorf("download gs://%s/%s: %w", bucket, key, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close local file: %w", closeErr)
	}
	return n, nil
}

func (s *ObjectStorage) open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if s.mode == ObjectStorageModeGCSEmulator {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.emulatorURL(bucket, key)+"?alt=media", nil)
		if err != nil {
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed emulator download request: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return resp.Body, nil
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return r, nil
}

func (s *ObjectStorage) Attrs(ctx context.Context, bucket, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.mode == ObjectStorageModeGCSEmulator {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.emulatorURL(bucket, key), nil)
		if err != nil {
			return nil, fmt.Errorf("failed creating emulator attrs request: %w", err)
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed emulator attrs request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("emulator attrs failed: status=%d", resp.StatusCode)
		}
		var payload struct {
			Size        string `json:"size"`
			ContentType string `json:"contentType"`
			Updated     string `json:"updated"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode emulator attrs: %w", err)
		}
		size, _ := strconv.ParseInt(strings.TrimSpace(payload.Size), 10, 64)
		updated, _ := time.Parse(time.RFC3339, strings.TrimSpace(payload.Updated))
		return &ObjectAttrs{Size: size, ContentType: payload.ContentType, Updated: updated}, nil
	}

	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{Size: attrs.Size, ContentType: attrs.ContentType, Updated: attrs.Updated}, nil
}

func (s *ObjectStorage) emulatorURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s", s.emulatorHost, url.PathEscape(bucket), url.PathEscape(key))
}
