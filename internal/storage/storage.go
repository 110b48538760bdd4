// Package storage persists generated media to a Supabase-compatible
// object store so assets outlive the short retention of provider URLs.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second
	// maxObjectBytes bounds a single download; the longest video clip at
	// 1080p stays well below it.
	maxObjectBytes = 256 << 20
)

// ErrNotConfigured is returned when no storage endpoint is configured.
var ErrNotConfigured = errors.New("storage: not configured")

var segmentPattern = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// PersistRequest describes one asset to store. Exactly one of SourceURL
// or Data is set; SourceURL may be an http(s) or data: URL.
type PersistRequest struct {
	ProjectID   string
	SceneID     string
	Kind        domain.MediaKind
	SourceURL   string
	Data        []byte
	ContentType string
}

// Persisted is a stored object.
type Persisted struct {
	URL         string
	Path        string
	ContentType string
	Size        int64
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

// Client talks to the storage REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      BucketCache
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBucketCache overrides the default in-memory bucket cache.
func WithBucketCache(cache BucketCache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// NewClient creates a storage client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      NewMemoryBucketCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether persistence can be attempted at all.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != "" && c.cfg.Bucket != ""
}

// Persist stores the asset under
// projects/{projectId}/scenes/{sceneId}/{kind}-{uuid}.{ext}
// and returns its public URL.
func (c *Client) Persist(ctx context.Context, req PersistRequest) (Persisted, error) {
	if !c.Configured() {
		return Persisted{}, ErrNotConfigured
	}

	data, contentType, err := c.load(ctx, req)
	if err != nil {
		return Persisted{}, err
	}
	if err := c.ensureBucket(ctx); err != nil {
		return Persisted{}, err
	}

	objectPath := ObjectPath(req.ProjectID, req.SceneID, req.Kind, uuid.NewString(), ExtensionFor(contentType, req.Kind))
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Bucket), objectPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Persisted{}, fmt.Errorf("storage upload: new request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Persisted{}, fmt.Errorf("storage upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Persisted{}, fmt.Errorf("storage upload: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	logger.Debug("asset persisted",
		zap.String("path", objectPath),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
	)
	return Persisted{
		URL:         c.PublicURL(objectPath),
		Path:        objectPath,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// PublicURL returns the public URL of an object path.
func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Bucket), objectPath)
}

func (c *Client) load(ctx context.Context, req PersistRequest) ([]byte, string, error) {
	switch {
	case len(req.Data) > 0:
		ct := req.ContentType
		if ct == "" {
			ct = http.DetectContentType(req.Data)
		}
		return req.Data, ct, nil
	case strings.HasPrefix(req.SourceURL, "data:"):
		return DecodeDataURL(req.SourceURL)
	case req.SourceURL != "":
		return c.download(ctx, req.SourceURL, req.ContentType)
	default:
		return nil, "", errors.New("storage: nothing to persist")
	}
}

func (c *Client) download(ctx context.Context, sourceURL, fallbackType string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage download: new request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("storage download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("storage download: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("storage download: read body: %w", err)
	}
	if len(data) > maxObjectBytes {
		return nil, "", fmt.Errorf("storage download: object exceeds %d bytes", maxObjectBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if fallbackType != "" {
			ct = fallbackType
		} else {
			ct = http.DetectContentType(data)
		}
	}
	return data, ct, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	if c.cache.Known(ctx, c.cfg.Bucket) {
		return nil
	}

	endpoint := fmt.Sprintf("%s/storage/v1/bucket/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Bucket))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("storage bucket: new request: %w", err)
	}
	c.authorize(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("storage bucket: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		if err := c.createBucket(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage bucket: http %d", resp.StatusCode)
	}
	c.cache.Remember(ctx, c.cfg.Bucket)
	return nil
}

func (c *Client) createBucket(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"id": c.cfg.Bucket, "name": c.cfg.Bucket, "public": true})
	if err != nil {
		return fmt.Errorf("storage bucket create: encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/storage/v1/bucket", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("storage bucket create: new request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("storage bucket create: %w", err)
	}
	defer resp.Body.Close()
	// 409: created concurrently by another instance.
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode != http.StatusConflict {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("storage bucket create: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	logger.Info("storage bucket created", zap.String("bucket", c.cfg.Bucket))
	return nil
}

func (c *Client) authorize(r *http.Request) {
	if c.cfg.ServiceKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
		r.Header.Set("apikey", c.cfg.ServiceKey)
	}
}

// ObjectPath builds the storage path for an asset. Path segments are
// reduced to [A-Za-z0-9_-] so user-supplied IDs cannot escape the project.
func ObjectPath(projectID, sceneID string, kind domain.MediaKind, id, ext string) string {
	if sceneID == "" {
		sceneID = "episode"
	}
	return fmt.Sprintf("projects/%s/scenes/%s/%s-%s.%s",
		safeSegment(projectID), safeSegment(sceneID), safeSegment(string(kind)), safeSegment(id), ext)
}

func safeSegment(s string) string {
	s = segmentPattern.ReplaceAllString(s, "_")
	if s == "" || strings.Trim(s, "_") == "" {
		return "unknown"
	}
	return s
}
