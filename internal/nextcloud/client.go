// Package nextcloud implements the remote storage transport: existence
// probes and uploads against a Nextcloud public share over WebDAV.
package nextcloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the WebDAV endpoint of a Nextcloud public share.
type Client struct {
	davURL string
	http   *http.Client
	logger *slog.Logger
}

// New creates a WebDAV client for the public share identified by shareID
// under the given Nextcloud base URL.
func New(baseURL, shareID string, logger *slog.Logger, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("nextcloud base URL cannot be empty")
	}
	if shareID == "" {
		return nil, fmt.Errorf("nextcloud share ID cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		davURL: fmt.Sprintf("%s/public.php/dav/files/%s", strings.TrimRight(baseURL, "/"), shareID),
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "nextcloud"),
	}, nil
}

// Exists probes whether an object named filename is present on the share.
// Only a 200 response means present; any other status is treated as absent.
func (c *Client) Exists(ctx context.Context, filename string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.objectURL(filename), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create existence probe for %q: %w", filename, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("existence probe failed for %q: %w", filename, err)
	}
	defer resp.Body.Close()

	exists := resp.StatusCode == http.StatusOK
	c.logger.DebugContext(ctx, "Existence probe", "filename", filename, "status", resp.StatusCode, "exists", exists)
	return exists, nil
}

// Upload PUTs content under filename on the share.
func (c *Client) Upload(ctx context.Context, filename string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(filename), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create upload request for %q: %w", filename, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed for %q: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d uploading %q: %s", resp.StatusCode, filename, string(body))
	}

	c.logger.DebugContext(ctx, "Uploaded object", "filename", filename, "size_bytes", len(content))
	return nil
}

func (c *Client) objectURL(filename string) string {
	return c.davURL + "/" + url.PathEscape(filename)
}
