// Package upload forwards every published coredump to an HTTP endpoint, such
// as a pre-signed object storage URL, and thereby consumes it.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/engine"
	"github.com/specialistvlad/dpudbg/internal/registry"
)

// DefaultTimeout bounds a single upload.
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "upload" notifier kind.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNotifier("upload", New)
}

// Uploader PUTs the formatted coredump stream to a fixed URL.
type Uploader struct {
	url    string
	client *http.Client
}

// New builds an Uploader from n.
func New(_ context.Context, n *config.Notifier) (engine.Subscriber, error) {
	if n.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(n.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported upload scheme %q", u.Scheme)
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Uploader{url: n.URL, client: &http.Client{Timeout: timeout}}, nil
}

// CoredumpReady implements engine.Subscriber. A successful upload reads the
// stream to its end, which releases the coredump.
func (up *Uploader) CoredumpReady(ctx context.Context, a *coredump.Artifact) error {
	logger := ctxlog.FromContext(ctx).With("notifier", "upload", "id", a.ID)

	size, err := a.Size()
	if err != nil {
		return fmt.Errorf("failed to size coredump: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, up.url, io.NewSectionReader(a, 0, size))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-Coredump-Id", a.ID)
	req.Header.Set("X-Coredump-Origin", a.Origin)

	logger.Info("Uploading coredump", "size", size)

	resp, err := up.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded coredump", "status", resp.Status)
	return nil
}
