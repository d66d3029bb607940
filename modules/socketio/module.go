// Package socketio announces new coredumps to a Socket.IO server so that a
// collector can come and pull them.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/engine"
	"github.com/specialistvlad/dpudbg/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	DefaultNamespace = "/"
	DefaultEvent     = "coredump"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "socketio" notifier kind.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNotifier("socketio", New)
}

// Notifier emits one event per published coredump over a long-lived
// connection. Events emitted while disconnected are buffered by the client
// and sent once it reconnects.
type Notifier struct {
	baseURL   string
	path      string
	namespace string
	event     string
	insecure  bool

	logger    *slog.Logger
	io        *socket.Socket
	connected atomic.Bool
}

// New validates n and starts connecting in the background.
func New(ctx context.Context, n *config.Notifier) (engine.Subscriber, error) {
	sn, err := newNotifier(n)
	if err != nil {
		return nil, err
	}
	sn.logger = ctxlog.FromContext(ctx).With("notifier", "socketio", "url", n.URL, "namespace", sn.namespace)
	sn.connect()
	return sn, nil
}

func newNotifier(n *config.Notifier) (*Notifier, error) {
	if n.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(n.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", n.URL)
	}

	sn := &Notifier{
		baseURL:   fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		path:      u.Path,
		namespace: n.Namespace,
		event:     n.Event,
		insecure:  n.InsecureSkipVerify,
	}
	if sn.namespace == "" {
		sn.namespace = DefaultNamespace
	}
	if sn.event == "" {
		sn.event = DefaultEvent
	}
	return sn, nil
}

func (n *Notifier) connect() {
	opts := socket.DefaultOptions()
	if n.path != "" {
		opts.SetPath(n.path)
	}
	if n.insecure {
		n.logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(n.baseURL, opts)
	n.io = manager.Socket(n.namespace, opts)

	n.io.On(types.EventName("connect"), func(...any) {
		n.connected.Store(true)
		n.logger.Info("Successfully connected", "sid", n.io.Id())
	})
	n.io.On(types.EventName("disconnect"), func(reason ...any) {
		n.connected.Store(false)
		n.logger.Debug("Disconnected", "reason", reason)
	})
	n.io.On(types.EventName("connect_error"), func(errs ...any) {
		n.logger.Warn("Connection attempt failed", "error", errs)
	})
	n.io.Connect()
}

// Payload is the event body announcing a coredump.
func Payload(a *coredump.Artifact) map[string]any {
	p := map[string]any{
		"id":        a.ID,
		"module":    a.Module,
		"origin":    a.Origin,
		"timestamp": a.Timestamp.UnixNano(),
	}
	if size, err := a.Size(); err == nil {
		p["size"] = size
	}
	return p
}

// CoredumpReady implements engine.Subscriber.
func (n *Notifier) CoredumpReady(ctx context.Context, a *coredump.Artifact) error {
	if n.io == nil {
		return fmt.Errorf("socketio notifier is not connected")
	}
	logger := ctxlog.FromContext(ctx)
	if !n.connected.Load() {
		logger.Debug("Socket not connected yet, event will be buffered.", "event", n.event)
	}
	logger.Info("Emitting event", "event", n.event, "id", a.ID)
	n.io.Emit(n.event, Payload(a))
	return nil
}

// Close disconnects from the server.
func (n *Notifier) Close() error {
	if n.io != nil {
		n.logger.Debug("Disconnecting socket client")
		n.io.Disconnect()
	}
	return nil
}
