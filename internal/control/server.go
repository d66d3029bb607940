// Package control is the debug control surface of the diagnostics engine: a
// small HTTP server that lets an operator trigger dumps, pull the pending
// coredump and inspect the engine.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
	"github.com/specialistvlad/dpudbg/internal/engine"
)

// OriginDebug is the origin label of dumps requested with the magic value.
const OriginDebug = "debugfs"

// readChunk is the size of one pull read while streaming a coredump.
const readChunk = 4096

// Engine is what the control surface needs from the diagnostics engine.
type Engine interface {
	Trigger(ctx context.Context, pc dump.PowerContext, origin string, names ...string)
	Submit(ctx context.Context, req engine.Request) error
	Status() engine.Status
	Device() *coredump.Device
}

// Server serves the control endpoints.
type Server struct {
	logger *slog.Logger
	eng    Engine
	magic  uint64
	mux    *http.ServeMux
}

// New creates a control server. Writing magic to /debug/dump dumps every
// block.
func New(logger *slog.Logger, eng Engine, magic uint64) *Server {
	s := &Server{
		logger: ctxlog.OrDiscard(logger),
		eng:    eng,
		magic:  magic,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /debug/state", s.stateHandler)
	s.mux.HandleFunc("POST /debug/dump", s.magicHandler)
	s.mux.HandleFunc("POST /debug/trigger", s.triggerHandler)
	s.mux.HandleFunc("GET /debug/coredump", s.readHandler)
	s.mux.HandleFunc("DELETE /debug/coredump", s.abandonHandler)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control server starting", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("Shutting down control server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Control server shutdown failed", "error", err)
		return err
	}
	s.logger.Debug("Control server shut down gracefully.")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Status())
}

// magicHandler mirrors a debugfs attribute: the body is a number, and only
// the magic value does anything.
func (s *Server) magicHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(body)), 0, 64)
	if err != nil {
		http.Error(w, "value must be a number", http.StatusBadRequest)
		return
	}

	if value != s.magic {
		s.logger.Error("Wrong answer to life, ignoring dump request.", "value", value)
		fmt.Fprintln(w, "ignored")
		return
	}

	s.logger.Warn("Dumping all register blocks on request.", "remote_addr", r.RemoteAddr)
	s.eng.Trigger(ctxlog.WithLogger(r.Context(), s.logger), dump.Normal, OriginDebug, catalog.TargetAll)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "dumping")
}

type triggerBody struct {
	Origin         string   `json:"origin"`
	Targets        []string `json:"targets"`
	PowerAlreadyOn bool     `json:"power_already_on"`
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	var body triggerBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if body.Origin == "" {
		body.Origin = "control"
	}
	pc := dump.Normal
	if body.PowerAlreadyOn {
		pc = dump.PowerAlreadyOn
	}

	err := s.eng.Submit(ctxlog.WithLogger(r.Context(), s.logger), engine.NewRequest(pc, body.Origin, body.Targets...))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, engine.ErrCapturePending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
}

// readHandler pulls the pending coredump. Without parameters the whole
// stream is returned and the coredump is released. With offset (and
// optionally count) a single resumable read is served; the read reaching
// the end releases it.
func (s *Server) readHandler(w http.ResponseWriter, r *http.Request) {
	a := s.eng.Device().Current()
	if a == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	size, err := a.Size()
	if err != nil {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}

	q := r.URL.Query()
	offset, err := parseOptional(q.Get("offset"), 0)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	count, err := parseOptional(q.Get("count"), size)
	if err != nil || count <= 0 {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Coredump-Id", a.ID)
	w.Header().Set("X-Coredump-Size", strconv.FormatInt(size, 10))

	written, err := pull(w, a, offset, count)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Error("Coredump read failed.", "id", a.ID, "offset", offset+written, "error", err)
		return
	}
	s.logger.Debug("Coredump read.", "id", a.ID, "offset", offset, "bytes", written, "released", a.Released())
}

// pull copies up to count bytes of a starting at offset using repeated
// offset reads.
func pull(w io.Writer, a *coredump.Artifact, offset, count int64) (int64, error) {
	buf := make([]byte, readChunk)
	var total int64
	for total < count {
		n := int64(len(buf))
		if rest := count - total; rest < n {
			n = rest
		}
		got, err := a.ReadAt(buf[:n], offset+total)
		if got > 0 {
			if _, werr := w.Write(buf[:got]); werr != nil {
				return total, werr
			}
			total += int64(got)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Server) abandonHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.eng.Device().Abandon() {
		http.Error(w, "no coredump pending", http.StatusNotFound)
		return
	}
	s.logger.Info("Coredump abandoned on request.")
	w.WriteHeader(http.StatusNoContent)
}

func parseOptional(v string, def int64) (int64, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
