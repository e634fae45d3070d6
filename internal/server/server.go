// Package server implements the riggen HTTP API. It exposes the
// layout store and the build runner over REST so a team can share
// guide layouts and build rigs against one deployment instead of
// per-workstation state:
//
//	GET    /healthz                 liveness probe
//	GET    /api/layouts             list stored layout names
//	GET    /api/layouts/{name}      fetch a stored layout
//	PUT    /api/layouts/{name}      store a layout
//	DELETE /api/layouts/{name}      delete a stored layout
//	POST   /api/rigs/{name}/build   build a rig from a JSON manifest body
//
// The build endpoint accepts the same manifest the CLI reads from
// riggen.toml, as JSON, and returns the requested artifact directly:
// the skeleton document by default, or a rendered diagram with
// ?format=dot|svg|png. Configuration comes from the environment via
// [Config].
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/buildinfo"
	"github.com/kelpfield/riggen/pkg/cache"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/observability"
	"github.com/kelpfield/riggen/pkg/scene"
)

const (
	// maxBodyBytes caps layout and manifest request bodies. Both are
	// small JSON documents; anything near this limit is malformed or
	// hostile.
	maxBodyBytes = 4 << 20

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server hosts the riggen HTTP API over a shared layout store and
// build cache.
type Server struct {
	cfg    Config
	logger *log.Logger
	store  layout.Store
	cache  cache.Cache
	http   *http.Server
}

// New assembles a server from its config: the layout store, the build
// cache, and the routed handler. A nil logger falls back to the
// default logger.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open layout store: %w", err)
	}
	c, err := openCache(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect build cache: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger, store: store, cache: c}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// openStore resolves the layout backend, honoring the same
// RIGGEN_STORE values the CLI accepts so one environment drives both.
func openStore(ctx context.Context, cfg Config) (layout.Store, error) {
	switch cfg.Store {
	case "memory":
		return layout.NewMemory(), nil
	case "mongo":
		return layout.NewMongoStore(ctx, layout.MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDB,
		})
	case "":
		return layout.NewFileStore(cfg.StoreDir)
	default:
		return layout.NewFileStore(cfg.Store)
	}
}

// openCache connects the build cache. Redis is the shared option for a
// served deployment; without it every request builds fresh.
func openCache(ctx context.Context, cfg Config) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewNullCache(), nil
	}
	return cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// routes wires the API onto a chi router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Get("/layouts", s.handleLayoutList)
		api.Get("/layouts/{name}", s.handleLayoutGet)
		api.Put("/layouts/{name}", s.handleLayoutPut)
		api.Delete("/layouts/{name}", s.handleLayoutDelete)
		api.Post("/rigs/{name}/build", s.handleBuild)
	})
	return r
}

// Handler returns the routed handler, for serving through a test
// server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the HTTP server until the context ends, then
// shuts it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	s.logger.Info("listening", "addr", s.http.Addr)
	go func() {
		serveErr <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

// Close releases the store and cache. Call it after ListenAndServe
// returns.
func (s *Server) Close() error {
	firstErr := s.cache.Close()
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// logRequests logs every request at debug level with its duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleLayoutList(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"layouts": names})
}

func (s *Server) handleLayoutGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	lay, err := s.store.Load(r.Context(), name)
	observability.Store().OnLoad(r.Context(), name, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lay)
}

func (s *Server) handleLayoutPut(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var lay layout.Layout
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&lay); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode layout"))
		return
	}
	err := s.store.Save(r.Context(), name, lay)
	observability.Store().OnSave(r.Context(), name, len(lay), err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"modules": len(lay),
	})
}

func (s *Server) handleLayoutDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBuild builds a rig from the manifest in the request body and
// responds with the requested artifact. The rig takes its name from
// the URL; a name in the body is ignored. Query parameters: layout
// names a stored layout to apply, format picks the artifact
// (default json), mirror and refresh are booleans.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	m, err := build.ParseManifest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m.Name = chi.URLParam(r, "name")

	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = build.FormatJSON
	}
	mirror, err := boolParam(q, "mirror")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	refresh, err := boolParam(q, "refresh")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Each build gets its own scene so concurrent requests cannot
	// collide on node names. Store and cache are shared; the runner is
	// not closed because closing it would close them too.
	runner := build.NewRunner(scene.NewMemory(), s.cache, nil, s.logger)
	runner.Layouts = s.store

	result, err := runner.Execute(r.Context(), build.Options{
		Manifest:   m,
		LayoutName: q.Get("layout"),
		Mirror:     mirror,
		Formats:    []string{format},
		Refresh:    refresh,
		Rankdir:    q.Get("rankdir"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, ok := result.Artifacts[format]
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "build produced no %s artifact", format))
		return
	}
	if result.CacheInfo.SkeletonHit {
		w.Header().Set("X-Riggen-Cache", "hit")
	} else {
		w.Header().Set("X-Riggen-Cache", "miss")
	}
	if n := len(result.Report.Warnings); n > 0 {
		w.Header().Set("X-Riggen-Warnings", strconv.Itoa(n))
	}
	w.Header().Set("Content-Type", artifactContentType(format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write response", "path", r.URL.Path, "err", err)
	}
}

// boolParam parses an optional boolean query parameter. Absent means
// false.
func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "query parameter %s=%q is not a boolean", name, v)
	}
	return b, nil
}

// artifactContentType maps an artifact format to its media type.
func artifactContentType(format string) string {
	switch format {
	case build.FormatJSON:
		return "application/json"
	case build.FormatSVG:
		return "image/svg+xml"
	case build.FormatPNG:
		return "image/png"
	default:
		return "text/vnd.graphviz"
	}
}

// writeJSON writes v as an indented JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Error("encode response", "err", err)
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	data = append(data, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

// writeError maps a coded error onto an HTTP status and writes a JSON
// error body. Unmapped codes are internal errors and get logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidManifest,
		errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidSide,
		errors.ErrCodeInvalidKind:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err)
	}
	s.writeJSON(w, status, map[string]string{
		"error": errors.UserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}
