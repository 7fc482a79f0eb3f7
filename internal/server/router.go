// Package server exposes the lock directory over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/foxy/internal/lock"
	"github.com/loykin/foxy/internal/metrics"
)

// Router provides embeddable HTTP handlers for inspecting lock records.
// Endpoints:
//
//	GET    {basePath}/locks      all records with liveness
//	GET    {basePath}/locks/:id  one record
//	DELETE {basePath}/locks/:id  remove a stale record (409 when its owner is alive)
//	GET    {basePath}/healthz
//	GET    {basePath}/metrics    Prometheus exposition, when a gatherer is set
//
// basePath may be empty or start with '/'; no trailing slash.
// With UseAuth, the /locks endpoints require authentication.
type Router struct {
	lockDir  string
	basePath string
	detect   lock.DetectorFunc
	gatherer prometheus.Gatherer
	auth     gin.HandlerFunc
}

// NewRouter constructs a Router over lockDir. A nil gatherer disables /metrics.
func NewRouter(lockDir, basePath string, g prometheus.Gatherer) *Router {
	return &Router{
		lockDir:  lockDir,
		basePath: sanitizeBase(basePath),
		detect:   lock.PIDFile,
		gatherer: g,
	}
}

// UseAuth guards the /locks endpoints with h.
func (r *Router) UseAuth(h gin.HandlerFunc) *Router {
	r.auth = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	locks := group.Group("/locks")
	if r.auth != nil {
		locks.Use(r.auth)
	}
	locks.GET("", r.handleList)
	locks.GET("/:id", r.handleGet)
	locks.DELETE("/:id", r.handleDelete)
	if r.gatherer != nil {
		group.GET("/metrics", gin.WrapH(metrics.Handler(r.gatherer)))
	}
	return g
}

// Server is a standalone HTTP server for a Router.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer builds a server listening on addr. A non-nil tc serves HTTPS.
// Call Serve to start it.
func NewServer(addr string, r *Router, log *slog.Logger, tc *tls.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			TLSConfig:         tc,
		},
		log: log,
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down,
// waiting at most shutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if s.srv.TLSConfig != nil {
			// certificates come from TLSConfig.GetCertificate
			errCh <- s.srv.ServeTLS(ln, "", "")
			return
		}
		errCh <- s.srv.Serve(ln)
	}()
	s.log.Info("status server listening", "addr", ln.Addr().String(), "tls", s.srv.TLSConfig != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("status server shutting down")
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type deleteResp struct {
	OK    bool       `json:"ok"`
	Entry lock.Entry `json:"entry"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleList(c *gin.Context) {
	entries, err := lock.List(r.lockDir, r.detect)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []lock.Entry{}
	}
	if c.Query("alive") != "" {
		want := c.Query("alive") == "true" || c.Query("alive") == "1"
		filtered := entries[:0]
		for _, e := range entries {
			if e.Alive == want {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(c, http.StatusOK, entries)
}

func (r *Router) handleGet(c *gin.Context) {
	e, err := lock.Inspect(r.lockDir, c.Param("id"), r.detect)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func (r *Router) handleDelete(c *gin.Context) {
	e, err := lock.Remove(r.lockDir, c.Param("id"), r.detect)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, deleteResp{OK: true, Entry: e})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lock.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrAlive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
