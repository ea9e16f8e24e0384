// Package http serves the Cost2Class web UI: a server-rendered page with
// HTMX partials for the overview, the category lists and the sync
// settings. Every mutation goes through the item store and is flushed via
// the persistence gateway before the response is written.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/gateway"
	applog "github.com/sewardrichard/cost2class/internal/log"
	"github.com/sewardrichard/cost2class/internal/remote"
	"github.com/sewardrichard/cost2class/internal/store"
	appweb "github.com/sewardrichard/cost2class/web"
)

// SyncConfigStore persists the remote sync credentials between sessions.
type SyncConfigStore interface {
	LoadSyncConfig(ctx context.Context) (core.SyncConfig, bool, error)
	SaveSyncConfig(ctx context.Context, cfg core.SyncConfig) error
}

// MirrorFactory builds a remote client from saved credentials. It lets the
// settings handler swap the gateway's mirror without knowing the transport.
type MirrorFactory func(cfg core.SyncConfig) remote.DocumentStore

type Server struct {
	http.Server
	templates *template.Template
	store     *store.Store
	gw        *gateway.Gateway
	syncCfg   SyncConfigStore
	newMirror MirrorFactory
	logger    *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, st *store.Store, gw *gateway.Gateway, syncCfg SyncConfigStore, newMirror MirrorFactory, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:     st,
		gw:        gw,
		syncCfg:   syncCfg,
		newMirror: newMirror,
		logger:    logger.WithComponent("http"),
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	// UI partials
	mux.HandleFunc("/ui/overview", s.withSecurityHeaders(s.handleOverview))
	mux.HandleFunc("/ui/items", s.withSecurityHeaders(s.handleItemList))
	mux.HandleFunc("/ui/notice", s.withSecurityHeaders(s.handleNotice))

	// Mutations
	mux.HandleFunc("/items", s.withSecurityHeaders(s.handleCreateItem))
	mux.HandleFunc("/items/update", s.withSecurityHeaders(s.handleUpdateItem))
	mux.HandleFunc("/items/delete", s.withSecurityHeaders(s.handleDeleteItem))
	mux.HandleFunc("/items/toggle", s.withSecurityHeaders(s.handleToggleItem))
	mux.HandleFunc("/filter", s.withSecurityHeaders(s.handleSetFilter))
	mux.HandleFunc("/reset", s.withSecurityHeaders(s.handleReset))

	// CSV
	mux.HandleFunc("/export", s.withSecurityHeaders(s.handleExportCSV))
	mux.HandleFunc("/import", s.withSecurityHeaders(s.handleImportCSV))

	// Sync settings
	mux.HandleFunc("/settings/sync", s.withSecurityHeaders(s.handleSyncSettings))
	mux.HandleFunc("/settings/sync/test", s.withSecurityHeaders(s.handleSyncTest))

	return s
}

// Shutdown drains the HTTP server and waits for in-flight remote pushes.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if s.gw != nil {
			s.gw.Wait()
		}
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.logger.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	}
}

type ctxKeyRequestID struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
