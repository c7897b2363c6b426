// Package server exposes the health, webhook and sync routes over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/homemade/cin7sync/sync"
	"github.com/homemade/cin7sync/webhook"
)

const ServiceName = "cin7sync"

// ConfigLoader builds the configuration for one request.
type ConfigLoader func() (sync.Config, error)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

type Server struct {
	loadConfig ConfigLoader
	logger     *zap.Logger
	server     *http.Server
	// Now is the clock passed to each run and the webhook verifier.
	Now func() time.Time
}

func New(loader ConfigLoader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{loadConfig: loader, logger: logger, Now: time.Now}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, listen string) error {
	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("server starting", zap.String("listen", listen))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes configures the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/sync", s.handleSync)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// WantsPlainText reports whether an Accept header prefers text/plain.
func WantsPlainText(accept string) bool {
	return strings.Contains(accept, "text/plain") && !strings.Contains(accept, "application/json")
}

// Health returns the liveness response as status, content type and body.
func (s *Server) Health(plain bool) (int, string, []byte) {
	if plain {
		return http.StatusOK, "text/plain; charset=utf-8", []byte("OK")
	}
	body, _ := json.Marshal(HealthResponse{
		OK:      true,
		Service: ServiceName,
		Time:    s.Now().UTC().Format(time.RFC3339),
	})
	return http.StatusOK, "application/json", body
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, contentType, body := s.Health(WantsPlainText(r.Header.Get("Accept")))
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Verifier builds the webhook verifier from the current configuration.
func (s *Server) Verifier() (webhook.Verifier, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return webhook.Verifier{}, err
	}
	return webhook.Verifier{
		Secret:  cfg.Webhook.Secret,
		MaxSkew: cfg.Webhook.MaxSkew,
		BaseURL: cfg.Webhook.BaseURL,
		Now:     s.Now,
		Logger:  s.logger,
	}, nil
}

// AcceptWebhook handles a verified webhook body.
func (s *Server) AcceptWebhook(body []byte) (int, []byte) {
	events := int64(1)
	if parsed := gjson.ParseBytes(body); parsed.IsArray() {
		events = parsed.Get("#").Int()
	}
	s.logger.Info("webhook accepted", zap.Int64("events", events))
	return http.StatusOK, []byte(`{"ok":true}`)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	verifier, err := s.Verifier()
	if err != nil {
		s.logger.Error("webhook config unavailable", zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}
		status, resp := s.AcceptWebhook(body)
		writeJSON(w, status, resp)
	})).ServeHTTP(w, r)
}

// RunSync performs one sync and returns the status and JSON summary.
// Fatal problems give a 500 with the minimal summary.
func (s *Server) RunSync(ctx context.Context) (int, []byte) {
	cfg, err := s.loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		s.logger.Error("sync not started", zap.Error(err))
		body, _ := json.Marshal(sync.NewFatalSummary(err, s.Now()))
		return http.StatusInternalServerError, body
	}

	sc := sync.NewSyncContext(cfg, s.logger)
	sc.Now = s.Now
	summary, err := sync.NewSyncer(sc).Run(ctx)
	if err != nil {
		body, _ := json.Marshal(summary.Fatal(err))
		return http.StatusInternalServerError, body
	}
	body, err := json.Marshal(summary)
	if err != nil {
		body, _ = json.Marshal(summary.Fatal(err))
		return http.StatusInternalServerError, body
	}
	return http.StatusOK, body
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	status, body := s.RunSync(r.Context())
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
