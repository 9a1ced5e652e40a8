// Package server exposes the daemon's HTTP surface: the signed webhook
// trigger, health, Prometheus metrics and a small admin view over recent
// cycle history.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/engine"
	"git.home.luguber.info/redpen/contentsyncd/internal/history"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
)

// Server hosts the webhook endpoint and auxiliary handlers.
type Server struct {
	cfg      config.Config
	eng      *engine.Engine
	recorder metrics.Recorder
	history  *history.Store // optional
	registry *prometheus.Registry
	httpSrv  *http.Server
}

// New builds the server. registry may be nil when metrics are disabled;
// history may be nil.
func New(cfg config.Config, eng *engine.Engine, recorder metrics.Recorder, registry *prometheus.Registry, hist *history.Store) *Server {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Server{
		cfg:      cfg,
		eng:      eng,
		recorder: recorder,
		registry: registry,
		history:  hist,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/.hooks/"+s.cfg.HookName, s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/admin/cycles", s.handleCycles)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Webhook server listening", slog.String("addr", s.cfg.ListenAddr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook validates the HMAC signature over the raw body, filters on
// event type, and runs one full cycle synchronously. The body itself is
// opaque; only the signature matters.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respond(w, http.StatusMethodNotAllowed, "method not allowed\n")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		slog.Error("Failed to read webhook body", logfields.Error(err))
		s.respond(w, http.StatusInternalServerError, "failed to read body\n")
		return
	}
	defer func() { _ = r.Body.Close() }()

	if s.cfg.WebhookSecret == "" || !verifySignature([]byte(s.cfg.WebhookSecret), body, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("Rejecting webhook with invalid signature")
		s.respond(w, http.StatusUnauthorized, "invalid signature\n")
		return
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "" && event != "push" {
		slog.Info("Acknowledging ignored webhook event", slog.String("event", event))
		s.respond(w, http.StatusAccepted, "event ignored\n")
		return
	}

	slog.Info("Webhook accepted, running sync cycle")
	outcome, err := s.eng.Trigger(metrics.TriggerWebhook, nil)
	if err != nil {
		slog.Error("Webhook cycle failed", logfields.Error(err))
		s.respond(w, http.StatusInternalServerError, "sync failed\n")
		return
	}

	s.respond(w, http.StatusOK, fmt.Sprintf("OK: %s\n", outcome))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleCycles serves recent cycle history as JSON for operators.
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	records, err := s.history.Recent(r.Context(), 50)
	if err != nil {
		slog.Error("Failed to load cycle history", logfields.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (s *Server) respond(w http.ResponseWriter, status int, body string) {
	s.recorder.IncWebhookRequest(status)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// verifySignature checks an X-Hub-Signature-256 header (sha256=<hex>) against
// the HMAC-SHA256 of the raw body, in constant time.
func verifySignature(secret, body []byte, header string) bool {
	if header == "" || !strings.HasPrefix(header, "sha256=") {
		return false
	}
	expected := strings.TrimPrefix(header, "sha256=")

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	calc := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(calc))
}
