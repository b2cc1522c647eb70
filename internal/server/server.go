// Package server exposes the adapter catalog over HTTP for tool-calling hosts.
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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/catalog"
	"github.com/ggonzalez94/defi-adapters/internal/toolschema"
	"github.com/ggonzalez94/defi-adapters/internal/version"
)

const maxBodyBytes = 1 << 20

type Config struct {
	ListenAddr string
	// JWTSecret enables HS256 bearer auth on every /v1 route when set.
	JWTSecret string
	RateLimit float64
	RateBurst int
	// InvokeTimeout bounds one adapter call including its submission.
	InvokeTimeout time.Duration
}

type Server struct {
	cfg     Config
	catalog *catalog.Catalog
	opts    adapter.FunctionOptions
	hub     *Hub
	limiter *rate.Limiter
	handler http.Handler
}

// New wires the routes. Notifications reach websocket subscribers only when opts
// forwards them to hub, which the caller arranges.
func New(cfg Config, cat *catalog.Catalog, opts adapter.FunctionOptions, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		opts:    opts,
		hub:     hub,
		limiter: newLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /v1/adapters/{adapter}/{function}", s.protect(http.HandlerFunc(s.handleInvoke)))
	mux.Handle("GET /v1/tools", s.protect(http.HandlerFunc(s.handleTools)))
	mux.Handle("GET /v1/notifications", s.protect(hub))
	s.handler = withRequestID(mux)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) protect(h http.Handler) http.Handler {
	return s.rateLimit(s.requireAuth(h))
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":     s.cfg.ListenAddr,
			"adapters": len(s.catalog.Names()),
			"auth":     s.cfg.JWTSecret != "",
		}).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logrus.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"version":     version.CLIVersion,
		"adapters":    len(s.catalog.Names()),
		"subscribers": s.hub.Subscribers(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	}
	if m, ok := s.opts.(interface{ Mode() string }); ok {
		body["mode"] = m.Mode()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools := s.catalog.Tools()
	order := s.catalog.Names()
	if name := strings.TrimSpace(r.URL.Query().Get("adapter")); name != "" {
		a, ok := s.catalog.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Adapter %s not found", name))
			return
		}
		order = []string{a.Name}
	}
	rendered, err := toolschema.Render(r.URL.Query().Get("format"), order, tools)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rendered)
}

// handleInvoke answers with an adapter Result. Function failures are results, not
// HTTP errors, so they come back with 200.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	adapterName := r.PathValue("adapter")
	function := r.PathValue("function")
	log := logrus.WithFields(logrus.Fields{
		"adapter":    adapterName,
		"function":   function,
		"request_id": w.Header().Get("X-Request-ID"),
	})
	if sub := subjectFrom(r.Context()); sub != "" {
		log = log.WithField("subject", sub)
	}

	a, ok := s.catalog.Get(adapterName)
	if !ok {
		writeJSON(w, http.StatusNotFound, adapter.Fail(fmt.Sprintf("Adapter %s not found", adapterName)))
		return
	}
	if _, ok := a.Tool(function); !ok {
		writeJSON(w, http.StatusNotFound, adapter.Fail(fmt.Sprintf("Function %s not found in adapter %s", function, a.Name)))
		return
	}
	if err := s.catalog.Allowed(a.Name, function); err != nil {
		writeJSON(w, http.StatusForbidden, adapter.FromError(err))
		return
	}

	props, err := decodeProps(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, adapter.Fail(err.Error()))
		return
	}

	ctx := r.Context()
	if s.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InvokeTimeout)
		defer cancel()
	}
	start := time.Now()
	res := s.catalog.Invoke(ctx, a.Name, function, props, s.opts)
	log.WithFields(logrus.Fields{
		"success":    res.Success,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("function invoked")
	writeJSON(w, http.StatusOK, res)
}

func decodeProps(body io.Reader) (adapter.Props, error) {
	buf, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(buf) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	props := adapter.Props{}
	if len(strings.TrimSpace(string(buf))) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(buf, &props); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return props, nil
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
