package dashboard

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

const (
	snapshotPollInterval = 5 * time.Second
	heartbeatInterval    = 20 * time.Second

	defaultTradeLogLimit = 50
	maxTradeLogLimit     = 500
)

type stateReader interface {
	State() domain.ServiceState
	Watch(ctx context.Context) <-chan domain.ServiceState
}

type snapshotReader interface {
	Snapshot(ctx context.Context) (domain.PortfolioState, error)
}

type tradeLogReader interface {
	ListTradeLogs(ctx context.Context, limit int) ([]domain.TradeLog, error)
}

// Server exposes the rebalancer's status over HTTP: SSE streams for the
// service state and portfolio snapshots plus a recent-trades endpoint.
type Server struct {
	Addr      string
	States    stateReader
	Snapshots snapshotReader
	Trades    tradeLogReader

	logger *zap.Logger
}

func NewServer(addr string, states stateReader, snapshots snapshotReader,
	trades tradeLogReader, logger *zap.Logger) *Server {
	return &Server{Addr: addr, States: states, Snapshots: snapshots, Trades: trades, logger: logger}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/state/stream", s.handleStateStream)
	mux.HandleFunc("/portfolio/stream", s.handlePortfolioStream)
	mux.HandleFunc("/trades", s.handleTrades)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via
// ACME, plus an HTTP server on port 80 for the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http (acme) server error", zap.Error(err))
		}
	}()

	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleState returns the current service state as a single JSON document.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(s.States.State()); err != nil {
		s.logger.Warn("failed to encode service state", zap.Error(err))
	}
}

// handleStateStream pushes the service state over SSE whenever it changes.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var last []byte
	send := func(state domain.ServiceState) {
		payload, err := json.Marshal(state)
		if err != nil {
			s.logger.Warn("failed to marshal service state", zap.Error(err))
			return
		}
		if string(payload) == string(last) {
			return
		}
		last = payload
		fmt.Fprintf(w, "event: state\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	updates := s.States.Watch(r.Context())
	send(s.States.State())
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case state, ok := <-updates:
			if !ok {
				return
			}
			send(state)
		}
	}
}

// handlePortfolioStream pushes fresh portfolio snapshots over SSE.
func (s *Server) handlePortfolioStream(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot source not available")
		return
	}
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(snapshotPollInterval)
	defer poll.Stop()

	send := func() {
		state, err := s.Snapshots.Snapshot(r.Context())
		if err != nil {
			s.logger.Warn("dashboard snapshot failed", zap.Error(err))
			return
		}
		payload, err := json.Marshal(state)
		if err != nil {
			s.logger.Warn("failed to marshal portfolio snapshot", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "event: portfolio\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	send()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			send()
		}
	}
}

// handleTrades returns the most recent trade logs, newest first.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.Trades == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "trade log store not available")
		return
	}

	limit := defaultTradeLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if parsed > maxTradeLogLimit {
			parsed = maxTradeLogLimit
		}
		limit = parsed
	}

	logs, err := s.Trades.ListTradeLogs(r.Context(), limit)
	if err != nil {
		s.logger.Warn("failed to list trade logs", zap.Error(err))
		http.Error(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []domain.TradeLog{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(logs); err != nil {
		s.logger.Warn("failed to encode trade logs", zap.Error(err))
	}
}

func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	return flusher, true
}
