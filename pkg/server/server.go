// Package server exposes the chat assistant and cache administration over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prepai/prepai/pkg/budget"
	"github.com/prepai/prepai/pkg/cache"
	"github.com/prepai/prepai/pkg/cache/memory"
	"github.com/prepai/prepai/pkg/config"
	"github.com/prepai/prepai/pkg/generate"
	"github.com/prepai/prepai/pkg/models"
	"github.com/prepai/prepai/pkg/router"
	"github.com/prepai/prepai/pkg/tracker"
)

const (
	headerUserID = "X-User-ID"
	headerCache  = "X-Cache"
	anonymous    = "anonymous"
	maxBodyBytes = 1 << 20
)

// Server is the prepai HTTP server.
type Server struct {
	cfg      *config.Config
	cache    *memory.Cache
	tracker  tracker.Tracker
	enforcer *budget.Enforcer
	chat     cache.HandlerFunc
	handler  http.Handler
}

// New wires the chat pipeline: budget check, then generation, with the
// response cache in front so hits skip both. c, t and e may be nil.
func New(cfg *config.Config, gen cache.HandlerFunc, c *memory.Cache, t tracker.Tracker, e *budget.Enforcer) *Server {
	s := &Server{
		cfg:      cfg,
		cache:    c,
		tracker:  t,
		enforcer: e,
	}

	s.chat = gen
	if e != nil {
		s.chat = s.withBudget(s.chat)
	}
	if c != nil {
		s.chat = cache.Wrap(c, s.chat)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache", s.handleCacheClear)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.handler = withRequestLog(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Listen).Msg("prepai listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) withBudget(next cache.HandlerFunc) cache.HandlerFunc {
	return func(ctx context.Context, req models.ChatRequest) (models.Reply, error) {
		if err := s.enforcer.Check(ctx, req.UserID, req.Model); err != nil {
			return models.Reply{}, err
		}
		return next(ctx, req)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := s.decodeChatRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	reply, err := s.chat(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		log.Error().Err(err).Str("model", req.Model).Int("status", status).Msg("chat failed")
		writeJSONError(w, status, messageForStatus(status))
		return
	}

	if cache.IsCached(reply) {
		w.Header().Set(headerCache, "hit")
		s.recordHit(r.Context(), req, time.Since(start))
	} else if s.cache != nil {
		w.Header().Set(headerCache, "miss")
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, reply.Body)
}

// decodeChatRequest reads the JSON body and fills in configured defaults
// before the request reaches the cache, so the defaulted and explicit forms
// share a cache entry. Non-string fields are stringified rather than rejected.
func (s *Server) decodeChatRequest(r *http.Request) (models.ChatRequest, error) {
	var req models.ChatRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return req, errors.New("failed to read request body")
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return req, errors.New("invalid request body")
	}

	req.Message = stringField(fields, "message")
	req.Model = stringField(fields, "model")
	req.Language = stringField(fields, "language")
	if req.Model == "" {
		req.Model = s.cfg.Chat.DefaultModel
	}
	if req.Language == "" {
		req.Language = s.cfg.Chat.DefaultLanguage
	}
	req.UserID = r.Header.Get(headerUserID)
	if req.UserID == "" {
		req.UserID = anonymous
	}
	return req, nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (s *Server) recordHit(ctx context.Context, req models.ChatRequest, latency time.Duration) {
	if s.tracker == nil {
		return
	}
	err := s.tracker.Record(ctx, models.UsageRecord{
		UserID:    req.UserID,
		Model:     req.Model,
		Language:  req.Language,
		Cached:    true,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("record cache hit")
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSON(w, http.StatusOK, models.CacheStatus{Enabled: false})
		return
	}
	writeJSON(w, http.StatusOK, models.CacheStatus{Enabled: true, Stats: s.cache.Stats()})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var cleared int
	if s.cache != nil {
		cleared = s.cache.Len()
		s.cache.Clear()
		log.Info().Int("entries", cleared).Msg("cache cleared")
	}
	writeJSON(w, http.StatusOK, models.ClearResult{Cleared: cleared})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, generate.ErrAllProvidersFailed):
		return http.StatusBadGateway
	case errors.Is(err, router.ErrNoProviders):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageForStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "token budget exceeded"
	case http.StatusBadGateway:
		return "all upstream providers failed"
	case http.StatusServiceUnavailable:
		return "no providers available"
	case http.StatusGatewayTimeout:
		return "upstream timed out"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"prepai_error","code":%d}}`, message, code)
}
