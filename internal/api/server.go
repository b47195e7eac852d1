package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/mimic/internal/build"
	"github.com/MikeSquared-Agency/mimic/internal/config"
)

// maxExportBytes bounds a single convert request body.
const maxExportBytes = 256 << 20

type Server struct {
	router *chi.Mux
	port   int
	cfg    config.Config
	logger *slog.Logger

	conversions atomic.Int64
	examples    atomic.Int64
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   cfg.Port,
		cfg:    cfg,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/mimic", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/convert", s.convert)
	})

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":            "mimic",
		"status":           "ok",
		"conversions":      s.conversions.Load(),
		"examples":         s.examples.Load(),
		"turn_window":      s.cfg.TurnWindow,
		"conversation_gap": s.cfg.ConversationGap,
		"min_messages":     s.cfg.MinMessages,
		"include_groups":   s.cfg.IncludeGroups,
	})
}

// convert builds a dataset from the export in the request body. The response is
// only written once the whole dataset has been built.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	cfg, err := overrides(s.cfg, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := cfg.Pipeline()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	runner := build.NewRunner(p, cfg.Workers, s.logger.With("request_id", middleware.GetReqID(r.Context())))
	body := http.MaxBytesReader(w, r.Body, maxExportBytes)

	var out bytes.Buffer
	report, err := runner.Run(r.Context(), body, &out)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.conversions.Add(1)
	s.examples.Add(int64(report.Examples))

	h := w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("X-Mimic-Run-Id", report.RunID.String())
	h.Set("X-Mimic-Chats", strconv.Itoa(report.Chats))
	h.Set("X-Mimic-Examples", strconv.Itoa(report.Examples))
	h.Set("X-Mimic-Errors", strconv.Itoa(len(report.Errors)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
}

// overrides applies query parameters on top of the server configuration.
func overrides(cfg config.Config, r *http.Request) (config.Config, error) {
	q := r.URL.Query()
	var err error
	float := func(key string, dst *float64) {
		if v := q.Get(key); v != "" && err == nil {
			if *dst, err = strconv.ParseFloat(v, 64); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := q.Get(key); v != "" && err == nil {
			if *dst, err = strconv.ParseBool(v); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
			}
		}
	}

	float("turn_window", &cfg.TurnWindow)
	float("conversation_gap", &cfg.ConversationGap)
	boolean("include_groups", &cfg.IncludeGroups)
	boolean("system_prompt", &cfg.SystemPrompt)
	if v := q.Get("min_messages"); v != "" && err == nil {
		if cfg.MinMessages, err = strconv.Atoi(v); err != nil {
			err = fmt.Errorf("min_messages: %w", err)
		}
	}
	if v := q.Get("own_name"); v != "" {
		cfg.OwnName = v
	}
	return cfg, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
