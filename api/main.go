package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/wiki-search-sync/internal/azuresearch"
	"github.com/DeafMist/wiki-search-sync/internal/config"
	"github.com/DeafMist/wiki-search-sync/internal/elasticsearch"
	"github.com/DeafMist/wiki-search-sync/internal/logger"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

const maxFrom = 10_000

type searcher interface {
	Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error)
	Health(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	index, err := newSearcher(cfg.Index, log)
	if err != nil {
		log.Error("init index client", slog.String("backend", cfg.Backend), slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, index: index}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr), slog.String("backend", cfg.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

func newSearcher(idx config.Index, log *slog.Logger) (searcher, error) {
	if idx.Backend == config.BackendElasticsearch {
		client, err := elasticsearch.New(idx.ElasticsearchAddr, idx.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return azuresearch.New(idx.AzureEndpoint, idx.AzureIndex, idx.AzureKey, idx.AzureAPIVersion, log), nil
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	index searcher
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/search", s.handleSearch)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.index.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := models.SearchParams{
		Query: strings.TrimSpace(q.Get("q")),
		From:  clampInt(q.Get("from"), 0, maxFrom),
		Size:  clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	}

	result, err := s.index.Search(ctx, params)
	if err != nil {
		s.log.Warn("search failed", slog.String("query", params.Query), slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
