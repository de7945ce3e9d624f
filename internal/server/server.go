package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/report"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type SetLister interface {
	SetNames(ctx context.Context) ([]string, error)
}

type EventReader interface {
	BySet(ctx context.Context, setName string, limit uint64) ([]model.EventWithContext, error)
	StatsBySet(ctx context.Context, setName string) (model.EventStats, error)
}

type ArticleReader interface {
	CountUnclassified(ctx context.Context, setName string) (int, error)
	ArticlesByCompetitor(ctx context.Context, competitorID int64, limit uint64) ([]model.Article, error)
}

// Server отдает накопленные события наружу: json, rss и pdf отчет. Только чтение.
type Server struct {
	router   *chi.Mux
	sets     SetLister
	events   EventReader
	articles ArticleReader
	// Базовый урл, который попадает в ссылки rss ленты
	feedLink string
}

func New(sets SetLister, events EventReader, articles ArticleReader, feedLink string) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		sets:     sets,
		events:   events,
		articles: articles,
		feedLink: feedLink,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/sets", s.handleSets)
		r.Get("/sets/{set}/events", s.handleEvents)
		r.Get("/sets/{set}/stats", s.handleStats)
		r.Get("/competitors/{id}/articles", s.handleCompetitorArticles)
	})

	s.router.Get("/sets/{set}/events.rss", s.handleRSS)
	s.router.Get("/sets/{set}/briefing.pdf", s.handleBriefing)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start слушает addr пока не отменят ctx
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] http server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleSets(w http.ResponseWriter, r *http.Request) {
	names, err := s.sets.SetNames(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list sets: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string][]string{"sets": names})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	setName, ok := s.resolveSet(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.events.BySet(r.Context(), setName, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch events: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"set": setName, "events": events})
}

// Ответ ручки статистики
type statsResponse struct {
	Set          string                 `json:"set"`
	Total        int                    `json:"total_events"`
	ByCategory   map[model.Category]int `json:"by_category"`
	Unclassified int                    `json:"unclassified_articles"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	setName, ok := s.resolveSet(w, r)
	if !ok {
		return
	}

	stats, err := s.events.StatsBySet(r.Context(), setName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch stats: %v", err), http.StatusInternalServerError)
		return
	}

	unclassified, err := s.articles.CountUnclassified(r.Context(), setName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to count articles: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, statsResponse{
		Set:          setName,
		Total:        stats.Total,
		ByCategory:   stats.ByCategory,
		Unclassified: unclassified,
	})
}

// Статья в ответе api
type articleView struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	SourceURL   string     `json:"source_url"`
	PublishDate *time.Time `json:"publish_date"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

func (s *Server) handleCompetitorArticles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid competitor ID", http.StatusBadRequest)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	articles, err := s.articles.ArticlesByCompetitor(r.Context(), id, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch articles: %v", err), http.StatusInternalServerError)
		return
	}

	views := lo.Map(articles, func(a model.Article, _ int) articleView {
		return articleView{
			ID:          a.ID,
			Title:       a.Title,
			URL:         a.URL,
			SourceURL:   a.SourceURL,
			PublishDate: a.PublishDate,
			FetchedAt:   a.FetchedAt,
		}
	})

	writeJSON(w, map[string]any{"competitor_id": id, "articles": views})
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	setName, ok := s.resolveSet(w, r)
	if !ok {
		return
	}

	events, err := s.events.BySet(r.Context(), setName, defaultLimit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch events: %v", err), http.StatusInternalServerError)
		return
	}

	feed, err := GenerateRSSFeed(setName, events, s.feedLink)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate feed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(feed))
}

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	setName, ok := s.resolveSet(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	stats, err := s.events.StatsBySet(ctx, setName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch stats: %v", err), http.StatusInternalServerError)
		return
	}

	unclassified, err := s.articles.CountUnclassified(ctx, setName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to count articles: %v", err), http.StatusInternalServerError)
		return
	}

	events, err := s.events.BySet(ctx, setName, maxLimit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch events: %v", err), http.StatusInternalServerError)
		return
	}

	// Рендерим в буфер, чтобы при ошибке не отдать половину документа
	var buf bytes.Buffer
	err = report.WritePDF(&buf, report.Briefing{
		SetName:      setName,
		GeneratedAt:  time.Now().UTC(),
		Stats:        stats,
		Unclassified: unclassified,
		Events:       events,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render briefing: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "briefing.pdf"))
	w.Write(buf.Bytes())
}

// resolveSet достает имя набора из урла и отвечает 404, если такого набора нет
func (s *Server) resolveSet(w http.ResponseWriter, r *http.Request) (string, bool) {
	setName := chi.URLParam(r, "set")

	names, err := s.sets.SetNames(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list sets: %v", err), http.StatusInternalServerError)
		return "", false
	}

	if !lo.Contains(names, setName) {
		http.Error(w, fmt.Sprintf("Unknown set %q", setName), http.StatusNotFound)
		return "", false
	}

	return setName, true
}

func parseLimit(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || limit == 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}

	return min(limit, maxLimit), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] failed to write response: %v", err)
	}
}
