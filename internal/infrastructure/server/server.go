// Package server exposes the pipeline over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/orchestrator"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
	"github.com/kremserw/mitteilungsblattscraper/internal/usecase"
)

// PDFAnalysisRunner performs the deep item+attachments analysis.
type PDFAnalysisRunner interface {
	AnalyzeItemWithPDFs(ctx context.Context, itemID int64) (string, error)
}

// Server routes API requests to the task runner and the store.
type Server struct {
	store  ports.EditionStore
	tasks  *usecase.Tasks
	pdf    PDFAnalysisRunner
	runner *orchestrator.Runner
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(store ports.EditionStore, tasks *usecase.Tasks, pdf PDFAnalysisRunner,
	runner *orchestrator.Runner, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		tasks:  tasks,
		pdf:    pdf,
		runner: runner,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/scan", s.handleScan)
			r.Post("/scrape", s.handleScrape)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/sync", s.handleSync)
			r.Post("/clear-logs", s.handleClearLogs)
		})
		r.Get("/editions", s.handleListEditions)
		r.Get("/editions/{key}/items", s.handleListItems)
		r.Post("/editions/{key}/reset", s.handleResetEdition)
		r.Post("/items/{id}/read", s.handleMarkRead)
		r.Post("/items/{id}/analyze-pdf", s.handleAnalyzePDF)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("date_from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date_from: %v", err))
		return
	}
	to, err := parseDate(r.URL.Query().Get("date_to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date_to: %v", err))
		return
	}

	s.startTask(w, "scan", func(ctx context.Context) error {
		return s.tasks.Scan(ctx, from, to)
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	edition := r.URL.Query().Get("edition")
	s.startTask(w, "scrape", func(ctx context.Context) error {
		return s.tasks.Scrape(ctx, edition)
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	edition := r.URL.Query().Get("edition")
	s.startTask(w, "analyze", func(ctx context.Context) error {
		return s.tasks.Analyze(ctx, edition)
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.startTask(w, "sync", func(ctx context.Context) error {
		return s.tasks.Sync(ctx)
	})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.runner.ClearLogs()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleListEditions(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = parsed
	}

	editions, err := s.store.ListAll(r.Context(), year)
	if err != nil {
		s.logger.Error("list editions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list editions failed")
		return
	}
	writeJSON(w, http.StatusOK, editionViews(editions))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	year, stueck, err := domain.ParseEditionKey(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid edition key")
		return
	}

	edition, err := s.store.EditionByKey(r.Context(), year, stueck)
	if err != nil {
		s.logger.Error("load edition failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load edition failed")
		return
	}
	if edition == nil {
		writeError(w, http.StatusNotFound, "edition not found")
		return
	}

	items, err := s.store.ListItems(r.Context(), edition.ID)
	if err != nil {
		s.logger.Error("list items failed", "edition", key, "error", err)
		writeError(w, http.StatusInternalServerError, "list items failed")
		return
	}
	writeJSON(w, http.StatusOK, itemViews(items))
}

func (s *Server) handleResetEdition(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	year, stueck, err := domain.ParseEditionKey(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid edition key")
		return
	}

	edition, err := s.store.EditionByKey(r.Context(), year, stueck)
	if err != nil {
		s.logger.Error("load edition failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load edition failed")
		return
	}
	if edition == nil {
		writeError(w, http.StatusNotFound, "edition not found")
		return
	}

	if err := s.store.ResetEdition(r.Context(), edition.ID); err != nil {
		s.logger.Error("reset failed", "edition", key, "error", err)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	s.logger.Info("edition reset", "edition", key)
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	updated, err := s.store.MarkItemRead(r.Context(), itemID)
	if err != nil {
		s.logger.Error("mark read failed", "item", itemID, "error", err)
		writeError(w, http.StatusInternalServerError, "mark read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleAnalyzePDF(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	s.startTask(w, fmt.Sprintf("analyze-pdf-%d", itemID), func(ctx context.Context) error {
		_, err := s.pdf.AnalyzeItemWithPDFs(ctx, itemID)
		return err
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) startTask(w http.ResponseWriter, name string, fn func(ctx context.Context) error) {
	if !s.runner.StartTask(name, fn) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"started": false,
			"error":   "Another task is running",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true, "task": name})
}

var dateLayouts = []string{"2006-01-02", "01/02/2006"}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", raw)
}

type editionView struct {
	Key           string     `json:"key"`
	Year          int        `json:"year"`
	Stueck        int        `json:"stueck"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	ScrapedAt     *time.Time `json:"scraped_at,omitempty"`
	AnalyzedAt    *time.Time `json:"analyzed_at,omitempty"`
}

func editionViews(editions []domain.Edition) []editionView {
	views := make([]editionView, 0, len(editions))
	for _, e := range editions {
		views = append(views, editionView{
			Key:           e.Key(),
			Year:          e.Year,
			Stueck:        e.Stueck,
			Title:         e.Title,
			URL:           e.URL,
			PublishedDate: e.PublishedDate,
			ScrapedAt:     e.ScrapedAt,
			AnalyzedAt:    e.AnalyzedAt,
		})
	}
	return views
}

type itemView struct {
	ID                   int64               `json:"id"`
	Punkt                int                 `json:"punkt"`
	Title                string              `json:"title"`
	ShortTitle           string              `json:"short_title,omitempty"`
	Category             string              `json:"category,omitempty"`
	Content              string              `json:"content"`
	Attachments          []domain.Attachment `json:"attachments"`
	RelevanceScore       *float64            `json:"relevance_score,omitempty"`
	RelevanceExplanation string              `json:"relevance_explanation,omitempty"`
	AnalyzedAt           *time.Time          `json:"analyzed_at,omitempty"`
	ReadAt               *time.Time          `json:"read_at,omitempty"`
	PDFAnalysis          string              `json:"pdf_analysis,omitempty"`
	PDFAnalyzedAt        *time.Time          `json:"pdf_analyzed_at,omitempty"`
}

func itemViews(items []domain.BulletinItem) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, itemView{
			ID:                   item.ID,
			Punkt:                item.Punkt,
			Title:                item.Title,
			ShortTitle:           item.ShortTitle,
			Category:             item.Category,
			Content:              item.Content,
			Attachments:          item.Attachments,
			RelevanceScore:       item.RelevanceScore,
			RelevanceExplanation: item.RelevanceExplanation,
			AnalyzedAt:           item.AnalyzedAt,
			ReadAt:               item.ReadAt,
			PDFAnalysis:          item.PDFAnalysis,
			PDFAnalyzedAt:        item.PDFAnalyzedAt,
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
