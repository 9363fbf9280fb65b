// Package api serves the dashboard page and its JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/healthdash/internal/chart"
	"github.com/lox/healthdash/internal/config"
	"github.com/lox/healthdash/internal/importer"
	"github.com/lox/healthdash/internal/logging"
	"github.com/lox/healthdash/internal/series"
	"github.com/lox/healthdash/internal/store"
)

// Options are the server settings that come from the command line.
type Options struct {
	Port           string
	UploadPassword string
	ChartTTL       time.Duration
}

type Server struct {
	store    *store.Store
	importer *importer.Importer
	engine   *series.Engine
	presets  config.Presets
	opts     Options
	tmpl     *template.Template
	charts   *chart.Cache
	log      *slog.Logger
}

func NewServer(st *store.Store, im *importer.Importer, presets config.Presets, opts Options) *Server {
	if presets == nil {
		presets = config.DefaultPresets()
	}
	if opts.ChartTTL <= 0 {
		opts.ChartTTL = 5 * time.Minute
	}
	return &Server{
		store:    st,
		importer: im,
		engine:   series.NewEngine(st),
		presets:  presets,
		opts:     opts,
		tmpl:     newTemplates(),
		charts:   chart.NewCache(opts.ChartTTL),
		log:      logging.Component("api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.instrument("index", s.handleIndex))
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("GET /api/data", s.instrument("data", s.handleAPIData))
	mux.HandleFunc("GET /api/snapshot", s.instrument("snapshot", s.handleAPISnapshot))
	mux.HandleFunc("GET /api/imports", s.instrument("imports", s.handleAPIImports))
	mux.HandleFunc("GET /api/chart.png", s.instrument("chart", s.handleChart))
	mux.HandleFunc("POST /api/upload", s.instrument("upload", s.handleUpload))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type HealthStatus struct {
	Status          string     `json:"status"`
	HasData         bool       `json:"has_data"`
	LatestTimestamp *string    `json:"latest_timestamp"`
	MigrationVer    int        `json:"migration_version"`
	LastImport      *time.Time `json:"last_import,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	latest, ok, err := s.store.LatestTimestamp(r.Context())
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, health)
		return
	}
	if ok {
		health.HasData = true
		ts := latest.Format(series.Hourly.LabelLayout())
		health.LatestTimestamp = &ts
	}

	if v, err := s.store.MigrationVersion(); err == nil {
		health.MigrationVer = v
	}
	if runs, err := s.store.RecentImportRuns(r.Context(), 1); err == nil && len(runs) > 0 {
		health.LastImport = &runs[0].StartedAt
	}

	writeJSON(w, http.StatusOK, health)
}
