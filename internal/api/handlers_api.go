package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lox/healthdash/internal/chart"
)

const (
	defaultImportsLimit = 20
	maxImportsLimit     = 100
)

type importRunView struct {
	ID                string     `json:"id"`
	Source            string     `json:"source"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Success           bool       `json:"success"`
	Records           *int64     `json:"records,omitempty"`
	ActivitySummaries *int64     `json:"activity_summaries,omitempty"`
	Workouts          *int64     `json:"workouts,omitempty"`
	Skipped           *int64     `json:"skipped,omitempty"`
	Error             string     `json:"error,omitempty"`
}

func (s *Server) handleAPIImports(w http.ResponseWriter, r *http.Request) {
	limit := defaultImportsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxImportsLimit)
	}

	runs, err := s.store.RecentImportRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]importRunView, 0, len(runs))
	for _, run := range runs {
		v := importRunView{
			ID:        run.ID,
			Source:    run.Source,
			StartedAt: run.StartedAt,
			Success:   run.Success,
			Error:     run.ErrorMessage.String,
		}
		if run.FinishedAt.Valid {
			v.FinishedAt = &run.FinishedAt.Time
		}
		if run.Records.Valid {
			v.Records = &run.Records.Int64
		}
		if run.ActivitySummaries.Valid {
			v.ActivitySummaries = &run.ActivitySummaries.Int64
		}
		if run.Workouts.Valid {
			v.Workouts = &run.Workouts.Int64
		}
		if run.Skipped.Valid {
			v.Skipped = &run.Skipped.Int64
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleChart renders one dashboard metric over a range as a PNG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m, ok := LookupMetric(q.Get("metric"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown metric")
		return
	}
	p := s.presets.Lookup(q.Get("range"))

	if data, ok := s.charts.Get(m.Key, p.Key); ok {
		servePNG(w, data)
		return
	}

	sr, _, err := s.Series(r.Context(), m.Key, p.Key)
	if err != nil {
		s.log.Error("chart series", "metric", m.Key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := chart.Sparkline(sr, chart.Options{Title: m.Title + " (" + p.Key + ")", Unit: m.Unit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.charts.Set(m.Key, p.Key, data)
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
