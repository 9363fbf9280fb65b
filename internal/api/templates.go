package api

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*
var templateFS embed.FS

func newTemplates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

type indexMetric struct {
	Key   string
	Title string
	Unit  string
}

type IndexData struct {
	Ranges       []string
	DefaultRange string
	Metrics      []indexMetric
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := IndexData{
		Ranges:       s.presets.Keys(),
		DefaultRange: s.presets.Lookup("").Key,
	}
	for _, m := range Metrics {
		data.Metrics = append(data.Metrics, indexMetric{Key: m.Key, Title: m.Title, Unit: m.Unit})
	}
	ex, _ := LookupMetric(exerciseMinutesKey)
	data.Metrics = append(data.Metrics, indexMetric{Key: ex.Key, Title: ex.Title, Unit: ex.Unit})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("render index", "error", err)
	}
}
