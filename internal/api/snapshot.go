package api

import (
	"database/sql"
	"math"
	"net/http"

	"github.com/lox/healthdash/internal/models"
)

// SnapshotResponse is the header-card payload for the latest data day.
type SnapshotResponse struct {
	LatestGlucose   *int64  `json:"latest_glucose"`
	TotalSteps      *int64  `json:"total_steps"`
	ExerciseMinutes *int64  `json:"exercise_minutes"`
	AsOf            *string `json:"as_of"`
}

func roundInt(v sql.NullFloat64) *int64 {
	if !v.Valid {
		return nil
	}
	i := int64(math.Round(v.Float64))
	return &i
}

// truncInt drops the fraction, as whole steps and minutes are reported.
func truncInt(v sql.NullFloat64) *int64 {
	if !v.Valid {
		return nil
	}
	i := int64(v.Float64)
	return &i
}

func (s *Server) handleAPISnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context())
	if err != nil {
		s.log.Error("snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SnapshotResponse{
		LatestGlucose:   roundInt(snap.LatestGlucose),
		TotalSteps:      truncInt(snap.TotalSteps),
		ExerciseMinutes: truncInt(snap.ExerciseMinutes),
	}
	if snap.AsOf.Valid {
		d := models.FormatDate(snap.AsOf.Time)
		resp.AsOf = &d
	}
	writeJSON(w, http.StatusOK, resp)
}
