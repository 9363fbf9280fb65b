package importer

import (
	"database/sql"
	"encoding/xml"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/healthdash/internal/models"
)

// Reasons a row is dropped during parsing.
const (
	SkipMissingValue    = "missing_value"
	SkipNonNumericValue = "non_numeric_value"
	SkipBadTimestamp    = "bad_timestamp"
	SkipMissingDate     = "missing_date"
	SkipBadDate         = "bad_date"
)

func attr(se *xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrString(se *xml.StartElement, name string) sql.NullString {
	v, ok := attr(se, name)
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// parseTimestamp drops the trailing zone offset ("2025-08-16 00:31:43 -0700")
// and reads the remaining local wall-clock time.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(models.TimestampLayout) {
		s = s[:len(models.TimestampLayout)]
	}
	t, err := time.Parse(models.TimestampLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func attrTimestamp(se *xml.StartElement, name string) sql.NullTime {
	v, ok := attr(se, name)
	if !ok {
		return sql.NullTime{}
	}
	t, ok := parseTimestamp(v)
	if !ok {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// attrFloat is lenient: a missing or unparsable attribute is NULL, never 0.
func attrFloat(se *xml.StartElement, name string) sql.NullFloat64 {
	v, ok := attr(se, name)
	if !ok || v == "" {
		return sql.NullFloat64{}
	}
	f, ok := parseFloat(v)
	if !ok {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func attrInt(se *xml.StartElement, name string) sql.NullInt64 {
	v, ok := attr(se, name)
	if !ok || v == "" {
		return sql.NullInt64{}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
