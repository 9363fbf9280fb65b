// Package export writes stored measurements to columnar files for analysis
// outside the dashboard.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lox/healthdash/internal/models"
)

// rowBuffer is the number of rows handed to the writer per call.
const rowBuffer = 1024

// RecordRow is one row of the records table.
type RecordRow struct {
	Type       string     `parquet:"type,snappy,dict"`
	SourceName *string    `parquet:"source_name,optional,snappy,dict"`
	Unit       *string    `parquet:"unit,optional,snappy,dict"`
	StartDate  time.Time  `parquet:"start_date,snappy"`
	EndDate    *time.Time `parquet:"end_date,optional,snappy"`
	Value      float64    `parquet:"value,snappy"`
}

// RecordSource streams measurements in time order.
type RecordSource interface {
	EachMeasurement(ctx context.Context, fn func(models.Measurement) error) error
}

func recordRow(m models.Measurement) RecordRow {
	row := RecordRow{
		Type:      string(m.Type),
		StartDate: m.StartDate,
		Value:     m.Value,
	}
	if m.SourceName.Valid {
		s := m.SourceName.String
		row.SourceName = &s
	}
	if m.Unit.Valid {
		u := m.Unit.String
		row.Unit = &u
	}
	if m.EndDate.Valid {
		e := m.EndDate.Time
		row.EndDate = &e
	}
	return row
}

// WriteRecordsParquet streams every stored measurement to w and returns the
// number of rows written.
func WriteRecordsParquet(ctx context.Context, src RecordSource, w io.Writer) (int, error) {
	writer := parquet.NewGenericWriter[RecordRow](w)

	buf := make([]RecordRow, 0, rowBuffer)
	total := 0
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := writer.Write(buf)
		total += n
		buf = buf[:0]
		if err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		return nil
	}

	err := src.EachMeasurement(ctx, func(m models.Measurement) error {
		buf = append(buf, recordRow(m))
		if len(buf) == rowBuffer {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		writer.Close()
		return total, err
	}

	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}
	return total, nil
}

// WriteRecordsParquetFile is WriteRecordsParquet into a new file at path.
func WriteRecordsParquetFile(ctx context.Context, src RecordSource, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	n, err := WriteRecordsParquet(ctx, src, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output file: %w", cerr)
	}
	return n, err
}
