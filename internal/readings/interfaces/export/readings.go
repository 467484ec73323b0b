package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	readings "thermo-cloud/internal/readings/domain"
)

// Build renders rows in the requested format.
func Build(format Format, rows []readings.Reading, loc *time.Location) ([]byte, error) {
	switch format {
	case FormatCSV:
		return BuildCSV(rows, loc)
	case FormatXLSX:
		return BuildXLSX(rows, loc)
	case FormatParquet:
		return BuildParquet(rows, loc)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// BuildCSV renders rows as CSV with a header line. Absent values are empty cells.
func BuildCSV(rows []readings.Reading, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			readings.FormatTimestamp(row.Timestamp, loc),
			formatValue(row.T1),
			formatValue(row.T2),
			formatValue(row.T3),
			row.Status,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders rows into a single "readings" sheet.
func BuildXLSX(rows []readings.Reading, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "readings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), readings.FormatTimestamp(row.Timestamp, loc))
		setOptional(f, sheet, fmt.Sprintf("C%d", line), row.T1)
		setOptional(f, sheet, fmt.Sprintf("D%d", line), row.T2)
		setOptional(f, sheet, fmt.Sprintf("E%d", line), row.T3)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", line), row.Status)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadingRow is the Parquet layout of one reading.
type ReadingRow struct {
	ID          int64    `parquet:"id"`
	TimestampMs int64    `parquet:"timestamp_ms"`
	Timestamp   string   `parquet:"timestamp,zstd"`
	T1          *float64 `parquet:"t1,optional"`
	T2          *float64 `parquet:"t2,optional"`
	T3          *float64 `parquet:"t3,optional"`
	Status      string   `parquet:"sensor_status,zstd"`
}

// BuildParquet renders rows as a zstd-compressed Parquet file.
func BuildParquet(rows []readings.Reading, loc *time.Location) ([]byte, error) {
	out := make([]ReadingRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, ReadingRow{
			ID:          row.ID,
			TimestampMs: row.Timestamp.UnixMilli(),
			Timestamp:   readings.FormatTimestamp(row.Timestamp, loc),
			T1:          row.T1,
			T2:          row.T2,
			T3:          row.T3,
			Status:      row.Status,
		})
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[ReadingRow](&buf, parquet.Compression(&parquet.Zstd))
	if _, err := writer.Write(out); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func setOptional(f *excelize.File, sheet, cell string, v *float64) {
	if v == nil {
		return
	}
	_ = f.SetCellValue(sheet, cell, *v)
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
