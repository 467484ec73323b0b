package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"thermo-cloud/internal/analytics/domain/statistic"
	readings "thermo-cloud/internal/readings/domain"
)

// Report is the input of BuildReportPDF.
type Report struct {
	Hours       int
	GeneratedAt time.Time
	Snapshot    statistic.Snapshot
}

// BuildReportPDF renders a one-page statistics summary.
func BuildReportPDF(report Report, loc *time.Location) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Temperature Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: last %d hours", report.Hours))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", readings.FormatTimestamp(report.GeneratedAt, loc)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	for _, title := range []string{"Sensor", "Count", "Min", "Max", "Avg", "Current"} {
		pdf.CellFormat(30, 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, sensor := range readings.Sensors {
		stat := report.Snapshot[sensor]
		pdf.CellFormat(30, 6, string(sensor), "1", 0, "C", false, 0, "")
		if stat == nil {
			pdf.CellFormat(150, 6, "no data", "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
			continue
		}
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", stat.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f @ %s", stat.Min.Val, stat.Min.Time), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f @ %s", stat.Max.Val, stat.Max.Time), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", stat.Avg), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", stat.Current), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
