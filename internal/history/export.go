package history

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	tracking "geotrack-cloud/internal/tracking/domain"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// BuildTrackXLSX renders a compacted track as a spreadsheet, one row
// per cluster element.
func BuildTrackXLSX(device *tracking.Device, clusters []ClusterPoint) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "track"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Device")
	_ = f.SetCellValue(sheet, "B1", device.DeviceID)
	_ = f.SetCellValue(sheet, "A2", "Exported")
	_ = f.SetCellValue(sheet, "B2", time.Now().UTC().Format(exportTimeLayout))

	headers := []string{"Latitude", "Longitude", "From", "To", "Points"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, c := range clusters {
		row := i + 5
		lat, lon, from, to, count := exportFields(c)
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), lat)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), lon)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), from.Format(exportTimeLayout))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), to.Format(exportTimeLayout))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), count)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTrackPDF renders a compacted track as a minimal PDF table.
func BuildTrackPDF(device *tracking.Device, clusters []ClusterPoint) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Track History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", device.DeviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Elements: %d", len(clusters)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(30, 6, "Latitude", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Longitude", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "From", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Points", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, c := range clusters {
		lat, lon, from, to, count := exportFields(c)
		pdf.CellFormat(30, 6, fmt.Sprintf("%.6f", lat), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.6f", lon), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, from.Format(exportTimeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, to.Format(exportTimeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportFields(c ClusterPoint) (lat, lon float64, from, to time.Time, count int) {
	if c.Original != nil {
		return c.Original.Lat, c.Original.Lon, c.Original.Timestamp, c.Original.Timestamp, 1
	}
	return c.Lat, c.Lon, c.StartTime, c.EndTime, len(c.OriginalPoints)
}
