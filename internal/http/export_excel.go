package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"github.com/xuri/excelize/v2"
)

const fallEventSheet = "Fall Events"

// FallEventExportHeader 导出表头
var FallEventExportHeader = []string{
	"Time",
	"Fall Detected",
	"Heart Rate (BPM)",
	"Event ID",
}

// GenerateFallEventExport 生成窗口事件的 Excel 文件（按传入顺序写入）
func GenerateFallEventExport(events []models.FallEvent, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(fallEventSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(fallEventSheet, "A1", &FallEventExportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(fallEventSheet, "A1", "D1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for col, width := range []float64{24, 14, 18, 38} {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(fallEventSheet, name, name, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range events {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		fall := "No"
		if e.FallDetected {
			fall = "Yes"
		}
		row := []any{models.FormatSpoken(e.Timestamp, loc), fall, e.HeartRate, e.ID}
		if err := f.SetSheetRow(fallEventSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	return buf.Bytes(), nil
}
