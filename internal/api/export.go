package api

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

const historySheet = "History"

var historyHeaders = []string{"Time (UTC)", "Slot", "Name", "Value", "Unit"}

var historyColumnWidths = []float64{24, 8, 28, 16, 10}

// buildHistoryWorkbook renders readings as an XLSX workbook. Numeric values
// are written as numbers so spreadsheets can chart them.
func buildHistoryWorkbook(sl *slot.Slot, readings []telemetry.Reading) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	//nolint:errcheck // default sheet always exists on a new file
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for col, header := range historyHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close() //nolint:errcheck // already failing
			return nil, err
		}
		if err := f.SetCellValue(historySheet, cell, header); err != nil {
			f.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("writing header %q: %w", header, err)
		}
		if err := f.SetCellStyle(historySheet, cell, cell, headerStyle); err != nil {
			f.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("styling header %q: %w", header, err)
		}
	}

	for i, width := range historyColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close() //nolint:errcheck // already failing
			return nil, err
		}
		if err := f.SetColWidth(historySheet, col, col, width); err != nil {
			f.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}

	for i, reading := range readings {
		row := i + 2
		var value any = reading.Value
		if v, ok := telemetry.ParseNumeric(reading.Value); ok {
			value = v
		}
		cells := []any{
			reading.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			reading.SlotNumber,
			sl.Name,
			value,
			sl.Unit,
		}
		for col, v := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close() //nolint:errcheck // already failing
				return nil, err
			}
			if err := f.SetCellValue(historySheet, cell, v); err != nil {
				f.Close() //nolint:errcheck // already failing
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("freezing header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
