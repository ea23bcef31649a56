package workbook

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateFileName is the download name of the import template.
const TemplateFileName = "fleet_template.xlsx"

var exampleVehicle = []any{
	"",
	"MH01AB1234",
	"bike",
	"private",
	"Honda",
	"Activa 6G",
	"Rahul Sharma",
	"ME4JF50AAL1234567",
	"JF50E1234567",
	"2035-03-14",
	"2026-03-14",
	"2025-09-14",
	"",
	"2035-03-14",
	5,
	5000,
	15000,
}

var exampleServiceRecord = []any{
	"",
	"MH01AB1234",
	"2025-01-10",
	14500,
	"General service, engine oil change",
	850,
	"City Motors",
	"Suresh",
	"Oil filter, engine oil",
	"Chain lubricated",
}

var templateNotes = []string{
	"How to use this template",
	"",
	"1. Fill one vehicle per row in the Vehicles sheet. Columns marked * are required.",
	"2. registrationNumber is stored in uppercase and is used to link service records.",
	"3. vehicleCategory is bike or car; vehicleType is private or commercial. Anything else falls back to bike / commercial.",
	"4. Dates use YYYY-MM-DD. Spreadsheet date cells are accepted too.",
	"5. currentOdometer must be a number greater than zero. Thousands separators are allowed.",
	"6. serviceIntervalMonths and serviceIntervalKm default to 5 months and 5000 km when left empty.",
	"7. In ServiceRecords, vehicleId may be the vehicle's id or its registrationNumber.",
	"8. A ServiceRecords row with vehicleId, date, kilometers and workDone all empty is ignored.",
	"9. Leave id empty to have one generated. Delete the example rows before importing.",
	"10. Import in merge mode to add to the existing data, or replace mode to overwrite it.",
}

// sheetWriter writes header rows with a shared bold style.
type sheetWriter struct {
	f           *excelize.File
	headerStyle int
}

func newSheetWriter() (*sheetWriter, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &sheetWriter{f: f, headerStyle: style}, nil
}

func (w *sheetWriter) addSheet(name string, headers []string) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	if len(headers) == 0 {
		return nil
	}
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := w.f.SetSheetRow(name, "A1", &row); err != nil {
		return fmt.Errorf("write headers of %s: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(name, "A1", last, w.headerStyle); err != nil {
		return fmt.Errorf("style headers of %s: %w", name, err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return w.f.SetColWidth(name, "A", lastCol, 22)
}

func (w *sheetWriter) writeRow(sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", rowNum, sheet, err)
	}
	return nil
}

// finish drops the default sheet and activates the first one.
func (w *sheetWriter) finish() (*excelize.File, error) {
	if err := w.f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	idx, err := w.f.GetSheetIndex(SheetVehicles)
	if err == nil && idx >= 0 {
		w.f.SetActiveSheet(idx)
	}
	return w.f, nil
}

// BuildTemplate creates the import template: a Vehicles and a ServiceRecords
// sheet with decorated headers and one example row each, plus Notes.
func BuildTemplate() (*excelize.File, error) {
	w, err := newSheetWriter()
	if err != nil {
		return nil, err
	}
	if err := buildTemplate(w); err != nil {
		w.f.Close()
		return nil, err
	}
	return w.finish()
}

func buildTemplate(w *sheetWriter) error {
	if err := w.addSheet(SheetVehicles, Headers(VehicleFields)); err != nil {
		return err
	}
	if err := w.writeRow(SheetVehicles, 2, exampleVehicle); err != nil {
		return err
	}
	if err := w.addSheet(SheetServiceRecords, Headers(ServiceRecordFields)); err != nil {
		return err
	}
	if err := w.writeRow(SheetServiceRecords, 2, exampleServiceRecord); err != nil {
		return err
	}
	if err := w.addSheet(SheetNotes, nil); err != nil {
		return err
	}
	for i, line := range templateNotes {
		if err := w.writeRow(SheetNotes, i+1, []any{line}); err != nil {
			return err
		}
	}
	return w.f.SetColWidth(SheetNotes, "A", "A", 110)
}

// WriteTemplate writes the template workbook to out.
func WriteTemplate(out io.Writer) error {
	f, err := BuildTemplate()
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
