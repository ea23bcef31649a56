package workbook

import (
	"fmt"
	"io"
	"time"

	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/xuri/excelize/v2"
)

// ExportFileName returns the download name of a data export made at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("fleet_export_%s.xlsx", t.Format(models.DateLayout))
}

func vehicleRow(v models.Vehicle) []any {
	return []any{
		v.ID,
		v.RegistrationNumber,
		string(v.VehicleCategory),
		string(v.VehicleType),
		v.Make,
		v.Model,
		v.OwnerName,
		v.ChassisNumber,
		v.EngineNumber,
		v.RegistrationValidity,
		v.InsuranceValidity,
		v.PollutionValidity,
		v.FitnessValidity,
		v.RoadTaxValidity,
		v.ServiceIntervalMonths,
		v.ServiceIntervalKm,
		v.CurrentOdometer,
	}
}

func serviceRecordRow(r models.ServiceRecord) []any {
	return []any{
		r.ID,
		r.MotorcycleID,
		r.Date,
		r.Kilometers,
		r.WorkDone,
		r.Amount,
		r.Garage,
		r.Mechanic,
		r.PartsReplaced,
		r.Notes,
	}
}

// BuildExport writes the current vehicles and service records using the
// template's columns, so an export can be imported again.
func BuildExport(data models.FleetData) (*excelize.File, error) {
	w, err := newSheetWriter()
	if err != nil {
		return nil, err
	}
	if err := buildExport(w, data); err != nil {
		w.f.Close()
		return nil, err
	}
	return w.finish()
}

func buildExport(w *sheetWriter, data models.FleetData) error {
	if err := w.addSheet(SheetVehicles, Headers(VehicleFields)); err != nil {
		return err
	}
	for i, v := range data.Motorcycles {
		if err := w.writeRow(SheetVehicles, i+2, vehicleRow(v)); err != nil {
			return err
		}
	}
	if err := w.addSheet(SheetServiceRecords, Headers(ServiceRecordFields)); err != nil {
		return err
	}
	for i, r := range data.ServiceRecords {
		if err := w.writeRow(SheetServiceRecords, i+2, serviceRecordRow(r)); err != nil {
			return err
		}
	}
	if err := w.addSheet(SheetNotes, nil); err != nil {
		return err
	}
	notes := []string{
		fmt.Sprintf("Exported %d vehicles and %d service records.", len(data.Motorcycles), len(data.ServiceRecords)),
	}
	if data.CompanySettings.CompanyName != "" {
		notes = append(notes, "Company: "+data.CompanySettings.CompanyName)
	}
	for i, line := range notes {
		if err := w.writeRow(SheetNotes, i+1, []any{line}); err != nil {
			return err
		}
	}
	return nil
}

// WriteExport writes the data export workbook to out.
func WriteExport(out io.Writer, data models.FleetData) error {
	f, err := BuildExport(data)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// SaveExport writes the data export workbook to path.
func SaveExport(path string, data models.FleetData) error {
	f, err := BuildExport(data)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save export %s: %w", path, err)
	}
	return nil
}
