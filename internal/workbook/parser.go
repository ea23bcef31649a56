package workbook

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/normalize"
	"github.com/xuri/excelize/v2"
)

// ImportResult is the outcome of parsing an uploaded workbook. A non-empty
// Errors list blocks reconciliation.
type ImportResult struct {
	Vehicles       []models.Vehicle       `json:"vehicles"`
	ServiceRecords []models.ServiceRecord `json:"serviceRecords"`
	Warnings       []string               `json:"warnings"`
	Errors         []string               `json:"errors"`
}

// HasErrors reports whether the result carries blocking errors.
func (r ImportResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary is the import preview shown before a merge or replace is confirmed.
type Summary struct {
	VehicleCount       int      `json:"vehicleCount"`
	ServiceRecordCount int      `json:"serviceRecordCount"`
	WarningCount       int      `json:"warningCount"`
	ErrorCount         int      `json:"errorCount"`
	Warnings           []string `json:"warnings"`
	Errors             []string `json:"errors"`
}

// Summary returns counts plus the warning and error lists truncated to limit
// entries each. A limit <= 0 keeps every entry.
func (r ImportResult) Summary(limit int) Summary {
	return Summary{
		VehicleCount:       len(r.Vehicles),
		ServiceRecordCount: len(r.ServiceRecords),
		WarningCount:       len(r.Warnings),
		ErrorCount:         len(r.Errors),
		Warnings:           truncate(r.Warnings, limit),
		Errors:             truncate(r.Errors, limit),
	}
}

func truncate(list []string, limit int) []string {
	if limit <= 0 || len(list) <= limit {
		return append([]string{}, list...)
	}
	out := append([]string{}, list[:limit]...)
	return append(out, fmt.Sprintf("... and %d more", len(list)-limit))
}

// Parser turns a fleet workbook into an ImportResult.
type Parser struct {
	// Now dates the first odometer reading of imported vehicles.
	Now func() time.Time
	// NewID generates ids for rows without one.
	NewID func() string
}

// NewParser returns a parser using the wall clock and random UUIDs.
func NewParser() *Parser {
	return &Parser{Now: time.Now, NewID: uuid.NewString}
}

// Parse reads a workbook with the default parser.
func Parse(r io.Reader) ImportResult {
	return NewParser().Parse(r)
}

// ParseFile reads a workbook from disk with the default parser.
func ParseFile(path string) ImportResult {
	return NewParser().ParseFile(path)
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(path string) ImportResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return readFailure(err)
	}
	defer f.Close()
	return p.ParseWorkbook(f)
}

// Parse reads a workbook from r. Malformed data never fails the call: row
// problems are reported in the result, and an unreadable file yields a result
// holding a single error.
func (p *Parser) Parse(r io.Reader) ImportResult {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return readFailure(err)
	}
	defer f.Close()
	return p.ParseWorkbook(f)
}

func readFailure(err error) ImportResult {
	return ImportResult{
		Vehicles:       []models.Vehicle{},
		ServiceRecords: []models.ServiceRecord{},
		Warnings:       []string{},
		Errors:         []string{fmt.Sprintf("Failed to read workbook: %v", err)},
	}
}

// ParseWorkbook parses an already opened workbook.
func (p *Parser) ParseWorkbook(f *excelize.File) ImportResult {
	result := ImportResult{
		Vehicles:       []models.Vehicle{},
		ServiceRecords: []models.ServiceRecord{},
		Warnings:       []string{},
		Errors:         []string{},
	}

	if !hasSheet(f, SheetVehicles) {
		result.Errors = append(result.Errors, fmt.Sprintf("Sheet %q not found in workbook", SheetVehicles))
		return result
	}

	vehicleRows, err := sheetRows(f, SheetVehicles)
	if err != nil {
		return readFailure(err)
	}
	for _, row := range vehicleRows {
		p.parseVehicle(row, &result)
	}

	byRegistration := make(map[string]string, len(result.Vehicles))
	for _, v := range result.Vehicles {
		byRegistration[strings.ToUpper(v.RegistrationNumber)] = v.ID
	}

	if hasSheet(f, SheetServiceRecords) {
		recordRows, err := sheetRows(f, SheetServiceRecords)
		if err != nil {
			return readFailure(err)
		}
		for _, row := range recordRows {
			p.parseServiceRecord(row, byRegistration, &result)
		}
	}

	return result
}

func (p *Parser) parseVehicle(row Row, result *ImportResult) {
	if row.Blank() {
		return
	}
	v := models.Vehicle{
		ID:                   normalize.ToStringSafe(row.Get(VehicleID)),
		RegistrationNumber:   normalize.Upper(row.Get(VehicleRegistration)),
		VehicleCategory:      normalize.NormalizeCategory(row.Get(VehicleCategory)),
		VehicleType:          normalize.NormalizeType(row.Get(VehicleType)),
		Make:                 normalize.ToStringSafe(row.Get(VehicleMake)),
		Model:                normalize.ToStringSafe(row.Get(VehicleModel)),
		OwnerName:            normalize.ToStringSafe(row.Get(VehicleOwner)),
		ChassisNumber:        normalize.Upper(row.Get(VehicleChassis)),
		EngineNumber:         normalize.Upper(row.Get(VehicleEngine)),
		RegistrationValidity: normalize.ToISODate(row.Get(VehicleRegValidity)),
		InsuranceValidity:    normalize.ToISODate(row.Get(VehicleInsurance)),
		PollutionValidity:    normalize.ToISODate(row.Get(VehiclePollution)),
		FitnessValidity:      normalize.ToISODate(row.Get(VehicleFitness)),
		RoadTaxValidity:      normalize.ToISODate(row.Get(VehicleRoadTax)),
		CurrentOdometer:      normalize.ToNumberSafe(row.Get(VehicleOdometer)),
	}

	var missing []string
	if v.Make == "" {
		missing = append(missing, VehicleMake.Key)
	}
	if v.Model == "" {
		missing = append(missing, VehicleModel.Key)
	}
	if v.RegistrationNumber == "" {
		missing = append(missing, VehicleRegistration.Key)
	}
	if v.CurrentOdometer <= 0 {
		missing = append(missing, VehicleOdometer.Key)
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s row %d: missing required fields (%s)",
			SheetVehicles, row.Number, strings.Join(missing, ", ")))
		return
	}

	if v.InsuranceValidity == "" || v.PollutionValidity == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s row %d (%s): insurance or pollution validity date is missing",
			SheetVehicles, row.Number, v.RegistrationNumber))
	}

	v.ServiceIntervalMonths = int(normalize.ParseNumber(row.Get(VehicleIntervalMonths)).Or(models.DefaultServiceIntervalMonths))
	if v.ServiceIntervalMonths <= 0 {
		v.ServiceIntervalMonths = models.DefaultServiceIntervalMonths
	}
	v.ServiceIntervalKm = normalize.ParseNumber(row.Get(VehicleIntervalKm)).Or(models.DefaultServiceIntervalKm)
	if v.ServiceIntervalKm <= 0 {
		v.ServiceIntervalKm = models.DefaultServiceIntervalKm
	}

	now := p.Now()
	if v.ID == "" {
		v.ID = p.NewID()
	}
	v.CreatedAt = now
	v.KmReadings = []models.KmReading{{
		ID:         p.NewID(),
		Date:       now.Format(models.DateLayout),
		Kilometers: v.CurrentOdometer,
	}}
	result.Vehicles = append(result.Vehicles, v)
}

func (p *Parser) parseServiceRecord(row Row, byRegistration map[string]string, result *ImportResult) {
	rawVehicle := normalize.ToStringSafe(row.Get(RecordVehicle))
	rawDate := normalize.ToStringSafe(row.Get(RecordDate))
	rawKm := normalize.ToStringSafe(row.Get(RecordKilometers))
	workDone := normalize.ToStringSafe(row.Get(RecordWorkDone))

	if rawVehicle == "" && rawDate == "" && rawKm == "" && workDone == "" {
		return
	}

	date := normalize.ToISODate(rawDate)
	km := normalize.ToNumberSafe(rawKm)

	var missing []string
	if rawVehicle == "" {
		missing = append(missing, RecordVehicle.Key)
	}
	if date == "" {
		missing = append(missing, RecordDate.Key)
	}
	if km <= 0 {
		missing = append(missing, RecordKilometers.Key)
	}
	if workDone == "" {
		missing = append(missing, RecordWorkDone.Key)
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s row %d: missing required fields (%s)",
			SheetServiceRecords, row.Number, strings.Join(missing, ", ")))
		return
	}

	vehicleID := rawVehicle
	if id, ok := byRegistration[strings.ToUpper(rawVehicle)]; ok {
		vehicleID = id
	}

	rec := models.ServiceRecord{
		ID:            normalize.ToStringSafe(row.Get(RecordID)),
		MotorcycleID:  vehicleID,
		Date:          date,
		Kilometers:    km,
		WorkDone:      workDone,
		Amount:        normalize.ToNumberSafe(row.Get(RecordAmount)),
		Garage:        normalize.ToStringSafe(row.Get(RecordGarage)),
		Mechanic:      normalize.ToStringSafe(row.Get(RecordMechanic)),
		PartsReplaced: normalize.ToStringSafe(row.Get(RecordPartsReplaced)),
		Notes:         normalize.ToStringSafe(row.Get(RecordNotes)),
		CreatedAt:     p.Now(),
	}
	if rec.ID == "" {
		rec.ID = p.NewID()
	}
	result.ServiceRecords = append(result.ServiceRecords, rec)
}

func hasSheet(f *excelize.File, name string) bool {
	for _, s := range f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

// sheetRows converts a sheet into header-keyed rows. Missing cells read as "".
// Row numbers are the 1-based spreadsheet rows, so the first data row is 2.
func sheetRows(f *excelize.File, sheet string) ([]Row, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	out := make([]Row, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		values := make(map[string]string, len(headers))
		for col, h := range headers {
			if h == "" {
				continue
			}
			if col < len(cells) {
				values[h] = cells[col]
			} else {
				values[h] = ""
			}
		}
		out = append(out, Row{Number: i + 2, Values: values})
	}
	return out, nil
}
