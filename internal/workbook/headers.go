package workbook

import (
	"strings"
)

// Sheet names of the fleet workbook. They are matched case-sensitively.
const (
	SheetVehicles       = "Vehicles"
	SheetServiceRecords = "ServiceRecords"
	SheetNotes          = "Notes"
)

// Field is one logical column. Aliases are tried in order when reading a row;
// the first alias is the decorated header written into the template.
type Field struct {
	Key      string
	Aliases  []string
	Required bool
}

// Header returns the decorated header used by the template and exports.
func (f Field) Header() string {
	return f.Aliases[0]
}

func field(key, decorated string, required bool) Field {
	aliases := []string{decorated}
	if decorated != key {
		aliases = append(aliases, key)
	}
	return Field{Key: key, Aliases: aliases, Required: required}
}

// Vehicle columns.
var (
	VehicleID             = field("id", "id", false)
	VehicleRegistration   = field("registrationNumber", "registrationNumber*", true)
	VehicleCategory       = field("vehicleCategory", "vehicleCategory (bike/car)", false)
	VehicleType           = field("vehicleType", "vehicleType (private/commercial)", false)
	VehicleMake           = field("make", "make*", true)
	VehicleModel          = field("model", "model*", true)
	VehicleOwner          = field("ownerName", "ownerName", false)
	VehicleChassis        = field("chassisNumber", "chassisNumber", false)
	VehicleEngine         = field("engineNumber", "engineNumber", false)
	VehicleRegValidity    = field("registrationValidity", "registrationValidity (YYYY-MM-DD)", false)
	VehicleInsurance      = field("insuranceValidity", "insuranceValidity (YYYY-MM-DD)", false)
	VehiclePollution      = field("pollutionValidity", "pollutionValidity (YYYY-MM-DD)", false)
	VehicleFitness        = field("fitnessValidity", "fitnessValidity (YYYY-MM-DD)", false)
	VehicleRoadTax        = field("roadTaxValidity", "roadTaxValidity (YYYY-MM-DD)", false)
	VehicleIntervalMonths = field("serviceIntervalMonths", "serviceIntervalMonths", false)
	VehicleIntervalKm     = field("serviceIntervalKm", "serviceIntervalKm", false)
	VehicleOdometer       = field("currentOdometer", "currentOdometer*", true)
)

// VehicleFields is the column order of the Vehicles sheet.
var VehicleFields = []Field{
	VehicleID,
	VehicleRegistration,
	VehicleCategory,
	VehicleType,
	VehicleMake,
	VehicleModel,
	VehicleOwner,
	VehicleChassis,
	VehicleEngine,
	VehicleRegValidity,
	VehicleInsurance,
	VehiclePollution,
	VehicleFitness,
	VehicleRoadTax,
	VehicleIntervalMonths,
	VehicleIntervalKm,
	VehicleOdometer,
}

// Service record columns.
var (
	RecordID            = field("id", "id", false)
	RecordVehicle       = field("vehicleId", "vehicleId*", true)
	RecordDate          = field("date", "date* (YYYY-MM-DD)", true)
	RecordKilometers    = field("kilometers", "kilometers*", true)
	RecordWorkDone      = field("workDone", "workDone*", true)
	RecordAmount        = field("amount", "amount", false)
	RecordGarage        = field("garage", "garage", false)
	RecordMechanic      = field("mechanic", "mechanic", false)
	RecordPartsReplaced = field("partsReplaced", "partsReplaced", false)
	RecordNotes         = field("notes", "notes", false)
)

// ServiceRecordFields is the column order of the ServiceRecords sheet.
var ServiceRecordFields = []Field{
	RecordID,
	RecordVehicle,
	RecordDate,
	RecordKilometers,
	RecordWorkDone,
	RecordAmount,
	RecordGarage,
	RecordMechanic,
	RecordPartsReplaced,
	RecordNotes,
}

// Headers returns the decorated headers of fields, in order.
func Headers(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Header()
	}
	return out
}

// Row is one spreadsheet row keyed by its header cell.
type Row struct {
	Number int
	Values map[string]string
}

// Get returns the value of the first alias column holding a non-empty value.
func (r Row) Get(f Field) string {
	for _, alias := range f.Aliases {
		if v, ok := r.Values[alias]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Blank reports whether every cell of the row is empty.
func (r Row) Blank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
