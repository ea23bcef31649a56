package models

import (
	"time"
)

// VehicleCategory classifies a vehicle as a two-wheeler or a car.
type VehicleCategory string

const (
	CategoryBike VehicleCategory = "bike"
	CategoryCar  VehicleCategory = "car"
)

// VehicleType is the registration class of a vehicle.
type VehicleType string

const (
	TypePrivate    VehicleType = "private"
	TypeCommercial VehicleType = "commercial"
)

// Default maintenance policy applied when a vehicle does not specify one.
const (
	DefaultServiceIntervalMonths = 5
	DefaultServiceIntervalKm     = 5000
)

// DateLayout is the ISO calendar date format used for every stored date.
const DateLayout = "2006-01-02"

// KmReading is one odometer reading in a vehicle's history.
type KmReading struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	Kilometers float64 `json:"kilometers"`
}

// Vehicle represents a tracked bike or car.
type Vehicle struct {
	ID                    string          `json:"id"`
	RegistrationNumber    string          `json:"registrationNumber"`
	VehicleCategory       VehicleCategory `json:"vehicleCategory"`
	VehicleType           VehicleType     `json:"vehicleType"`
	Make                  string          `json:"make"`
	Model                 string          `json:"model"`
	OwnerName             string          `json:"ownerName,omitempty"`
	ChassisNumber         string          `json:"chassisNumber,omitempty"`
	EngineNumber          string          `json:"engineNumber,omitempty"`
	RegistrationValidity  string          `json:"registrationValidity,omitempty"`
	InsuranceValidity     string          `json:"insuranceValidity,omitempty"`
	PollutionValidity     string          `json:"pollutionValidity,omitempty"`
	FitnessValidity       string          `json:"fitnessValidity,omitempty"`
	RoadTaxValidity       string          `json:"roadTaxValidity,omitempty"`
	ServiceIntervalMonths int             `json:"serviceIntervalMonths"`
	ServiceIntervalKm     float64         `json:"serviceIntervalKm"`
	CurrentOdometer       float64         `json:"currentOdometer"`
	KmReadings            []KmReading     `json:"kmReadings"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// ComplianceDates returns the vehicle's compliance dates keyed by field name,
// in a fixed order.
func (v *Vehicle) ComplianceDates() []ComplianceDate {
	return []ComplianceDate{
		{Name: "registrationValidity", Date: v.RegistrationValidity},
		{Name: "insuranceValidity", Date: v.InsuranceValidity},
		{Name: "pollutionValidity", Date: v.PollutionValidity},
		{Name: "fitnessValidity", Date: v.FitnessValidity},
		{Name: "roadTaxValidity", Date: v.RoadTaxValidity},
	}
}

// ComplianceDate is a named validity date of a vehicle.
type ComplianceDate struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// ExpiringDocuments lists the compliance dates that are missing or expire
// before now+within. Unparseable dates count as missing.
func (v *Vehicle) ExpiringDocuments(now time.Time, within time.Duration) []ComplianceDate {
	limit := now.Add(within)
	var out []ComplianceDate
	for _, d := range v.ComplianceDates() {
		if d.Date == "" {
			out = append(out, d)
			continue
		}
		t, err := time.ParseInLocation(DateLayout, d.Date, now.Location())
		if err != nil || t.Before(limit) {
			out = append(out, d)
		}
	}
	return out
}

// ServiceDue describes when a vehicle is next due for service.
type ServiceDue struct {
	VehicleID   string  `json:"vehicleId"`
	LastService string  `json:"lastService,omitempty"`
	DueDate     string  `json:"dueDate"`
	DueKm       float64 `json:"dueKm"`
	Overdue     bool    `json:"overdue"`
}

// NextServiceDue computes the next service date and odometer reading from the
// most recent service record of this vehicle. Without any record the vehicle's
// creation date and first reading are the baseline.
func (v *Vehicle) NextServiceDue(records []ServiceRecord, now time.Time) ServiceDue {
	months := v.ServiceIntervalMonths
	if months <= 0 {
		months = DefaultServiceIntervalMonths
	}
	km := v.ServiceIntervalKm
	if km <= 0 {
		km = DefaultServiceIntervalKm
	}

	due := ServiceDue{VehicleID: v.ID}
	baseDate := v.CreatedAt
	baseKm := 0.0
	if len(v.KmReadings) > 0 {
		baseKm = v.KmReadings[0].Kilometers
	}

	var last *ServiceRecord
	for i := range records {
		r := &records[i]
		if r.MotorcycleID != v.ID {
			continue
		}
		if last == nil || r.Date > last.Date {
			last = r
		}
	}
	if last != nil {
		if t, err := time.ParseInLocation(DateLayout, last.Date, now.Location()); err == nil {
			baseDate = t
		}
		baseKm = last.Kilometers
		due.LastService = last.Date
	}
	if baseDate.IsZero() {
		baseDate = now
	}

	dueDate := baseDate.AddDate(0, months, 0)
	due.DueDate = dueDate.Format(DateLayout)
	due.DueKm = baseKm + km
	due.Overdue = !now.Before(dueDate) || v.CurrentOdometer >= due.DueKm
	return due
}
