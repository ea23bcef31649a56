package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVehicleNotFound       = errors.New("vehicle not found")
	ErrServiceRecordNotFound = errors.New("service record not found")
	ErrInvalidVehicle        = errors.New("make, model, registrationNumber and currentOdometer are required")
	ErrInvalidServiceRecord  = errors.New("motorcycleId, date, kilometers and workDone are required")
)

// CompanySettings holds the owner details printed on exports.
type CompanySettings struct {
	CompanyName string `json:"companyName"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	LogoURL     string `json:"logoUrl"`
}

// FleetData is the whole persisted state of the fleet tracker for one user.
type FleetData struct {
	Motorcycles     []Vehicle           `json:"motorcycles"`
	ServiceRecords  []ServiceRecord     `json:"serviceRecords"`
	SavedMakes      []string            `json:"savedMakes"`
	SavedModels     map[string][]string `json:"savedModels"`
	CompanySettings CompanySettings     `json:"companySettings"`
	LastBackup      *time.Time          `json:"lastBackup,omitempty"`
}

// DefaultFleetData returns the empty state used when nothing is cached.
func DefaultFleetData() FleetData {
	return FleetData{
		Motorcycles:    []Vehicle{},
		ServiceRecords: []ServiceRecord{},
		SavedMakes:     []string{},
		SavedModels:    map[string][]string{},
	}
}

// Normalize replaces nil collections with empty ones.
func (d FleetData) Normalize() FleetData {
	if d.Motorcycles == nil {
		d.Motorcycles = []Vehicle{}
	}
	if d.ServiceRecords == nil {
		d.ServiceRecords = []ServiceRecord{}
	}
	if d.SavedMakes == nil {
		d.SavedMakes = []string{}
	}
	if d.SavedModels == nil {
		d.SavedModels = map[string][]string{}
	}
	for i := range d.Motorcycles {
		if d.Motorcycles[i].KmReadings == nil {
			d.Motorcycles[i].KmReadings = []KmReading{}
		}
	}
	return d
}

// Clone returns a copy that shares no slices or maps with d.
func (d FleetData) Clone() FleetData {
	out := d
	out.Motorcycles = make([]Vehicle, len(d.Motorcycles))
	for i, v := range d.Motorcycles {
		v.KmReadings = append([]KmReading(nil), v.KmReadings...)
		out.Motorcycles[i] = v
	}
	out.ServiceRecords = append([]ServiceRecord(nil), d.ServiceRecords...)
	out.SavedMakes = append([]string(nil), d.SavedMakes...)
	out.SavedModels = make(map[string][]string, len(d.SavedModels))
	for k, v := range d.SavedModels {
		out.SavedModels[k] = append([]string(nil), v...)
	}
	if d.LastBackup != nil {
		t := *d.LastBackup
		out.LastBackup = &t
	}
	return out.Normalize()
}

// VehicleByID returns the vehicle with the given id.
func (d FleetData) VehicleByID(id string) (Vehicle, bool) {
	for _, v := range d.Motorcycles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

// RememberMakeModel records a make and model in the saved suggestion lists.
func (d *FleetData) RememberMakeModel(vehicleMake, vehicleModel string) {
	vehicleMake = strings.TrimSpace(vehicleMake)
	vehicleModel = strings.TrimSpace(vehicleModel)
	if vehicleMake == "" {
		return
	}
	if d.SavedModels == nil {
		d.SavedModels = map[string][]string{}
	}
	if !containsFold(d.SavedMakes, vehicleMake) {
		d.SavedMakes = append(d.SavedMakes, vehicleMake)
		sort.Strings(d.SavedMakes)
	}
	if vehicleModel != "" && !containsFold(d.SavedModels[vehicleMake], vehicleModel) {
		d.SavedModels[vehicleMake] = append(d.SavedModels[vehicleMake], vehicleModel)
		sort.Strings(d.SavedModels[vehicleMake])
	}
}

// NewKmReading returns an odometer reading dated on the given day.
func NewKmReading(day time.Time, km float64) KmReading {
	return KmReading{ID: uuid.NewString(), Date: day.Format(DateLayout), Kilometers: km}
}

// PrepareVehicle fills generated and defaulted fields of a new vehicle.
func PrepareVehicle(v Vehicle, now time.Time) (Vehicle, error) {
	v.RegistrationNumber = strings.ToUpper(strings.TrimSpace(v.RegistrationNumber))
	v.ChassisNumber = strings.ToUpper(strings.TrimSpace(v.ChassisNumber))
	v.EngineNumber = strings.ToUpper(strings.TrimSpace(v.EngineNumber))
	if v.Make == "" || v.Model == "" || v.RegistrationNumber == "" || v.CurrentOdometer <= 0 {
		return v, ErrInvalidVehicle
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.VehicleCategory != CategoryCar {
		v.VehicleCategory = CategoryBike
	}
	if v.VehicleType != TypePrivate {
		v.VehicleType = TypeCommercial
	}
	if v.ServiceIntervalMonths <= 0 {
		v.ServiceIntervalMonths = DefaultServiceIntervalMonths
	}
	if v.ServiceIntervalKm <= 0 {
		v.ServiceIntervalKm = DefaultServiceIntervalKm
	}
	if len(v.KmReadings) == 0 {
		v.KmReadings = []KmReading{NewKmReading(now, v.CurrentOdometer)}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	return v, nil
}

// AddVehicle appends a validated vehicle and returns the new state.
func (d FleetData) AddVehicle(v Vehicle, now time.Time) (FleetData, Vehicle, error) {
	v, err := PrepareVehicle(v, now)
	if err != nil {
		return d, v, err
	}
	out := d.Clone()
	out.Motorcycles = append(out.Motorcycles, v)
	out.RememberMakeModel(v.Make, v.Model)
	return out, v, nil
}

// UpdateVehicle replaces the editable fields of an existing vehicle. A changed
// odometer value is appended to the reading history.
func (d FleetData) UpdateVehicle(id string, upd Vehicle, now time.Time) (FleetData, Vehicle, error) {
	out := d.Clone()
	for i := range out.Motorcycles {
		cur := &out.Motorcycles[i]
		if cur.ID != id {
			continue
		}
		upd.ID = cur.ID
		upd.CreatedAt = cur.CreatedAt
		upd.KmReadings = cur.KmReadings
		prepared, err := PrepareVehicle(upd, now)
		if err != nil {
			return d, upd, err
		}
		if prepared.CurrentOdometer != cur.CurrentOdometer {
			prepared.KmReadings = append(prepared.KmReadings, NewKmReading(now, prepared.CurrentOdometer))
		}
		*cur = prepared
		out.RememberMakeModel(prepared.Make, prepared.Model)
		return out, prepared, nil
	}
	return d, upd, fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
}

// DeleteVehicle removes a vehicle and its service records.
func (d FleetData) DeleteVehicle(id string) (FleetData, error) {
	if _, ok := d.VehicleByID(id); !ok {
		return d, fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
	}
	out := d.Clone()
	vehicles := out.Motorcycles[:0]
	for _, v := range out.Motorcycles {
		if v.ID != id {
			vehicles = append(vehicles, v)
		}
	}
	out.Motorcycles = vehicles
	records := out.ServiceRecords[:0]
	for _, r := range out.ServiceRecords {
		if r.MotorcycleID != id {
			records = append(records, r)
		}
	}
	out.ServiceRecords = records
	return out, nil
}

// AddServiceRecord appends a service record. When its kilometers exceed the
// vehicle's odometer the odometer is raised and a reading is appended.
func (d FleetData) AddServiceRecord(r ServiceRecord, now time.Time) (FleetData, ServiceRecord, error) {
	if r.MotorcycleID == "" || r.Date == "" || r.Kilometers <= 0 || strings.TrimSpace(r.WorkDone) == "" {
		return d, r, ErrInvalidServiceRecord
	}
	if _, ok := d.VehicleByID(r.MotorcycleID); !ok {
		return d, r, fmt.Errorf("%w: %s", ErrVehicleNotFound, r.MotorcycleID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	out := d.Clone()
	out.ServiceRecords = append(out.ServiceRecords, r)
	for i := range out.Motorcycles {
		v := &out.Motorcycles[i]
		if v.ID == r.MotorcycleID && r.Kilometers > v.CurrentOdometer {
			v.CurrentOdometer = r.Kilometers
			v.KmReadings = append(v.KmReadings, KmReading{ID: uuid.NewString(), Date: r.Date, Kilometers: r.Kilometers})
		}
	}
	return out, r, nil
}

// DeleteServiceRecord removes a service record by id.
func (d FleetData) DeleteServiceRecord(id string) (FleetData, error) {
	out := d.Clone()
	for i, r := range out.ServiceRecords {
		if r.ID == id {
			out.ServiceRecords = append(out.ServiceRecords[:i], out.ServiceRecords[i+1:]...)
			return out, nil
		}
	}
	return d, fmt.Errorf("%w: %s", ErrServiceRecordNotFound, id)
}

// RecordsFor returns the service records of one vehicle, newest first.
func (d FleetData) RecordsFor(vehicleID string) []ServiceRecord {
	var out []ServiceRecord
	for _, r := range d.ServiceRecords {
		if r.MotorcycleID == vehicleID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
