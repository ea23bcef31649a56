package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

var (
	ErrImportHasErrors = errors.New("import has errors")
	ErrNotConfirmed    = errors.New("import not confirmed")
	ErrInvalidMode     = errors.New("invalid import mode")
)

// Mode selects how imported data is combined with the existing data.
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

// ParseMode parses a mode name. An empty name means merge.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// DuplicatePolicy decides what a merge does with an imported vehicle whose
// registration number already exists.
type DuplicatePolicy string

const (
	// DuplicateAppend keeps both vehicles.
	DuplicateAppend DuplicatePolicy = "append"
	// DuplicateUpdateByRegistration overwrites the existing vehicle in place,
	// keeping its id, and points the imported records at it.
	DuplicateUpdateByRegistration DuplicatePolicy = "update"
)

// ParseDuplicatePolicy parses a policy name. An empty name means append.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateAppend:
		return DuplicateAppend, nil
	case DuplicateUpdateByRegistration:
		return DuplicateUpdateByRegistration, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Options control a single Apply call.
type Options struct {
	Mode       Mode
	Duplicates DuplicatePolicy
	// Confirmed must be set once the user accepted ConfirmationPrompt.
	Confirmed bool
}

// ConfirmationPrompt returns the text the user must accept before the import
// is applied in the given mode.
func ConfirmationPrompt(mode Mode, result workbook.ImportResult) string {
	counts := fmt.Sprintf("%d vehicles and %d service records", len(result.Vehicles), len(result.ServiceRecords))
	if mode == ModeReplace {
		return fmt.Sprintf("Replace will permanently delete all existing vehicles and service records and load %s from the file. This cannot be undone. Continue?", counts)
	}
	return fmt.Sprintf("Merge will add %s from the file to your existing data. Vehicles already present may be duplicated. Continue?", counts)
}

// Stats describes the outcome of an applied import.
type Stats struct {
	Mode            Mode `json:"mode"`
	VehiclesAdded   int  `json:"vehiclesAdded"`
	VehiclesUpdated int  `json:"vehiclesUpdated"`
	RecordsAdded    int  `json:"recordsAdded"`
	TotalVehicles   int  `json:"totalVehicles"`
	TotalRecords    int  `json:"totalRecords"`
}

// Apply combines an import result with current and returns the new state.
// current is never modified. A result carrying errors or an unconfirmed
// import is refused and current is returned unchanged.
func Apply(current models.FleetData, result workbook.ImportResult, opts Options) (models.FleetData, Stats, error) {
	if result.HasErrors() {
		return current, Stats{}, fmt.Errorf("%w: %d errors must be resolved first", ErrImportHasErrors, len(result.Errors))
	}
	if !opts.Confirmed {
		return current, Stats{}, ErrNotConfirmed
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeMerge
	}

	out := current.Clone()
	stats := Stats{Mode: mode}
	imported := cloneVehicles(result.Vehicles)
	records := append([]models.ServiceRecord{}, result.ServiceRecords...)

	switch mode {
	case ModeReplace:
		out.Motorcycles = imported
		out.ServiceRecords = records
		stats.VehiclesAdded = len(imported)
	case ModeMerge:
		m := newMerger(out)
		if opts.Duplicates == DuplicateUpdateByRegistration {
			stats.VehiclesAdded, stats.VehiclesUpdated = m.byRegistration(&out, imported)
		} else {
			for _, v := range imported {
				out.Motorcycles = append(out.Motorcycles, m.addVehicle(v))
			}
			stats.VehiclesAdded = len(imported)
		}
		m.addRecords(&out, records, opts.Duplicates == DuplicateUpdateByRegistration)
	default:
		return current, Stats{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	for _, v := range imported {
		out.RememberMakeModel(v.Make, v.Model)
	}
	stats.RecordsAdded = len(records)
	stats.TotalVehicles = len(out.Motorcycles)
	stats.TotalRecords = len(out.ServiceRecords)
	return out.Normalize(), stats, nil
}

// merger keeps ids unique while imported rows join existing data. Imported
// rows reusing an id already present, as a re-imported export does, get a
// fresh id and the imported records follow their vehicle.
type merger struct {
	vehicleIDs map[string]bool
	recordIDs  map[string]int
	remap      map[string]string
}

func newMerger(current models.FleetData) *merger {
	m := &merger{
		vehicleIDs: make(map[string]bool, len(current.Motorcycles)),
		recordIDs:  make(map[string]int, len(current.ServiceRecords)),
		remap:      map[string]string{},
	}
	for _, v := range current.Motorcycles {
		m.vehicleIDs[v.ID] = true
	}
	for i, r := range current.ServiceRecords {
		m.recordIDs[r.ID] = i
	}
	return m
}

func (m *merger) addVehicle(v models.Vehicle) models.Vehicle {
	if m.vehicleIDs[v.ID] {
		id := uuid.NewString()
		m.remap[v.ID] = id
		v.ID = id
	}
	m.vehicleIDs[v.ID] = true
	return v
}

// byRegistration overwrites vehicles sharing a registration number and
// appends the rest. Imported records pointing at a replaced vehicle id are
// remapped to the surviving id.
func (m *merger) byRegistration(out *models.FleetData, imported []models.Vehicle) (added, updated int) {
	index := make(map[string]int, len(out.Motorcycles))
	for i, v := range out.Motorcycles {
		index[strings.ToUpper(v.RegistrationNumber)] = i
	}
	for _, v := range imported {
		i, ok := index[strings.ToUpper(v.RegistrationNumber)]
		if !ok {
			index[strings.ToUpper(v.RegistrationNumber)] = len(out.Motorcycles)
			out.Motorcycles = append(out.Motorcycles, m.addVehicle(v))
			added++
			continue
		}
		existing := out.Motorcycles[i]
		if v.ID != existing.ID {
			m.remap[v.ID] = existing.ID
		}
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		readings := append([]models.KmReading{}, existing.KmReadings...)
		if v.CurrentOdometer != existing.CurrentOdometer {
			readings = append(readings, v.KmReadings...)
		}
		v.KmReadings = readings
		out.Motorcycles[i] = v
		updated++
	}
	return added, updated
}

// addRecords appends records with their vehicle references remapped. A
// record whose id already exists replaces it when overwrite is set and gets
// a fresh id otherwise.
func (m *merger) addRecords(out *models.FleetData, records []models.ServiceRecord, overwrite bool) {
	for _, r := range records {
		if id, ok := m.remap[r.MotorcycleID]; ok {
			r.MotorcycleID = id
		}
		if i, ok := m.recordIDs[r.ID]; ok {
			if overwrite {
				out.ServiceRecords[i] = r
				continue
			}
			r.ID = uuid.NewString()
		}
		m.recordIDs[r.ID] = len(out.ServiceRecords)
		out.ServiceRecords = append(out.ServiceRecords, r)
	}
}

func cloneVehicles(in []models.Vehicle) []models.Vehicle {
	out := make([]models.Vehicle, len(in))
	for i, v := range in {
		v.KmReadings = append([]models.KmReading{}, v.KmReadings...)
		out[i] = v
	}
	return out
}

// Mutator applies an update to persisted fleet data.
type Mutator interface {
	Mutate(fn func(models.FleetData) (models.FleetData, error)) (models.FleetData, error)
}

// Reconciler applies confirmed imports to a store.
type Reconciler struct {
	store  Mutator
	logger *log.Entry
}

// New returns a Reconciler writing to store.
func New(store Mutator, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Reconciler{store: store, logger: logger.WithField("component", "reconcile")}
}

// Apply applies result to the store's current state. On refusal the store is
// not written.
func (r *Reconciler) Apply(result workbook.ImportResult, opts Options) (models.FleetData, Stats, error) {
	var stats Stats
	start := time.Now()
	data, err := r.store.Mutate(func(cur models.FleetData) (models.FleetData, error) {
		next, s, err := Apply(cur, result, opts)
		if err != nil {
			return cur, err
		}
		stats = s
		return next, nil
	})
	if err != nil {
		r.logger.WithFields(log.Fields{
			"mode":   opts.Mode,
			"errors": len(result.Errors),
		}).WithError(err).Warn("Import refused")
		return data, Stats{}, err
	}
	r.logger.WithFields(log.Fields{
		"mode":             stats.Mode,
		"vehicles_added":   stats.VehiclesAdded,
		"vehicles_updated": stats.VehiclesUpdated,
		"records_added":    stats.RecordsAdded,
		"duration":         time.Since(start),
	}).Info("Import applied")
	return data, stats, nil
}
