package handlers

import (
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/localstore"
	"github.com/ukydev/fleet-tracker/internal/models"
)

// FleetStore is the local-first store holding the fleet data.
type FleetStore interface {
	Get() models.FleetData
	Mutate(fn func(models.FleetData) (models.FleetData, error)) (models.FleetData, error)
	Status() localstore.Status
	Subscribe() (<-chan models.FleetData, func())
}

// documentWarningWindow is how far ahead expiring compliance documents are
// reported.
const documentWarningWindow = 30 * 24 * time.Hour

// FleetHandler serves vehicles, service records and company settings.
type FleetHandler struct {
	store  FleetStore
	logger *log.Entry
	now    func() time.Time
}

// NewFleetHandler creates a handler over store.
func NewFleetHandler(store FleetStore, logger *log.Entry) *FleetHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &FleetHandler{
		store:  store,
		logger: logger.WithField("component", "fleet"),
		now:    time.Now,
	}
}

type fleetResponse struct {
	Data models.FleetData  `json:"data"`
	Sync localstore.Status `json:"sync"`
}

// GetFleet returns the whole fleet snapshot with the store's sync state.
func (h *FleetHandler) GetFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, fleetResponse{Data: h.store.Get(), Sync: h.store.Status()})
}

// UpdateSettings replaces the company settings.
func (h *FleetHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.CompanySettings
	if err := decodeJSON(w, r, &settings); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		out := d.Clone()
		out.CompanySettings = settings
		return out, nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to save settings")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListVehicles returns all vehicles. The optional q parameter filters by
// registration number, make or model.
func (h *FleetHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.store.Get().Motorcycles
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeJSON(w, http.StatusOK, vehicles)
		return
	}
	out := []models.Vehicle{}
	for _, v := range vehicles {
		if strings.Contains(strings.ToLower(v.RegistrationNumber), q) ||
			strings.Contains(strings.ToLower(v.Make), q) ||
			strings.Contains(strings.ToLower(v.Model), q) {
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateVehicle adds a vehicle.
func (h *FleetHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var in models.Vehicle
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var created models.Vehicle
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		next, v, err := d.AddVehicle(in, h.now())
		created = v
		return next, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.WithFields(log.Fields{
		"vehicle_id":   created.ID,
		"registration": created.RegistrationNumber,
	}).Info("Vehicle added")
	writeJSON(w, http.StatusCreated, created)
}

// UpdateVehicle replaces the editable fields of a vehicle.
func (h *FleetHandler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var in models.Vehicle
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var updated models.Vehicle
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		next, v, err := d.UpdateVehicle(id, in, h.now())
		updated = v
		return next, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteVehicle removes a vehicle with its service records.
func (h *FleetHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		return d.DeleteVehicle(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.WithField("vehicle_id", id).Info("Vehicle deleted")
	w.WriteHeader(http.StatusNoContent)
}

type dueResponse struct {
	Due               models.ServiceDue       `json:"due"`
	ExpiringDocuments []models.ComplianceDate `json:"expiringDocuments"`
}

// VehicleDue reports the next service and the compliance documents expiring
// within 30 days.
func (h *FleetHandler) VehicleDue(w http.ResponseWriter, r *http.Request) {
	data := h.store.Get()
	v, ok := data.VehicleByID(r.PathValue("id"))
	if !ok {
		http.Error(w, models.ErrVehicleNotFound.Error(), http.StatusNotFound)
		return
	}
	now := h.now()
	resp := dueResponse{
		Due:               v.NextServiceDue(data.ServiceRecords, now),
		ExpiringDocuments: v.ExpiringDocuments(now, documentWarningWindow),
	}
	if resp.ExpiringDocuments == nil {
		resp.ExpiringDocuments = []models.ComplianceDate{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListServiceRecords returns all service records, or those of one vehicle
// newest first when vehicleId is given.
func (h *FleetHandler) ListServiceRecords(w http.ResponseWriter, r *http.Request) {
	data := h.store.Get()
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		writeJSON(w, http.StatusOK, data.ServiceRecords)
		return
	}
	records := data.RecordsFor(vehicleID)
	if records == nil {
		records = []models.ServiceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// CreateServiceRecord logs a service against a vehicle.
func (h *FleetHandler) CreateServiceRecord(w http.ResponseWriter, r *http.Request) {
	var in models.ServiceRecord
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var created models.ServiceRecord
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		next, rec, err := d.AddServiceRecord(in, h.now())
		created = rec
		return next, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.WithFields(log.Fields{
		"record_id":  created.ID,
		"vehicle_id": created.MotorcycleID,
	}).Info("Service record added")
	writeJSON(w, http.StatusCreated, created)
}

// DeleteServiceRecord removes one service record.
func (h *FleetHandler) DeleteServiceRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		return d.DeleteServiceRecord(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
