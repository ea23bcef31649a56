package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/reconcile"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Failed to encode response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrVehicleNotFound), errors.Is(err, models.ErrServiceRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidVehicle), errors.Is(err, models.ErrInvalidServiceRecord),
		errors.Is(err, reconcile.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrImportHasErrors):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrNotConfirmed):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	http.Error(w, msg, status)
}
