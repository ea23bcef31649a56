package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/middleware"
	"github.com/ukydev/fleet-tracker/internal/models"
)

// RouterConfig holds the handlers and middleware served by NewRouter.
type RouterConfig struct {
	Auth    *AuthHandler
	Fleet   *FleetHandler
	Imports *ImportHandler
	Sync    *SyncHandler

	AuthMiddleware *middleware.AuthMiddleware
	// RateLimit guards login, registration and imports. Nil disables it.
	RateLimit func(http.Handler) http.Handler
	Logger    *log.Entry
}

// NewRouter builds the API mux. Until the first account is registered every
// route works without signing in; a valid bearer token attaches a user whose
// role is then checked.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	am := cfg.AuthMiddleware
	limit := cfg.RateLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	permit := func(action string, h http.HandlerFunc) http.Handler {
		return am.PermitAction(action)(h)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("POST /api/auth/register", limit(permit(models.ActionManageUsers, cfg.Auth.Register)))
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(cfg.Auth.Login)))
	mux.Handle("POST /api/auth/logout", am.RequireAuth(http.HandlerFunc(cfg.Auth.Logout)))
	mux.Handle("GET /api/auth/profile", am.RequireAuth(http.HandlerFunc(cfg.Auth.GetProfile)))
	mux.Handle("PUT /api/auth/profile", am.RequireAuth(http.HandlerFunc(cfg.Auth.UpdateProfile)))
	mux.Handle("POST /api/auth/password", am.RequireAuth(http.HandlerFunc(cfg.Auth.ChangePassword)))

	mux.Handle("GET /api/fleet", permit(models.ActionViewFleet, cfg.Fleet.GetFleet))
	mux.Handle("PUT /api/fleet/settings", permit(models.ActionEditFleet, cfg.Fleet.UpdateSettings))
	mux.Handle("GET /api/vehicles", permit(models.ActionViewFleet, cfg.Fleet.ListVehicles))
	mux.Handle("POST /api/vehicles", permit(models.ActionEditFleet, cfg.Fleet.CreateVehicle))
	mux.Handle("PUT /api/vehicles/{id}", permit(models.ActionEditFleet, cfg.Fleet.UpdateVehicle))
	mux.Handle("DELETE /api/vehicles/{id}", permit(models.ActionEditFleet, cfg.Fleet.DeleteVehicle))
	mux.Handle("GET /api/vehicles/{id}/due", permit(models.ActionViewFleet, cfg.Fleet.VehicleDue))
	mux.Handle("GET /api/service-records", permit(models.ActionViewFleet, cfg.Fleet.ListServiceRecords))
	mux.Handle("POST /api/service-records", permit(models.ActionEditFleet, cfg.Fleet.CreateServiceRecord))
	mux.Handle("DELETE /api/service-records/{id}", permit(models.ActionEditFleet, cfg.Fleet.DeleteServiceRecord))

	mux.Handle("GET /api/import/template", permit(models.ActionViewFleet, cfg.Imports.Template))
	mux.Handle("POST /api/import/preview", limit(permit(models.ActionImportFleet, cfg.Imports.Preview)))
	mux.Handle("POST /api/import/apply", limit(permit(models.ActionImportFleet, cfg.Imports.Apply)))
	mux.Handle("GET /api/export", permit(models.ActionExportFleet, cfg.Imports.Export))

	mux.Handle("GET /api/sync/status", permit(models.ActionViewFleet, cfg.Sync.Status))
	mux.Handle("GET /api/sync/ws", permit(models.ActionViewFleet, cfg.Sync.ServeWS))
	mux.Handle("POST /api/backup", permit(models.ActionExportFleet, cfg.Sync.Backup))

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return middleware.RequestLogger(logger)(am.OptionalAuth(mux))
}
