package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/localstore"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// BackupRunner writes one backup workbook and returns its path.
type BackupRunner interface {
	RunOnce(ctx context.Context) (string, error)
}

// SyncHandler reports the store's sync state, streams changes over a
// websocket and triggers backups.
type SyncHandler struct {
	store     FleetStore
	backups   BackupRunner
	logger    *log.Entry
	heartbeat time.Duration
}

// NewSyncHandler creates a sync handler. backups may be nil.
func NewSyncHandler(store FleetStore, backups BackupRunner, logger *log.Entry) *SyncHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &SyncHandler{
		store:     store,
		backups:   backups,
		logger:    logger.WithField("component", "sync"),
		heartbeat: 2 * time.Second,
	}
}

// Status returns the store's current sync state.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Status())
}

// Backup writes a backup workbook now.
func (h *SyncHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "Backups are not configured", http.StatusNotFound)
		return
	}
	path, err := h.backups.RunOnce(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// ServeWS streams fleet snapshots to a websocket client. Each local change is
// sent as a "snapshot" message; a "status" heartbeat carries the sync state
// between changes.
func (h *SyncHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	if err := conn.WriteJSON(map[string]any{
		"type": "connected",
		"sync": h.store.Status(),
		"data": h.store.Get(),
	}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	last := h.store.Status()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case data := <-updates:
			last = h.store.Status()
			if err := conn.WriteJSON(map[string]any{
				"type": "snapshot",
				"sync": last,
				"data": data,
			}); err != nil {
				h.logger.WithError(err).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			status := h.store.Status()
			msgType := "status"
			if sameStatus(status, last) {
				msgType = "heartbeat"
			}
			last = status
			if err := conn.WriteJSON(map[string]any{"type": msgType, "sync": status}); err != nil {
				h.logger.WithError(err).Debug("Websocket write failed")
				return
			}
		}
	}
}

func sameStatus(a, b localstore.Status) bool {
	if a.State != b.State || a.Session != b.Session || a.LastError != b.LastError || a.Pending != b.Pending {
		return false
	}
	if (a.LastSyncedAt == nil) != (b.LastSyncedAt == nil) {
		return false
	}
	return a.LastSyncedAt == nil || a.LastSyncedAt.Equal(*b.LastSyncedAt)
}
