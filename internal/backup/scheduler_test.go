package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-tracker/internal/localstore"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

func newStore(t *testing.T) *localstore.Store[models.FleetData] {
	t.Helper()
	s, err := localstore.New(localstore.Options[models.FleetData]{
		Key:       "fleet-data",
		Defaults:  models.DefaultFleetData,
		Normalize: models.FleetData.Normalize,
	})
	require.NoError(t, err)
	_, err = s.Mutate(func(d models.FleetData) (models.FleetData, error) {
		out, _, err := d.AddVehicle(models.Vehicle{
			RegistrationNumber: "MH01AB1234",
			Make:               "Honda",
			Model:              "Activa 6G",
			CurrentOdometer:    15000,
		}, time.Now())
		return out, err
	})
	require.NoError(t, err)
	return s
}

func TestRunOnce_WritesExportAndStampsLastBackup(t *testing.T) {
	store := newStore(t)
	dir := filepath.Join(t.TempDir(), "backups")
	at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	s := NewScheduler(store, dir, "", nil)
	s.Now = func() time.Time { return at }

	path, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "fleet_backup_20250601T103000Z.xlsx"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	result := workbook.ParseFile(path)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Vehicles, 1)
	assert.Equal(t, "MH01AB1234", result.Vehicles[0].RegistrationNumber)

	last := store.Get().LastBackup
	require.NotNil(t, last)
	assert.True(t, at.Equal(*last))
}

func TestRunOnce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScheduler(newStore(t), t.TempDir(), "", nil).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStart(t *testing.T) {
	s := NewScheduler(newStore(t), t.TempDir(), "not a schedule", nil)
	assert.Error(t, s.Start())

	s = NewScheduler(newStore(t), t.TempDir(), "@every 1h", nil)
	require.NoError(t, s.Start())
	s.Stop()

	s = NewScheduler(newStore(t), t.TempDir(), "", nil)
	require.NoError(t, s.Start())
	s.Stop()
}
