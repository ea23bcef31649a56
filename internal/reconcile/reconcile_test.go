package reconcile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

func existing() models.FleetData {
	data := models.DefaultFleetData()
	data.Motorcycles = []models.Vehicle{{
		ID:                 "old-1",
		RegistrationNumber: "MH01AB1234",
		Make:               "Honda",
		Model:              "Activa 6G",
		CurrentOdometer:    15000,
		KmReadings:         []models.KmReading{{ID: "r1", Date: "2025-01-01", Kilometers: 15000}},
	}}
	data.ServiceRecords = []models.ServiceRecord{{ID: "s1", MotorcycleID: "old-1", Date: "2025-01-10", Kilometers: 14500, WorkDone: "Oil"}}
	data.SavedMakes = []string{"Honda"}
	data.SavedModels = map[string][]string{"Honda": {"Activa 6G"}}
	return data
}

func imported() workbook.ImportResult {
	return workbook.ImportResult{
		Vehicles: []models.Vehicle{
			{ID: "new-1", RegistrationNumber: "MH01AB1234", Make: "Honda", Model: "Activa 6G", CurrentOdometer: 16000,
				KmReadings: []models.KmReading{{ID: "r2", Date: "2025-06-01", Kilometers: 16000}}},
			{ID: "new-2", RegistrationNumber: "KA05XY9876", Make: "Bajaj", Model: "Pulsar", CurrentOdometer: 8000,
				KmReadings: []models.KmReading{{ID: "r3", Date: "2025-06-01", Kilometers: 8000}}},
		},
		ServiceRecords: []models.ServiceRecord{
			{ID: "s2", MotorcycleID: "new-1", Date: "2025-05-01", Kilometers: 15800, WorkDone: "Brakes"},
		},
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)

	m, err = ParseMode(" Replace ")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)

	_, err = ParseMode("upsert")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DuplicateAppend, p)

	p, err = ParseDuplicatePolicy("update")
	require.NoError(t, err)
	assert.Equal(t, DuplicateUpdateByRegistration, p)

	_, err = ParseDuplicatePolicy("skip")
	assert.Error(t, err)
}

func TestApply_RefusesResultWithErrors(t *testing.T) {
	current := existing()
	result := imported()
	result.Errors = []string{"Vehicles row 3: missing required fields (make)"}

	out, stats, err := Apply(current, result, Options{Mode: ModeReplace, Confirmed: true})

	assert.ErrorIs(t, err, ErrImportHasErrors)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, existing(), current)
	assert.Equal(t, current, out)
}

func TestApply_RequiresConfirmation(t *testing.T) {
	current := existing()

	out, _, err := Apply(current, imported(), Options{Mode: ModeMerge})

	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, existing(), out)
}

func TestApply_Replace(t *testing.T) {
	current := existing()

	out, stats, err := Apply(current, imported(), Options{Mode: ModeReplace, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.Motorcycles, 2)
	assert.Equal(t, "new-1", out.Motorcycles[0].ID)
	require.Len(t, out.ServiceRecords, 1)
	assert.Equal(t, "s2", out.ServiceRecords[0].ID)
	assert.Equal(t, []string{"Bajaj", "Honda"}, out.SavedMakes)
	assert.Equal(t, 2, stats.VehiclesAdded)
	assert.Equal(t, 1, stats.RecordsAdded)

	// the input is untouched
	assert.Equal(t, existing(), current)
}

func TestApply_MergeAppendKeepsDuplicates(t *testing.T) {
	current := existing()

	out, stats, err := Apply(current, imported(), Options{Mode: ModeMerge, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.Motorcycles, 3)
	assert.Equal(t, "old-1", out.Motorcycles[0].ID)
	assert.Equal(t, "new-1", out.Motorcycles[1].ID)
	require.Len(t, out.ServiceRecords, 2)
	assert.Equal(t, "s1", out.ServiceRecords[0].ID)
	assert.Equal(t, 3, stats.TotalVehicles)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, []string{"Pulsar"}, out.SavedModels["Bajaj"])
	assert.Equal(t, existing(), current)
}

func TestApply_MergeUpdateByRegistration(t *testing.T) {
	current := existing()

	out, stats, err := Apply(current, imported(), Options{Mode: ModeMerge, Duplicates: DuplicateUpdateByRegistration, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.Motorcycles, 2)
	updated := out.Motorcycles[0]
	assert.Equal(t, "old-1", updated.ID)
	assert.Equal(t, 16000.0, updated.CurrentOdometer)
	require.Len(t, updated.KmReadings, 2)
	assert.Equal(t, "r1", updated.KmReadings[0].ID)
	assert.Equal(t, "new-2", out.Motorcycles[1].ID)

	require.Len(t, out.ServiceRecords, 2)
	assert.Equal(t, "old-1", out.ServiceRecords[1].MotorcycleID)
	assert.Equal(t, 1, stats.VehiclesAdded)
	assert.Equal(t, 1, stats.VehiclesUpdated)

	assert.Equal(t, existing(), current)
}

func exportedAndParsed(t *testing.T, data models.FleetData) workbook.ImportResult {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, workbook.WriteExport(&buf, data))
	result := workbook.Parse(&buf)
	require.Empty(t, result.Errors)
	return result
}

func assertUniqueIDs(t *testing.T, data models.FleetData) {
	t.Helper()
	vehicles := map[string]int{}
	for _, v := range data.Motorcycles {
		vehicles[v.ID]++
	}
	for id, n := range vehicles {
		assert.Equal(t, 1, n, "vehicle id %s", id)
	}
	records := map[string]int{}
	for _, r := range data.ServiceRecords {
		records[r.ID]++
		assert.Contains(t, vehicles, r.MotorcycleID, "record %s points at a missing vehicle", r.ID)
	}
	for id, n := range records {
		assert.Equal(t, 1, n, "record id %s", id)
	}
}

func TestApply_MergeReimportedExportGetsFreshIDs(t *testing.T) {
	current := existing()
	result := exportedAndParsed(t, current)
	require.Equal(t, "old-1", result.Vehicles[0].ID)

	out, stats, err := Apply(current, result, Options{Mode: ModeMerge, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.Motorcycles, 2)
	require.Len(t, out.ServiceRecords, 2)
	assertUniqueIDs(t, out)
	assert.Equal(t, 1, stats.VehiclesAdded)

	copyID := out.Motorcycles[1].ID
	assert.NotEqual(t, "old-1", copyID)
	assert.Equal(t, "old-1", out.ServiceRecords[0].MotorcycleID)
	assert.Equal(t, copyID, out.ServiceRecords[1].MotorcycleID)

	// deleting the original leaves the imported copy
	remaining, err := out.DeleteVehicle("old-1")
	require.NoError(t, err)
	require.Len(t, remaining.Motorcycles, 1)
	assert.Equal(t, copyID, remaining.Motorcycles[0].ID)
	assert.Len(t, remaining.ServiceRecords, 1)
}

func TestApply_MergeUpdateReimportedExportKeepsRecords(t *testing.T) {
	current := existing()
	result := exportedAndParsed(t, current)

	out, stats, err := Apply(current, result, Options{Mode: ModeMerge, Duplicates: DuplicateUpdateByRegistration, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.Motorcycles, 1)
	assert.Equal(t, "old-1", out.Motorcycles[0].ID)
	require.Len(t, out.ServiceRecords, 1)
	assert.Equal(t, "s1", out.ServiceRecords[0].ID)
	assert.Equal(t, 1, stats.VehiclesUpdated)
	assertUniqueIDs(t, out)
}

func TestApply_MergeRecordIDCollision(t *testing.T) {
	current := existing()
	result := imported()
	result.ServiceRecords[0].ID = "s1"

	out, _, err := Apply(current, result, Options{Mode: ModeMerge, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, out.ServiceRecords, 2)
	assert.Equal(t, "Oil", out.ServiceRecords[0].WorkDone)
	assert.NotEqual(t, "s1", out.ServiceRecords[1].ID)
	assert.Equal(t, "Brakes", out.ServiceRecords[1].WorkDone)
	assertUniqueIDs(t, out)
}

func TestConfirmationPrompt(t *testing.T) {
	r := imported()
	assert.Contains(t, ConfirmationPrompt(ModeReplace, r), "permanently delete")
	assert.Contains(t, ConfirmationPrompt(ModeReplace, r), "2 vehicles and 1 service records")
	assert.Contains(t, ConfirmationPrompt(ModeMerge, r), "Merge will add")
}

type mockStore struct {
	mock.Mock
	data models.FleetData
}

func (m *mockStore) Mutate(fn func(models.FleetData) (models.FleetData, error)) (models.FleetData, error) {
	m.Called()
	next, err := fn(m.data)
	if err != nil {
		return m.data, err
	}
	m.data = next
	return next, nil
}

func TestReconciler_AppliesThroughStore(t *testing.T) {
	store := &mockStore{data: existing()}
	store.On("Mutate").Return()

	r := New(store, nil)
	data, stats, err := r.Apply(imported(), Options{Mode: ModeReplace, Confirmed: true})

	require.NoError(t, err)
	assert.Len(t, data.Motorcycles, 2)
	assert.Equal(t, 2, stats.VehiclesAdded)
	assert.Len(t, store.data.Motorcycles, 2)
	store.AssertNumberOfCalls(t, "Mutate", 1)
}

func TestReconciler_RefusalLeavesStore(t *testing.T) {
	store := &mockStore{data: existing()}
	store.On("Mutate").Return()
	result := imported()
	result.Errors = []string{"bad"}

	r := New(store, nil)
	_, _, err := r.Apply(result, Options{Mode: ModeReplace, Confirmed: true})

	assert.True(t, errors.Is(err, ErrImportHasErrors))
	assert.Equal(t, existing(), store.data)
}
