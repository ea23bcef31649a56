package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-tracker/internal/localstore"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/reconcile"
	"github.com/ukydev/fleet-tracker/internal/workbook"
	"github.com/xuri/excelize/v2"
)

func newTestImportHandler(t *testing.T) (*ImportHandler, *localstore.Store[models.FleetData]) {
	t.Helper()
	store := newTestStore(t)
	h := NewImportHandler(store, reconcile.New(store, quietLogger()), 10, quietLogger())
	h.now = func() time.Time { return fixedNow }
	return h, store
}

func templateBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, workbook.WriteTemplate(&buf))
	return buf.Bytes()
}

// brokenWorkbook has one valid vehicle and one without a registration number.
func brokenWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", workbook.SheetVehicles))
	rows := [][]any{
		{"registrationNumber", "make", "model", "currentOdometer"},
		{"KA01AB0001", "Hyundai", "i20", 42000},
		{"", "Honda", "Shine", 1200},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(workbook.SheetVehicles, cell, &r))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "fleet.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportHandler_Template(t *testing.T) {
	h, _ := newTestImportHandler(t)

	w := httptest.NewRecorder()
	h.Template(w, httptest.NewRequest("GET", "/api/import/template", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), workbook.TemplateFileName)

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{workbook.SheetVehicles, workbook.SheetServiceRecords, workbook.SheetNotes}, f.GetSheetList())
}

func TestImportHandler_Preview(t *testing.T) {
	h, store := newTestImportHandler(t)

	w := httptest.NewRecorder()
	h.Preview(w, uploadRequest(t, "/api/import/preview", templateBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp previewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.CanApply)
	assert.Equal(t, 1, resp.Summary.VehicleCount)
	assert.Equal(t, 1, resp.Summary.ServiceRecordCount)
	assert.Contains(t, resp.Prompts["replace"], "permanently delete")
	assert.Contains(t, resp.Prompts["merge"], "1 vehicles and 1 service records")

	assert.Empty(t, store.Get().Motorcycles, "preview never writes")
}

func TestImportHandler_Preview_NoFile(t *testing.T) {
	h, _ := newTestImportHandler(t)
	w := httptest.NewRecorder()
	h.Preview(w, httptest.NewRequest("POST", "/api/import/preview", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_Apply_RefusesErrors(t *testing.T) {
	h, store := newTestImportHandler(t)

	w := httptest.NewRecorder()
	h.Apply(w, uploadRequest(t, "/api/import/apply?mode=replace&confirm=true", brokenWorkbook(t)))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	var resp refusalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.ErrorCount)
	require.Len(t, resp.Summary.Errors, 1)
	assert.Contains(t, resp.Summary.Errors[0], "row 3")

	assert.Empty(t, store.Get().Motorcycles)
}

func TestImportHandler_Apply_RequiresConfirmation(t *testing.T) {
	h, store := newTestImportHandler(t)

	w := httptest.NewRecorder()
	h.Apply(w, uploadRequest(t, "/api/import/apply?mode=replace", templateBytes(t)))
	require.Equal(t, http.StatusPreconditionFailed, w.Code, w.Body.String())

	var resp refusalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Prompt, "Replace will permanently delete")
	assert.Empty(t, store.Get().Motorcycles)
}

func TestImportHandler_Apply_Merge(t *testing.T) {
	h, store := newTestImportHandler(t)
	_, err := store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		next, _, err := d.AddVehicle(models.Vehicle{
			RegistrationNumber: "KA01AB0001",
			Make:               "Hyundai",
			Model:              "i20",
			CurrentOdometer:    42000,
		}, fixedNow)
		return next, err
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.Apply(w, uploadRequest(t, "/api/import/apply?mode=merge&confirm=true", templateBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp applyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reconcile.ModeMerge, resp.Stats.Mode)
	assert.Equal(t, 1, resp.Stats.VehiclesAdded)
	assert.Equal(t, 2, resp.Stats.TotalVehicles)

	data := store.Get()
	assert.Len(t, data.Motorcycles, 2)
	assert.Len(t, data.ServiceRecords, 1)
}

func TestImportHandler_Apply_Replace(t *testing.T) {
	h, store := newTestImportHandler(t)
	_, err := store.Mutate(func(d models.FleetData) (models.FleetData, error) {
		next, _, err := d.AddVehicle(models.Vehicle{
			RegistrationNumber: "KA01AB0001",
			Make:               "Hyundai",
			Model:              "i20",
			CurrentOdometer:    42000,
		}, fixedNow)
		return next, err
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.Apply(w, uploadRequest(t, "/api/import/apply?mode=replace&confirm=true", templateBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := store.Get()
	require.Len(t, data.Motorcycles, 1)
	assert.Equal(t, "MH01AB1234", data.Motorcycles[0].RegistrationNumber)
}

func TestImportHandler_Apply_BadQuery(t *testing.T) {
	h, _ := newTestImportHandler(t)

	for _, target := range []string{
		"/api/import/apply?mode=overwrite",
		"/api/import/apply?duplicates=skip",
		"/api/import/apply?confirm=maybe",
	} {
		w := httptest.NewRecorder()
		h.Apply(w, uploadRequest(t, target, templateBytes(t)))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestImportHandler_Export(t *testing.T) {
	h, store := newTestImportHandler(t)
	w := httptest.NewRecorder()
	h.Apply(w, uploadRequest(t, "/api/import/apply?mode=replace&confirm=true", templateBytes(t)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Export(w, httptest.NewRequest("GET", "/api/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "fleet_export_2025-06-01.xlsx")

	exported, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	result := workbook.Parse(bytes.NewReader(exported))
	assert.Empty(t, result.Errors)
	require.Len(t, result.Vehicles, 1)
	assert.Equal(t, store.Get().Motorcycles[0].ID, result.Vehicles[0].ID)
}
