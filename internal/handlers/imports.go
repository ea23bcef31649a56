package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/reconcile"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

// maxUploadSize bounds uploaded workbooks.
const maxUploadSize = 20 << 20

// Importer applies a parsed workbook to the fleet store.
type Importer interface {
	Apply(result workbook.ImportResult, opts reconcile.Options) (models.FleetData, reconcile.Stats, error)
}

// ImportHandler serves the template, import preview and apply, and the data
// export.
type ImportHandler struct {
	store        FleetStore
	importer     Importer
	parser       *workbook.Parser
	previewLimit int
	logger       *log.Entry
	now          func() time.Time
}

// NewImportHandler creates an import handler. previewLimit truncates the
// warning and error lists of previews.
func NewImportHandler(store FleetStore, importer Importer, previewLimit int, logger *log.Entry) *ImportHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &ImportHandler{
		store:        store,
		importer:     importer,
		parser:       workbook.NewParser(),
		previewLimit: previewLimit,
		logger:       logger.WithField("component", "import"),
		now:          time.Now,
	}
}

func attachment(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

// Template downloads the blank import workbook.
func (h *ImportHandler) Template(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := workbook.WriteTemplate(&buf); err != nil {
		h.logger.WithError(err).Error("Failed to build template")
		http.Error(w, "Failed to build template", http.StatusInternalServerError)
		return
	}
	attachment(w, workbook.TemplateFileName)
	w.Write(buf.Bytes())
}

// Export downloads the current data as a workbook that can be imported again.
func (h *ImportHandler) Export(w http.ResponseWriter, r *http.Request) {
	data := h.store.Get()
	var buf bytes.Buffer
	if err := workbook.WriteExport(&buf, data); err != nil {
		h.logger.WithError(err).Error("Failed to build export")
		http.Error(w, "Failed to build export", http.StatusInternalServerError)
		return
	}
	h.logger.WithFields(log.Fields{
		"vehicles": len(data.Motorcycles),
		"records":  len(data.ServiceRecords),
	}).Info("Data exported")
	attachment(w, workbook.ExportFileName(h.now()))
	w.Write(buf.Bytes())
}

// parseUpload reads the multipart "file" field into an ImportResult.
func (h *ImportHandler) parseUpload(w http.ResponseWriter, r *http.Request) (workbook.ImportResult, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A workbook must be uploaded in the \"file\" field", http.StatusBadRequest)
		return workbook.ImportResult{}, false
	}
	defer file.Close()

	result := h.parser.Parse(file)
	h.logger.WithFields(log.Fields{
		"file":     header.Filename,
		"vehicles": len(result.Vehicles),
		"records":  len(result.ServiceRecords),
		"warnings": len(result.Warnings),
		"errors":   len(result.Errors),
	}).Info("Workbook parsed")
	return result, true
}

type previewResponse struct {
	Summary  workbook.Summary  `json:"summary"`
	CanApply bool              `json:"canApply"`
	Prompts  map[string]string `json:"prompts"`
}

// Preview parses an uploaded workbook without touching the store.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	result, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Summary:  result.Summary(h.previewLimit),
		CanApply: !result.HasErrors(),
		Prompts: map[string]string{
			string(reconcile.ModeMerge):   reconcile.ConfirmationPrompt(reconcile.ModeMerge, result),
			string(reconcile.ModeReplace): reconcile.ConfirmationPrompt(reconcile.ModeReplace, result),
		},
	})
}

type applyResponse struct {
	Stats   reconcile.Stats  `json:"stats"`
	Summary workbook.Summary `json:"summary"`
}

type refusalResponse struct {
	Error   string           `json:"error"`
	Prompt  string           `json:"prompt,omitempty"`
	Summary workbook.Summary `json:"summary"`
}

// Apply parses an uploaded workbook and merges it into, or replaces, the
// stored data. The import is refused with 409 while the workbook has errors
// and with 412 until confirm=true is passed.
func (h *ImportHandler) Apply(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode, err := reconcile.ParseMode(query.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	duplicates, err := reconcile.ParseDuplicatePolicy(query.Get("duplicates"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	confirmed := false
	if v := query.Get("confirm"); v != "" {
		if confirmed, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "confirm must be true or false", http.StatusBadRequest)
			return
		}
	}

	result, ok := h.parseUpload(w, r)
	if !ok {
		return
	}

	_, stats, err := h.importer.Apply(result, reconcile.Options{
		Mode:       mode,
		Duplicates: duplicates,
		Confirmed:  confirmed,
	})
	switch {
	case errors.Is(err, reconcile.ErrImportHasErrors):
		writeJSON(w, http.StatusConflict, refusalResponse{
			Error:   err.Error(),
			Summary: result.Summary(h.previewLimit),
		})
		return
	case errors.Is(err, reconcile.ErrNotConfirmed):
		writeJSON(w, http.StatusPreconditionFailed, refusalResponse{
			Error:   err.Error(),
			Prompt:  reconcile.ConfirmationPrompt(mode, result),
			Summary: result.Summary(h.previewLimit),
		})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to apply import")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, applyResponse{
		Stats:   stats,
		Summary: result.Summary(h.previewLimit),
	})
}
