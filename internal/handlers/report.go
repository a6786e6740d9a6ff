package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nabta-labs/leafscope/internal/report"
)

// HandleExportPDF serves POST /api/export/pdf: renders the posted
// markdown into a downloadable PDF document.
func (h *Handler) HandleExportPDF(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Markdown string `json:"markdown"`
		Title    string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.Markdown == "" {
		h.writeError(w, "markdown is required", http.StatusBadRequest)
		return
	}

	data, err := report.ExportPDF(request.Markdown, report.PDFOptions{
		Title:    request.Title,
		LogoPath: h.cfg.LogoPath,
	})
	if err != nil {
		h.writeError(w, "Failed to render PDF: "+err.Error(), http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("leafscope-report-%s.pdf", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write PDF response", "err", err)
	}
}

// HandleHistory serves /api/history:
//
//	GET  /api/history          archived reports
//	POST /api/history          archive a slot's report: {"slot": "..."}
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		reports, err := h.archive.Load()
		if err != nil {
			h.writeError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{"analyses": reports})
	case http.MethodPost:
		h.handleArchive(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.Slot == "" {
		request.Slot = DefaultSlot
	}

	session, ok := h.snapshotOrError(w, request.Slot)
	if !ok {
		return
	}

	built := report.Build(&session)
	if err := h.archive.Append(built); err != nil {
		h.writeError(w, "Failed to archive report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("Report archived", "slot", request.Slot, "image_id", built.ImageID, "leaves", len(built.Leaves))
	h.writeJSON(w, built)
}

// HandleHistoryExport serves POST /api/history/export: writes the full
// archive to a timestamped YAML file and returns its path.
func (h *Handler) HandleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, err := h.archive.ExportYAML("exports")
	if err != nil {
		h.writeError(w, "Failed to export history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, map[string]any{"path": path})
}
