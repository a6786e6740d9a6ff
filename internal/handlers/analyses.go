package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/report"
)

const maxUploadBytes = 10 * 1024 * 1024

// HandleAnalyses serves /api/analyses: POST starts a new pipeline run,
// GET lists the active slots.
func (h *Handler) HandleAnalyses(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleUpload(w, r)
	case http.MethodGet:
		h.writeJSON(w, map[string]any{"slots": h.store.Slots()})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(imageData) >= maxUploadBytes {
		h.writeError(w, "File too large (max 10MB)", http.StatusBadRequest)
		return
	}
	if len(imageData) == 0 {
		h.writeError(w, "Empty upload", http.StatusBadRequest)
		return
	}

	slotID := r.FormValue("slot")
	if slotID == "" {
		slotID = DefaultSlot
	}

	baseFilename := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	sessionID := fmt.Sprintf("%s_%d", baseFilename, time.Now().Unix())

	// Begin supersedes any run still in flight for this slot; the old
	// generation's updates will be dropped and its context cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	gen := h.store.Begin(slotID, models.NewSession(sessionID), cancel)

	go h.runner.Run(ctx, slotID, gen, imageData, header.Filename)

	slog.Info("Analysis started", "slot", slotID, "session_id", sessionID, "bytes", len(imageData))
	h.writeJSON(w, map[string]any{
		"slot":       slotID,
		"session_id": sessionID,
		"message":    "Analysis started",
	})
}

// HandleAnalysisDetail serves /api/analyses/{slot} and its sub-resources:
//
//	GET    /api/analyses/{slot}          session snapshot
//	DELETE /api/analyses/{slot}          reset to a fresh Waiting session
//	POST   /api/analyses/{slot}/cursor   move the region cursor
//	GET    /api/analyses/{slot}/report   derived report
func (h *Handler) HandleAnalysisDetail(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	slotID, rest := slotFromPath(r.URL.Path)
	if slotID == "" {
		h.writeError(w, "Missing analysis slot", http.StatusBadRequest)
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		session, ok := h.snapshotOrError(w, slotID)
		if !ok {
			return
		}
		h.writeJSON(w, session)
	case rest == "" && r.Method == http.MethodDelete:
		h.store.Reset(slotID, models.NewSession(fmt.Sprintf("reset_%d", time.Now().Unix())))
		slog.Info("Analysis reset", "slot", slotID)
		h.writeJSON(w, map[string]any{"slot": slotID, "message": "Analysis reset"})
	case rest == "cursor" && r.Method == http.MethodPost:
		h.handleCursor(w, r, slotID)
	case rest == "report" && r.Method == http.MethodGet:
		session, ok := h.snapshotOrError(w, slotID)
		if !ok {
			return
		}
		h.writeJSON(w, report.Build(&session))
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCursor(w http.ResponseWriter, r *http.Request, slotID string) {
	var request struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !h.store.Mutate(slotID, func(s *models.Session) {
		s.Advance(request.Index)
	}) {
		h.writeError(w, "Analysis not found", http.StatusNotFound)
		return
	}

	session, ok := h.snapshotOrError(w, slotID)
	if !ok {
		return
	}
	h.writeJSON(w, map[string]any{"current_index": session.CurrentIndex})
}
