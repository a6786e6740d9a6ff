package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nabta-labs/leafscope/internal/chat"
	"github.com/nabta-labs/leafscope/internal/config"
	"github.com/nabta-labs/leafscope/internal/history"
	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/pipeline"
	"github.com/nabta-labs/leafscope/internal/remote"
	"github.com/nabta-labs/leafscope/internal/storage"
)

// DefaultSlot is used when an upload names no analysis slot.
const DefaultSlot = "default"

type Handler struct {
	cfg        *config.Config
	store      *storage.Store
	runner     *pipeline.Runner
	archive    *history.Store
	chat       chat.Provider
	transcript *chat.Transcript
}

func New(cfg *config.Config) (*Handler, error) {
	provider, err := chat.New(cfg)
	if err != nil {
		return nil, err
	}

	transcript, err := chat.OpenTranscript(cfg.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat transcript: %w", err)
	}

	client := remote.NewClient(cfg.AnalysisAPIURL, cfg.AnalysisAPIKey, cfg.RequestTimeout)
	store := storage.New()

	return &Handler{
		cfg:        cfg,
		store:      store,
		runner:     pipeline.NewRunner(client, store),
		archive:    history.NewStore(cfg.HistoryPath),
		chat:       provider,
		transcript: transcript,
	}, nil
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// authorized enforces the optional dashboard token on API routes. With no
// token configured every request passes.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.cfg.DashboardToken == "" {
		return true
	}
	if r.Header.Get("Authorization") != "Bearer "+h.cfg.DashboardToken {
		h.writeError(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *Handler) snapshotOrError(w http.ResponseWriter, slotID string) (models.Session, bool) {
	session, exists := h.store.Snapshot(slotID)
	if !exists {
		h.writeError(w, "Analysis not found", http.StatusNotFound)
		return models.Session{}, false
	}
	return session, true
}

// slotFromPath extracts the slot segment from /api/analyses/{slot}[/...].
// The returned rest is the remainder after the slot, without a leading
// slash.
func slotFromPath(path string) (slotID, rest string) {
	trimmed := strings.TrimPrefix(path, "/api/analyses/")
	if trimmed == path {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	slotID = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return slotID, rest
}
