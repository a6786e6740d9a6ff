package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nabta-labs/leafscope/internal/report"
)

// HandleChat serves /api/chat:
//
//	POST   send a message, optionally grounded in a slot's analysis
//	GET    the persisted transcript
//	DELETE clear the transcript
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleChatMessage(w, r)
	case http.MethodGet:
		h.writeJSON(w, map[string]any{"turns": h.transcript.Turns()})
	case http.MethodDelete:
		if err := h.transcript.Clear(); err != nil {
			h.writeError(w, "Failed to clear transcript: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{"message": "Transcript cleared"})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Message string `json:"message"`
		Slot    string `json:"slot"`
		Region  *int   `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.Message == "" && request.Slot == "" {
		h.writeError(w, "message is required", http.StatusBadRequest)
		return
	}

	// A slot reference grounds the question in that analysis: the region
	// summaries are prepended so the assistant sees the actual diagnoses.
	message := request.Message
	if request.Slot != "" {
		session, ok := h.snapshotOrError(w, request.Slot)
		if !ok {
			return
		}
		index := report.AllRegions
		if request.Region != nil {
			index = *request.Region
		}
		prompt := report.NarrativePrompt(&session, index)
		if message == "" {
			message = prompt
		} else {
			message = prompt + "\nUser question: " + message
		}
	}

	reply, err := h.chat.Reply(r.Context(), h.transcript.Turns(), message)
	if err != nil {
		h.writeError(w, "Chat failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	if err := h.transcript.Append(message, reply); err != nil {
		// The reply still reaches the user; only persistence failed.
		slog.Error("Failed to persist chat transcript", "err", err)
	}

	h.writeJSON(w, map[string]any{"reply": reply})
}
