// Package chat answers plant-care questions through a configurable LLM
// provider, keeping the conversation grounded in the latest analysis.
package chat

import (
	"context"
	"fmt"

	"github.com/nabta-labs/leafscope/internal/config"
)

// Preamble pins the assistant persona. Every provider sends it ahead of
// the conversation so answers stay in the plant-health domain.
const Preamble = "You are Plantifipia, an expert botanist assistant. " +
	"You help users understand plant diseases detected in their leaf photos, " +
	"explain diagnoses in plain language, and recommend practical treatment " +
	"and prevention steps. Keep answers concise and specific to the plants discussed."

// Turn roles in a transcript.
const (
	RoleUser = "USER"
	RoleBot  = "CHATBOT"
)

// Turn is one exchange entry in the running transcript.
type Turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Provider generates an assistant reply given the transcript so far.
type Provider interface {
	Reply(ctx context.Context, history []Turn, message string) (string, error)
}

// New selects the provider named by the configuration.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.ChatProvider {
	case "cohere":
		return NewCohere(cfg.CohereAPIKey), nil
	case "gemini":
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.ChatProvider)
	}
}
