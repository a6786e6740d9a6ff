package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const cohereBaseURL = "https://api.cohere.ai"

// Cohere talks to the Cohere v1 chat API.
type Cohere struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewCohere(apiKey string) *Cohere {
	return &Cohere{
		BaseURL: cohereBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type cohereRequest struct {
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble"`
	ChatHistory []Turn  `json:"chat_history"`
	Temperature float64 `json:"temperature"`
}

type cohereResponse struct {
	Text string `json:"text"`
}

// Reply sends the message with the transcript so far and returns the
// assistant text.
func (c *Cohere) Reply(ctx context.Context, history []Turn, message string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("COHERE_API_KEY not set")
	}

	payload := cohereRequest{
		Message:     message,
		Preamble:    Preamble,
		ChatHistory: history,
		Temperature: 0.3,
	}
	if payload.ChatHistory == nil {
		payload.ChatHistory = []Turn{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, string(detail))
	}

	var out cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("empty response from chat API")
	}

	return out.Text, nil
}
