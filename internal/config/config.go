package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the pipeline and the web interface need. Values
// come from the environment with sensible defaults; an optional YAML file
// overrides the environment.
type Config struct {
	Port           string        `yaml:"port"`
	AnalysisAPIURL string        `yaml:"analysis_api_url"`
	AnalysisAPIKey string        `yaml:"analysis_api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	ChatProvider string `yaml:"chat_provider"` // "cohere" or "gemini"
	CohereAPIKey string `yaml:"cohere_api_key"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	HistoryPath    string `yaml:"history_path"`
	TranscriptPath string `yaml:"transcript_path"`
	LogoPath       string `yaml:"logo_path"`

	// DashboardToken, when set, is required as a bearer credential on the
	// API. Identity management itself is external.
	DashboardToken string `yaml:"dashboard_token"`
}

// Load builds a Config from the environment.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8888"),
		AnalysisAPIURL: getEnv("LEAF_API_URL", "https://armia-gamal-plant-leaf-detection-api.hf.space"),
		AnalysisAPIKey: os.Getenv("LEAF_API_KEY"),
		RequestTimeout: getEnvDuration("LEAF_API_TIMEOUT_SECONDS", 60) * time.Second,
		ChatProvider:   getEnv("CHAT_PROVIDER", "cohere"),
		CohereAPIKey:   os.Getenv("COHERE_API_KEY"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		HistoryPath:    getEnv("HISTORY_PATH", "history/analyses.parquet"),
		TranscriptPath: getEnv("TRANSCRIPT_PATH", "history/chat_transcript.json"),
		LogoPath:       getEnv("REPORT_LOGO_PATH", "static/logo.png"),
		DashboardToken: os.Getenv("DASHBOARD_TOKEN"),
	}
}

// LoadFile loads the environment config and overlays values from a YAML
// file. Zero-valued fields in the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	merge(cfg, &overlay)
	return cfg, nil
}

func merge(dst, src *Config) {
	if src.Port != "" {
		dst.Port = src.Port
	}
	if src.AnalysisAPIURL != "" {
		dst.AnalysisAPIURL = src.AnalysisAPIURL
	}
	if src.AnalysisAPIKey != "" {
		dst.AnalysisAPIKey = src.AnalysisAPIKey
	}
	if src.RequestTimeout != 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
	if src.ChatProvider != "" {
		dst.ChatProvider = src.ChatProvider
	}
	if src.CohereAPIKey != "" {
		dst.CohereAPIKey = src.CohereAPIKey
	}
	if src.GeminiAPIKey != "" {
		dst.GeminiAPIKey = src.GeminiAPIKey
	}
	if src.GeminiModel != "" {
		dst.GeminiModel = src.GeminiModel
	}
	if src.HistoryPath != "" {
		dst.HistoryPath = src.HistoryPath
	}
	if src.TranscriptPath != "" {
		dst.TranscriptPath = src.TranscriptPath
	}
	if src.LogoPath != "" {
		dst.LogoPath = src.LogoPath
	}
	if src.DashboardToken != "" {
		dst.DashboardToken = src.DashboardToken
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultVal)
}
