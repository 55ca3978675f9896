package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config collects every knob the service reads. It is loaded once at
// process start from config.json plus environment overrides and passed
// explicitly to the pipeline constructors; the stage algorithms never
// consult the environment themselves.
type Config struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	ChatModel    string `json:"chat_model"`
	WhisperModel string `json:"whisper_model"`

	GeminiAPIKey  string `json:"gemini_api_key"`
	GeminiBaseURL string `json:"gemini_base_url"`
	GeminiModel   string `json:"gemini_model"`

	OllamaHost  string `json:"ollama_host"`
	OllamaModel string `json:"ollama_model"`

	WhisperCppBin       string `json:"whispercpp_bin"`
	WhisperCppModelPath string `json:"whispercpp_model_path"`

	TranscribeProvider string `json:"transcribe_provider"` // "whisper", "whispercpp", "mock"
	ExtractProvider    string `json:"extract_provider"`    // "openai", "gemini", "ollama", "mock", "fixtures"

	FixturesDir string `json:"fixtures_dir"`
	MockMode    bool   `json:"mock_mode"`
	Debug       bool   `json:"debug"`
}

// LoadConfig reads config.json if present, then applies environment
// variable overrides and defaults.
func LoadConfig() (*Config, error) {
	return loadFrom("config.json")
}

func loadFrom(path string) (*Config, error) {
	config := &Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %v", path, err)
		}
	}

	// Environment variables override file values
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		config.BaseURL = url
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.ChatModel = model
	}
	if model := os.Getenv("WHISPER_MODEL"); model != "" {
		config.WhisperModel = model
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.GeminiAPIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		config.OllamaHost = host
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		config.OllamaModel = model
	}
	if bin := os.Getenv("WHISPERCPP_BIN"); bin != "" {
		config.WhisperCppBin = bin
	}
	if path := os.Getenv("WHISPERCPP_MODEL_PATH"); path != "" {
		config.WhisperCppModelPath = path
	}
	if prov := os.Getenv("TRANSCRIBE_PROVIDER"); prov != "" {
		config.TranscribeProvider = strings.ToLower(strings.TrimSpace(prov))
	}
	if prov := os.Getenv("EXTRACT_PROVIDER"); prov != "" {
		config.ExtractProvider = strings.ToLower(strings.TrimSpace(prov))
	}
	if dir := os.Getenv("FIXTURES_DIR"); dir != "" {
		config.FixturesDir = dir
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		config.MockMode = boolValue(v)
	}
	if v := os.Getenv("DEBUG"); v != "" {
		config.Debug = boolValue(v)
	}

	applyDefaults(config)
	return config, nil
}

func applyDefaults(c *Config) {
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.WhisperModel == "" {
		c.WhisperModel = "whisper-1"
	}
	if c.GeminiBaseURL == "" {
		c.GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if c.GeminiModel == "" {
		c.GeminiModel = "gemini-2.0-flash"
	}
	if c.OllamaModel == "" {
		c.OllamaModel = "llama3.1"
	}
	if c.WhisperCppBin == "" {
		c.WhisperCppBin = "whisper-cli"
	}
	if c.TranscribeProvider == "" {
		c.TranscribeProvider = "whisper"
	}
	if c.ExtractProvider == "" {
		c.ExtractProvider = "openai"
	}
	if c.FixturesDir == "" {
		c.FixturesDir = "fixtures"
	}
}

func boolValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// HasValidAPI reports whether an OpenAI-compatible API key is configured.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// NotConfiguredError reports that the selected provider is missing a
// required setting. The server maps it to HTTP 501 so callers can tell
// a deployment gap from a bad request or a pipeline failure.
type NotConfiguredError struct {
	Variable string
}

func (e NotConfiguredError) Error() string {
	return fmt.Sprintf("provider not configured: %s is not set", e.Variable)
}
