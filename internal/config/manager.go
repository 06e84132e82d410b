// Package config loads the service configuration: a JSON file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the service's persistent configuration.
type Config struct {
	ListenAddr string `json:"listen_addr,omitempty"` // HTTP/websocket bind address
	DataDir    string `json:"data_dir,omitempty"`    // sqlite database and search indexes

	// KnowledgeDir is the root of the organization document tree; empty
	// disables document search entirely.
	KnowledgeDir string `json:"knowledge_dir,omitempty"`

	LLMProvider string `json:"llm_provider,omitempty"` // openai, anthropic, ollama
	APIKey      string `json:"api_key,omitempty"`
	Model       string `json:"model,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`

	IdleTimeoutMinutes int  `json:"idle_timeout_minutes,omitempty"`
	IncludeSpeakers    bool `json:"include_speakers"`
}

// IdleTimeout converts the configured minutes; zero means the default.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted at the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{
		configDir: filepath.Join(configDir, "insight-engine"),
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk and applies environment
// overrides. A missing file yields defaults and no error.
func (m *Manager) Load() (*Config, error) {
	cfg := &Config{}

	path := m.GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnv lets deployment environments override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("INSIGHT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("INSIGHT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("INSIGHT_KNOWLEDGE_DIR"); v != "" {
		cfg.KnowledgeDir = v
	}
	if v := os.Getenv("INSIGHT_IDLE_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeoutMinutes = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8700"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(".", "data")
	}
}

// Save writes the configuration to disk with restricted permissions.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry an API key
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
