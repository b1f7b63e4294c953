// Package config loads tracker configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	DatabasePath string       `mapstructure:"database_path"`
	Ollama       OllamaConfig `mapstructure:"ollama"`
	Ntfy         NtfyConfig   `mapstructure:"ntfy"`
}

// OllamaConfig points at the local generation service.
type OllamaConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
}

// NtfyConfig configures the optional push-notification topic. An empty
// Topic disables notifications.
type NtfyConfig struct {
	Server string `mapstructure:"server"`
	Topic  string `mapstructure:"topic"`
}

// IMAPPreset is a well-known mail provider endpoint.
type IMAPPreset struct {
	Host string
	Port int
}

// IMAPPresets covers the popular providers; anything else is "custom".
var IMAPPresets = map[string]IMAPPreset{
	"gmail":   {Host: "imap.gmail.com", Port: 993},
	"outlook": {Host: "imap-mail.outlook.com", Port: 993},
	"yahoo":   {Host: "imap.mail.yahoo.com", Port: 993},
	"zoho":    {Host: "imap.zoho.com", Port: 993},
}

// Load reads configuration from the given file (optional) plus environment
// variables prefixed EXPENSED_, applying defaults for everything else.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_path", defaultDatabasePath())
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("ollama.vision_model", "llama3.2-vision")
	v.SetDefault("ntfy.server", "https://ntfy.sh")
	v.SetDefault("ntfy.topic", "")

	v.SetEnvPrefix("EXPENSED")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "expense_tracker.db"
	}
	return filepath.Join(home, ".expensed", "expense_tracker.db")
}
