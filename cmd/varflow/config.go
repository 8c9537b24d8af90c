package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds varflow host configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
	MaxSteps int    `json:"max_steps"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(varflowDir(), "varflow.db"),
		LogLevel: "info",
	}
}

func varflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".varflow"
	}
	return filepath.Join(home, ".varflow")
}

func settingsPath() string {
	return filepath.Join(varflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("VARFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VARFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VARFLOW_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}

	return cfg
}
