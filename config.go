package main

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config comes from an optional YAML file with environment overrides;
// env wins so deployments can tweak a checked-in config.yml.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        int    `yaml:"port"`
	Debug       bool   `yaml:"debug"`
	ContentFile string `yaml:"content_file"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		DatabaseURL: "./data/stronghold.db",
		Port:        8000,
		Debug:       true,
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		if _, err := os.Stat("config.yml"); err == nil {
			path = "config.yml"
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, err
		}
		cfg.Port = port
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = v != "false" && v != "0"
	}
	if v := os.Getenv("CONTENT_FILE"); v != "" {
		cfg.ContentFile = v
	}
	return cfg, nil
}
