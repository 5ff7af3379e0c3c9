// Package config resolves the environment variables and optional YAML file
// that drive the coordinator and worker binaries. Environment variables are
// authoritative; a config file only fills in fields left unset by the
// environment, matching a fleet rollout where most nodes share one file but
// a handful need an environment override.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Worker holds everything cmd/worker needs to start.
type Worker struct {
	APIHost     string `yaml:"api_host"`
	APIPort     int    `yaml:"api_port"`
	MasterIP    string `yaml:"master_ip"`
	MasterPort  int    `yaml:"master_port"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
	MetricsAddr string `yaml:"metrics_addr"`
	MaxRetries  int    `yaml:"max_retries"`
}

// Coordinator holds everything cmd/coordinator needs to start. Host and
// Port are normally supplied by the --host/--port CLI flags; the fields
// here exist so the same YAML file can seed flag defaults.
type Coordinator struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadWorker builds a Worker config from environment variables, optionally
// seeded by a YAML file named in WORKER_CONFIG_FILE. Defaults to binding
// 0.0.0.0:5000.
func LoadWorker() (Worker, error) {
	cfg := Worker{
		APIHost:    "0.0.0.0",
		APIPort:    5000,
		MasterPort: 8000,
		LogLevel:   "info",
		MaxRetries: 10,
	}

	if path := os.Getenv("WORKER_CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Worker{}, err
		}
	}

	if v := os.Getenv("API_HOST"); v != "" {
		cfg.APIHost = v
	}
	if v, err := getenvInt("API_PORT"); err != nil {
		return Worker{}, err
	} else if v != 0 {
		cfg.APIPort = v
	}
	if v := os.Getenv("MASTER_IP"); v != "" {
		cfg.MasterIP = v
	}
	if v, err := getenvInt("MASTER_PORT"); err != nil {
		return Worker{}, err
	} else if v != 0 {
		cfg.MasterPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LogJSON = v == "1" || v == "true"
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if cfg.MasterIP == "" {
		return Worker{}, fmt.Errorf("config: MASTER_IP is required")
	}
	return cfg, nil
}

// LoadCoordinator builds a Coordinator config from environment variables,
// optionally seeded by a YAML file named in COORDINATOR_CONFIG_FILE. The
// caller (cmd/coordinator) overlays --host/--port flags afterward; those
// flags win over both the file and the environment.
func LoadCoordinator() (Coordinator, error) {
	cfg := Coordinator{
		Host:     "0.0.0.0",
		Port:     8000,
		LogLevel: "info",
	}

	if path := os.Getenv("COORDINATOR_CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Coordinator{}, err
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LogJSON = v == "1" || v == "true"
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func getenvInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	return n, nil
}
