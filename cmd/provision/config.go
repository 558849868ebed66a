package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/framewright/provision/contracts"
)

// Config is the engine's JSON configuration file. Exactly one of
// ManifestPath and ManifestAddress must be set.
type Config struct {
	ManifestPath    string        `json:"manifest_path"`
	ManifestAddress contracts.URL `json:"manifest_address"`
	TierMapPath     string        `json:"tier_map_path"`
	ListenAddress   string        `json:"listen_address"`

	MaxRetry               int   `json:"max_retry"`
	BackoffSeconds         int   `json:"backoff_seconds"`
	ProbeTimeoutSeconds    int   `json:"probe_timeout_seconds"`
	StallTimeoutSeconds    int   `json:"stall_timeout_seconds"`
	MaxConcurrentDownloads int64 `json:"max_concurrent_downloads"`
}

func ParseConfig(path string) (config Config, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not open config file: %w", err)
	}
	err = json.Unmarshal(raw, &config)
	if err != nil {
		return Config{}, fmt.Errorf("malformed config file %q: %w", path, err)
	}
	return config.withDefaults(), config.validate()
}

func (this Config) withDefaults() Config {
	if this.ListenAddress == "" {
		this.ListenAddress = "127.0.0.1:8642"
	}
	if this.MaxRetry == 0 {
		this.MaxRetry = 3
	}
	if this.BackoffSeconds == 0 {
		this.BackoffSeconds = 2
	}
	if this.ProbeTimeoutSeconds == 0 {
		this.ProbeTimeoutSeconds = 30
	}
	if this.StallTimeoutSeconds == 0 {
		this.StallTimeoutSeconds = 60
	}
	return this
}

func (this Config) validate() error {
	remote := this.ManifestAddress.Value().String() != ""
	if this.ManifestPath == "" && !remote {
		return fmt.Errorf("config must set manifest_path or manifest_address")
	}
	if this.ManifestPath != "" && remote {
		return fmt.Errorf("config sets both manifest_path and manifest_address; choose one")
	}
	return nil
}

func (this Config) Backoff() time.Duration {
	return time.Duration(this.BackoffSeconds) * time.Second
}

func (this Config) ProbeTimeout() time.Duration {
	return time.Duration(this.ProbeTimeoutSeconds) * time.Second
}

func (this Config) StallTimeout() time.Duration {
	return time.Duration(this.StallTimeoutSeconds) * time.Second
}
