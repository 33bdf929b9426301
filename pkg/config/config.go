// Copyright 2024 The wsgate-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for the gateway, covering
// the listen address, the inbound topic taxonomy, the device directory policy
// and the backend platform transport.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Directory policies selectable via DirectoryConfig.Policy.
const (
	// PolicyPush keeps a local authorized-device set synchronized by
	// deviceAdded/deviceRemoved platform events.
	PolicyPush = "push"
	// PolicyPull resolves each device through a correlated request/response
	// round-trip to the backend.
	PolicyPull = "pull"
	// PolicyPostgres resolves devices against a PostgreSQL device table.
	PolicyPostgres = "postgres"
)

// TopicsConfig names the three inbound topic discriminators. Each one is
// independently configurable; the defaults match what devices built against
// the original gateway send.
type TopicsConfig struct {
	Data    string `yaml:"data" json:"data"`
	Message string `yaml:"message" json:"message"`
	Group   string `yaml:"group" json:"group"`
}

// DirectoryConfig selects how device identities are authorized.
type DirectoryConfig struct {
	Policy string `yaml:"policy" json:"policy"`
	// LookupTimeoutSeconds bounds a pull-mode lookup. Zero means the
	// default of five seconds; lookups without a bound leak pending state
	// when the backend never answers.
	LookupTimeoutSeconds int    `yaml:"lookup_timeout_seconds" json:"lookup_timeout_seconds"`
	PostgresDSN          string `yaml:"postgres_dsn" json:"postgres_dsn"`
	PostgresTable        string `yaml:"postgres_table" json:"postgres_table"`
}

// NATSConfig configures the broker-based platform transport. An empty URL
// selects the in-process loopback transport.
type NATSConfig struct {
	URL string `yaml:"url" json:"url"`
}

// GatewayConfig represents the overall gateway configuration.
type GatewayConfig struct {
	NodeID               string          `yaml:"node_id" json:"node_id"`
	ListenAddr           string          `yaml:"listen_addr" json:"listen_addr"`
	MetricsAddr          string          `yaml:"metrics_addr" json:"metrics_addr"`
	Topics               TopicsConfig    `yaml:"topics" json:"topics"`
	Directory            DirectoryConfig `yaml:"directory" json:"directory"`
	NATS                 NATSConfig      `yaml:"nats" json:"nats"`
	ShutdownGraceSeconds int             `yaml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`
}

// Config holds the complete configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			NodeID:      "wsgate-node",
			ListenAddr:  ":8080",
			MetricsAddr: ":8082",
			Topics: TopicsConfig{
				Data:    "data",
				Message: "command",
				Group:   "groupcommand",
			},
			Directory: DirectoryConfig{
				Policy:               PolicyPush,
				LookupTimeoutSeconds: 5,
				PostgresTable:        "devices",
			},
			ShutdownGraceSeconds: 5,
		},
	}
}

// LookupTimeout returns the pull-mode lookup bound as a duration.
func (d DirectoryConfig) LookupTimeout() time.Duration {
	if d.LookupTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.LookupTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the grace period applied before the process exits on
// a fatal transport error or a shutdown signal.
func (g GatewayConfig) ShutdownGrace() time.Duration {
	if g.ShutdownGraceSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.ShutdownGraceSeconds) * time.Second
}

// LoadConfig loads configuration from a file.
func LoadConfig(configPath string) (*Config, error) {
	// If no config file specified, return default config
	if configPath == "" {
		log.Println("[INFO] No config file specified, using default configuration")
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("[INFO] Configuration loaded from %s", configPath)
	return config, nil
}

// SaveConfig saves configuration to a file.
func SaveConfig(config *Config, configPath string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configPath, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	log.Printf("[INFO] Configuration saved to %s", configPath)
	return nil
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	gw := config.Gateway

	if gw.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}

	if gw.Topics.Data == "" || gw.Topics.Message == "" || gw.Topics.Group == "" {
		return fmt.Errorf("all three topic names must be non-empty")
	}

	names := map[string]bool{}
	for _, topic := range []string{gw.Topics.Data, gw.Topics.Message, gw.Topics.Group} {
		if names[topic] {
			return fmt.Errorf("duplicate topic name: %s", topic)
		}
		names[topic] = true
	}

	switch gw.Directory.Policy {
	case PolicyPush, PolicyPull:
	case PolicyPostgres:
		if gw.Directory.PostgresDSN == "" {
			return fmt.Errorf("directory policy %q requires postgres_dsn", PolicyPostgres)
		}
	default:
		return fmt.Errorf("unsupported directory policy: %s (supported: %s, %s, %s)",
			gw.Directory.Policy, PolicyPush, PolicyPull, PolicyPostgres)
	}

	return nil
}
