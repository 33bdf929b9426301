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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "wsgate-node", cfg.Gateway.NodeID)
	assert.Equal(t, ":8080", cfg.Gateway.ListenAddr)
	assert.Equal(t, ":8082", cfg.Gateway.MetricsAddr)

	assert.Equal(t, "data", cfg.Gateway.Topics.Data)
	assert.Equal(t, "command", cfg.Gateway.Topics.Message)
	assert.Equal(t, "groupcommand", cfg.Gateway.Topics.Group)

	assert.Equal(t, PolicyPush, cfg.Gateway.Directory.Policy)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Directory.LookupTimeout())
	assert.Equal(t, 5*time.Second, cfg.Gateway.ShutdownGrace())
}

func TestLoadConfigYAML(t *testing.T) {
	yamlContent := `
gateway:
  node_id: test-node
  listen_addr: ":9090"
  metrics_addr: ":9091"
  topics:
    data: telemetry
    message: command
    group: groupcommand
  directory:
    policy: pull
    lookup_timeout_seconds: 2
`

	tmpFile := createTempFile(t, "config.yaml", yamlContent)
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "test-node", cfg.Gateway.NodeID)
	assert.Equal(t, ":9090", cfg.Gateway.ListenAddr)
	assert.Equal(t, ":9091", cfg.Gateway.MetricsAddr)
	assert.Equal(t, "telemetry", cfg.Gateway.Topics.Data)
	assert.Equal(t, PolicyPull, cfg.Gateway.Directory.Policy)
	assert.Equal(t, 2*time.Second, cfg.Gateway.Directory.LookupTimeout())
}

func TestLoadConfigJSON(t *testing.T) {
	jsonContent := `{
  "gateway": {
    "node_id": "json-node",
    "listen_addr": ":7070",
    "topics": {"data": "data", "message": "msg", "group": "groupmsg"},
    "directory": {"policy": "push"}
  }
}`

	tmpFile := createTempFile(t, "config.json", jsonContent)
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "json-node", cfg.Gateway.NodeID)
	assert.Equal(t, ":7070", cfg.Gateway.ListenAddr)
	assert.Equal(t, "msg", cfg.Gateway.Topics.Message)
}

func TestLoadConfigMissingPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigUnsupportedExtension(t *testing.T) {
	tmpFile := createTempFile(t, "config.toml", "gateway = 1")
	defer os.Remove(tmpFile)

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestValidateConfigRejectsDuplicateTopics(t *testing.T) {
	yamlContent := `
gateway:
  topics:
    data: same
    message: same
    group: groupcommand
`
	tmpFile := createTempFile(t, "config.yaml", yamlContent)
	defer os.Remove(tmpFile)

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate topic name")
}

func TestValidateConfigRejectsUnknownPolicy(t *testing.T) {
	yamlContent := `
gateway:
  directory:
    policy: oracle
`
	tmpFile := createTempFile(t, "config.yaml", yamlContent)
	defer os.Remove(tmpFile)

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported directory policy")
}

func TestValidateConfigPostgresRequiresDSN(t *testing.T) {
	yamlContent := `
gateway:
  directory:
    policy: postgres
`
	tmpFile := createTempFile(t, "config.yaml", yamlContent)
	defer os.Remove(tmpFile)

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires postgres_dsn")
}

func TestSaveAndReloadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.NodeID = "roundtrip"

	tmpFile := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(cfg, tmpFile))

	loaded, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Gateway.NodeID)
	assert.Equal(t, cfg.Gateway.Topics, loaded.Gateway.Topics)
}

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
