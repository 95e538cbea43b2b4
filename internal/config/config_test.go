// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hui-shao/byre/internal/domain"
)

func TestDatabasePathResolution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (configPath string, envDataDir string, expectedDBPath string)
	}{
		{
			name: "default_next_to_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				content := "logLevel = \"INFO\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(tmpDir, "byre.db")
			},
		},
		{
			name: "explicit_data_dir_in_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				dataDir := filepath.Join(tmpDir, "data")
				require.NoError(t, os.MkdirAll(dataDir, 0o755))
				content := fmt.Sprintf("logLevel = \"INFO\"\ndataDir = %q\n", dataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(dataDir, "byre.db")
			},
		},
		{
			name: "env_var_override",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				configDataDir := filepath.Join(tmpDir, "config-data")
				envDataDir := filepath.Join(tmpDir, "env-data")
				require.NoError(t, os.MkdirAll(configDataDir, 0o755))
				require.NoError(t, os.MkdirAll(envDataDir, 0o755))
				content := fmt.Sprintf("logLevel = \"INFO\"\ndataDir = %q\n", configDataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, envDataDir, filepath.Join(envDataDir, "byre.db")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath, envValue, expectedDBPath := tt.prepare(t, tmpDir)
			if envValue != "" {
				t.Setenv(envPrefix+"DATA_DIR", envValue)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(expectedDBPath), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			fileIsDir:      false,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					err := os.MkdirAll(inputPath, 0o755)
					require.NoError(t, err)
				} else {
					err := os.WriteFile(inputPath, []byte("test"), 0o644)
					require.NoError(t, err)
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestNewLoadsConfigFromFileOrDirectory(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (inputPath string, expectedURL string, expectedDBPath string)
	}{
		{
			name: "config_file_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "myconfig.toml")
				content := "[qbittorrent]\nurl = \"http://localhost:9091\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "http://localhost:9091", filepath.Join(tmpDir, "byre.db")
			},
		},
		{
			name: "config_directory_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configDir := filepath.Join(tmpDir, "configdir")
				require.NoError(t, os.MkdirAll(configDir, 0o755))
				content := "[qbittorrent]\nurl = \"http://10.0.0.2:8080\"\n"
				require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
				return configDir, "http://10.0.0.2:8080", filepath.Join(configDir, "byre.db")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath, expectedURL, expectedDBPath := tt.prepare(t, tmpDir)

			cfg, err := New(inputPath)
			require.NoError(t, err)

			assert.Equal(t, expectedURL, cfg.Config.QBittorrent.URL)
			assert.Equal(t, filepath.Clean(expectedDBPath), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestNewCreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	// The generated file must parse back and carry the defaults.
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[qbittorrent]")
	assert.Contains(t, string(data), "[scoring]")

	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.Equal(t, "http://localhost:8080", cfg.Config.QBittorrent.URL)
	assert.InDelta(t, 1.0, cfg.Config.Scoring.FreeWeight, 1e-9)
	assert.InDelta(t, 7.0, cfg.Config.Scoring.CostRecoveryDays, 1e-9)
	assert.InDelta(t, 15.0, cfg.Config.Scoring.RemovalExemptionDays, 1e-9)

	require.Len(t, cfg.Config.Sites, 1)
	assert.Equal(t, "byr", cfg.Config.Sites[0].Key)
}

func TestNewCarriesVersion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("logLevel = \"INFO\"\n"), 0o644))

	cfg, err := New(configPath, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", cfg.Config.Version)

	// No version argument means a dev build.
	cfg, err = New(configPath)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Config.Version)
}

func TestResolveCookiePath(t *testing.T) {
	cfg := &AppConfig{dataDir: "/data"}

	assert.Equal(t, filepath.Join("/data", "byr.cookies"),
		cfg.ResolveCookiePath(domain.SiteConfig{Key: "byr"}))
	assert.Equal(t, filepath.Join("/data", "custom.json"),
		cfg.ResolveCookiePath(domain.SiteConfig{Key: "byr", CookieCache: "custom.json"}))
	assert.Equal(t, "/abs/path.cookies",
		cfg.ResolveCookiePath(domain.SiteConfig{Key: "byr", CookieCache: "/abs/path.cookies"}))
}

func TestSitesFromConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := `
[[sites]]
key = "byr"
username = "alice"
password = "secret"

[[sites]]
key = "tju"
username = "bob"
password = "hunter2"
cookieCache = "tju-alt.cookies"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Config.Sites, 2)
	assert.Equal(t, "alice", cfg.Config.Sites[0].Username)
	assert.Equal(t, "tju", cfg.Config.Sites[1].Key)
	assert.Equal(t, "tju-alt.cookies", cfg.Config.Sites[1].CookieCache)
}
