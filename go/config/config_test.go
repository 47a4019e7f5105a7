// Copyright 2025 The Stratum Authors.
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
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/go/dbconn"
)

const testYAML = `pools:
  primary:
    driver: postgres
    host: db.internal
    port: 5433
    database: app
    user: app
    password: secret
    max_idle_time: 2m
  reporting:
    driver: mysql
    host: mysql.internal
    database: reports
    user: reporter
    password: secret
    max_connections: 4

logging:
  level: info
  format: json
`

func writeConfig(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadFromSearchPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/stratum/stratum.yaml", testYAML)

	cfg, err := Load(WithFs(fs), WithPaths("/etc/stratum"))
	require.NoError(t, err)

	require.Len(t, cfg.Pools, 2)

	primary := cfg.Pools["primary"]
	assert.Equal(t, dbconn.DriverPostgres, primary.Driver)
	assert.Equal(t, "db.internal", primary.Host)
	assert.Equal(t, 5433, primary.Port)
	assert.Equal(t, 2*time.Minute, primary.MaxIdleTime)
	// Omitted settings fall back to the pool defaults.
	assert.Equal(t, 10, primary.MaxConnections)
	assert.Equal(t, 30*time.Second, primary.PruneInterval)

	reporting := cfg.Pools["reporting"]
	assert.Equal(t, dbconn.DriverMySQL, reporting.Driver)
	assert.Equal(t, 4, reporting.MaxConnections)
	assert.Equal(t, 5*time.Minute, reporting.MaxIdleTime)

	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadExplicitFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/tmp/custom.yaml", testYAML)

	cfg, err := Load(WithFs(fs), WithFile("/tmp/custom.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Pools, 2)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(WithFs(fs), WithFile("/tmp/missing.yaml"))
	require.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(WithFs(afero.NewMemMapFs()), WithPaths("/nowhere"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Pools)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("STRATUM_LOGGING_LEVEL", "debug")
	t.Setenv("STRATUM_TELEMETRY_ENABLED", "true")
	t.Setenv("STRATUM_TELEMETRY_SERVICE_NAME", "stratum-staging")

	cfg, err := Load(WithFs(afero.NewMemMapFs()), WithPaths("/nowhere"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "stratum-staging", cfg.Telemetry.ServiceName)
}

func TestLoadEnvironmentBeatsFile(t *testing.T) {
	t.Setenv("STRATUM_LOGGING_LEVEL", "error")

	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/stratum/stratum.yaml", testYAML)

	cfg, err := Load(WithFs(fs), WithPaths("/etc/stratum"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Example()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "example is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "no pools",
			mutate:  func(c *Config) { c.Pools = nil },
			wantErr: "no pools",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				p := c.Pools["primary"]
				p.Driver = "oracle"
				c.Pools["primary"] = p
			},
			wantErr: "unknown driver",
		},
		{
			name: "missing host",
			mutate: func(c *Config) {
				p := c.Pools["primary"]
				p.Host = ""
				c.Pools["primary"] = p
			},
			wantErr: "host",
		},
		{
			name: "missing database",
			mutate: func(c *Config) {
				p := c.Pools["primary"]
				p.Database = ""
				c.Pools["primary"] = p
			},
			wantErr: "database",
		},
		{
			name: "zero connections",
			mutate: func(c *Config) {
				p := c.Pools["primary"]
				p.MaxConnections = 0
				c.Pools["primary"] = p
			},
			wantErr: "max_connections",
		},
		{
			name: "negative lifetime",
			mutate: func(c *Config) {
				p := c.Pools["primary"]
				p.MaxLifetime = -time.Minute
				c.Pools["primary"] = p
			},
			wantErr: "max_lifetime",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExampleYAMLParsesToExample(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/stratum/stratum.yaml", ExampleYAML)

	cfg, err := Load(WithFs(fs), WithPaths("/etc/stratum"))
	require.NoError(t, err)

	assert.Equal(t, Example(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsFeedLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/opt/app/prod.yaml", testYAML)

	var flags Flags
	pfs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.RegisterFlags(pfs)
	require.NoError(t, pfs.Parse([]string{"--config-file=/opt/app/prod.yaml"}))

	opts := append([]LoadOption{WithFs(fs)}, flags.LoadOptions()...)
	cfg, err := Load(opts...)
	require.NoError(t, err)
	assert.Len(t, cfg.Pools, 2)
}
