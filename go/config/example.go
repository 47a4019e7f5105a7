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
	"time"

	"github.com/stratumdb/stratum/go/dbconn"
	"github.com/stratumdb/stratum/go/logutil"
	"github.com/stratumdb/stratum/go/telemetry"
)

// ExampleYAML is the starter configuration written by `stratum config init`.
const ExampleYAML = `# stratum configuration
#
# Each entry under pools: is an independent connection pool. Scalar settings
# can also come from the environment, e.g. STRATUM_LOGGING_LEVEL=debug.

pools:
  primary:
    driver: postgres
    host: localhost
    port: 5432
    database: app
    user: app
    password: change-me
    ssl_mode: disable
    max_connections: 10
    max_idle_time: 5m
    max_lifetime: 30m
    prune_interval: 30s

logging:
  level: info
  format: text
  output: stderr

telemetry:
  enabled: false
  service_name: stratum
`

// Example returns the configuration ExampleYAML parses to.
func Example() *Config {
	return &Config{
		Pools: map[string]PoolConfig{
			"primary": {
				Config: dbconn.Config{
					Driver:   dbconn.DriverPostgres,
					Host:     "localhost",
					Port:     5432,
					Database: "app",
					User:     "app",
					Password: "change-me",
					SSLMode:  "disable",
				},
				MaxConnections: 10,
				MaxIdleTime:    5 * time.Minute,
				MaxLifetime:    30 * time.Minute,
				PruneInterval:  30 * time.Second,
			},
		},
		Logging:   logutil.Config{Level: "info", Format: "text", Output: "stderr"},
		Telemetry: telemetry.Config{Enabled: false, ServiceName: "stratum"},
	}
}
