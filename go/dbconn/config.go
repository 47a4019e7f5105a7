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

package dbconn

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config describes how to reach one database. It is consumed when the pool
// is constructed and never re-read.
type Config struct {
	// Driver selects the database/sql driver: "postgres" or "mysql".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Host and Port locate the server.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// Database is the database (schema) name.
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// SSLMode applies to postgres only. Defaults to "require".
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode,omitempty"`
	// Params are extra driver parameters appended to the DSN.
	Params map[string]string `mapstructure:"params" yaml:"params,omitempty"`
	// ConnectTimeout bounds the initial connectivity check and is passed to
	// the driver as its dial timeout. Defaults to 5 seconds.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
	// ConnectAttempts is the number of times the initial connectivity check
	// may run, with exponential backoff between attempts. Defaults to 1:
	// a single attempt, no retrying. This covers connection establishment
	// only; statements are never retried.
	ConnectAttempts int `mapstructure:"connect_attempts" yaml:"connect_attempts,omitempty"`
	// InstrumentDriver opens the database through the OTel sql wrapper so
	// every statement is traced at the driver level.
	InstrumentDriver bool `mapstructure:"instrument_driver" yaml:"instrument_driver,omitempty"`
}

const (
	defaultPostgresPort   = 5432
	defaultMySQLPort      = 3306
	defaultSSLMode        = "require"
	defaultConnectTimeout = 5 * time.Second
)

// withDefaults returns a copy of c with zero values filled in.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres:
			c.Port = defaultPostgresPort
		case DriverMySQL:
			c.Port = defaultMySQLPort
		}
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 1
	}
	return c
}

// DSN renders the driver connection string.
func (c Config) DSN() (string, error) {
	c = c.withDefaults()
	switch c.Driver {
	case DriverPostgres:
		return c.postgresDSN(), nil
	case DriverMySQL:
		return c.mysqlDSN(), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

// postgresDSN renders the libpq keyword/value form. Values are always
// single-quoted so hosts, names and passwords with spaces or quotes survive.
func (c Config) postgresDSN() string {
	var sb strings.Builder
	write := func(key, val string) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(pqQuote(val))
	}

	write("host", c.Host)
	fmt.Fprintf(&sb, " port=%d", c.Port)
	write("dbname", c.Database)
	if c.User != "" {
		write("user", c.User)
	}
	if c.Password != "" {
		write("password", c.Password)
	}
	write("sslmode", c.SSLMode)
	fmt.Fprintf(&sb, " connect_timeout=%d", int(c.ConnectTimeout.Seconds()))

	for _, k := range sortedKeys(c.Params) {
		write(k, c.Params[k])
	}
	return sb.String()
}

// mysqlDSN delegates to the driver's own config type so defaults like
// allowNativePasswords stay aligned with the driver version.
func (c Config) mysqlDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Database
	mc.Timeout = c.ConnectTimeout
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// Redacted returns a loggable description of the target with the password
// masked.
func (c Config) Redacted() string {
	c = c.withDefaults()
	user := c.User
	if user == "" {
		user = "-"
	}
	return fmt.Sprintf("%s://%s:***@%s:%d/%s", c.Driver, user, c.Host, c.Port, c.Database)
}

// pqQuote single-quotes a libpq value, escaping backslashes and quotes.
func pqQuote(val string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return "'" + escaped + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
