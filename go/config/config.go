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

// Package config loads the stratum configuration: named connection pools plus
// logging and telemetry settings. Sources are a YAML file (searched or given
// explicitly) and STRATUM_* environment variables. Configuration is read once
// at startup; there is no live re-reading.
package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stratumdb/stratum/go/dbconn"
	"github.com/stratumdb/stratum/go/logutil"
	"github.com/stratumdb/stratum/go/telemetry"
)

const defaultConfigName = "stratum"

// PoolConfig describes one named pool: how to reach the database and how the
// pool sizes and recycles its sessions.
type PoolConfig struct {
	dbconn.Config `mapstructure:",squash" yaml:",inline"`

	// MaxConnections caps concurrent sessions; acquisition beyond it fails
	// immediately.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
	// MaxIdleTime is how long an idle session may sit before pruning.
	MaxIdleTime time.Duration `mapstructure:"max_idle_time" yaml:"max_idle_time"`
	// MaxLifetime retires sessions by age regardless of use. Zero means no
	// age limit.
	MaxLifetime time.Duration `mapstructure:"max_lifetime" yaml:"max_lifetime"`
	// PruneInterval is the background sweep cadence.
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

// ConnConfig returns the connection settings for dialing this pool's
// database.
func (p PoolConfig) ConnConfig() dbconn.Config { return p.Config }

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxConnections == 0 {
		p.MaxConnections = 10
	}
	if p.MaxIdleTime == 0 {
		p.MaxIdleTime = 5 * time.Minute
	}
	if p.PruneInterval == 0 {
		p.PruneInterval = 30 * time.Second
	}
	return p
}

// Config is the full stratum configuration.
type Config struct {
	Pools     map[string]PoolConfig `mapstructure:"pools" yaml:"pools"`
	Logging   logutil.Config        `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Config      `mapstructure:"telemetry" yaml:"telemetry"`
}

// Defaults returns the configuration used when no file and no environment
// variables are present.
func Defaults() *Config {
	return &Config{
		Pools:     map[string]PoolConfig{},
		Logging:   logutil.DefaultConfig(),
		Telemetry: telemetry.Config{Enabled: false, ServiceName: "stratum"},
	}
}

// envBoundKeys are the scalar settings that may come from STRATUM_*
// environment variables, e.g. STRATUM_LOGGING_LEVEL. Pool settings are
// map-shaped and only come from the file.
var envBoundKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"telemetry.enabled",
	"telemetry.service_name",
}

type loadOptions struct {
	file  string
	paths []string
	name  string
	fs    afero.Fs
}

// LoadOption adjusts where Load looks for configuration.
type LoadOption func(*loadOptions)

// WithFile reads exactly this file instead of searching. The file must exist.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithPaths sets the directories searched for <name>.yaml.
func WithPaths(paths ...string) LoadOption {
	return func(o *loadOptions) { o.paths = paths }
}

// WithName overrides the config file base name (default stratum).
func WithName(name string) LoadOption {
	return func(o *loadOptions) { o.name = name }
}

// WithFs reads through the given filesystem, for tests.
func WithFs(fs afero.Fs) LoadOption {
	return func(o *loadOptions) { o.fs = fs }
}

// Load reads the configuration. A missing file is not an error unless it was
// requested explicitly with WithFile; environment variables and defaults
// still apply. Load fills per-pool defaults but does not validate.
func Load(opts ...LoadOption) (*Config, error) {
	o := loadOptions{name: defaultConfigName, paths: []string{"."}}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	if o.fs != nil {
		v.SetFs(o.fs)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Explicit binds so env-only values survive the AllSettings round trip.
	for _, key := range envBoundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName(o.name)
		for _, p := range o.paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := Defaults()
	if err := decode(v.AllSettings(), cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	for name, pool := range cfg.Pools {
		cfg.Pools[name] = pool.withDefaults()
	}
	return cfg, nil
}

// decode maps viper's settings onto the config struct. Duration fields accept
// strings like "5m"; scalar types are coerced so environment strings work.
func decode(settings map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}

// Validate checks the configuration is usable. Load has already applied
// defaults, so zero values here are genuine mistakes.
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return errors.New("no pools configured")
	}
	for _, name := range slices.Sorted(maps.Keys(c.Pools)) {
		p := c.Pools[name]
		if name == "" {
			return errors.New("pool name must not be empty")
		}
		switch p.Driver {
		case dbconn.DriverPostgres, dbconn.DriverMySQL:
		default:
			return fmt.Errorf("pool %q: unknown driver %q", name, p.Driver)
		}
		if p.Host == "" {
			return fmt.Errorf("pool %q: host must be set", name)
		}
		if p.Database == "" {
			return fmt.Errorf("pool %q: database must be set", name)
		}
		if p.MaxConnections < 1 {
			return fmt.Errorf("pool %q: max_connections must be at least 1", name)
		}
		if p.MaxIdleTime <= 0 {
			return fmt.Errorf("pool %q: max_idle_time must be positive", name)
		}
		if p.MaxLifetime < 0 {
			return fmt.Errorf("pool %q: max_lifetime must not be negative", name)
		}
		if p.PruneInterval <= 0 {
			return fmt.Errorf("pool %q: prune_interval must be positive", name)
		}
	}
	if _, err := logutil.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Flags carries the config-location command line flags.
type Flags struct {
	ConfigFile  string
	ConfigPaths []string
}

// RegisterFlags binds the config-location flags onto f.
func (f *Flags) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigFile, "config-file", "",
		"Explicit config file; overrides the search paths")
	fs.StringSliceVar(&f.ConfigPaths, "config-path", []string{"."},
		"Directories searched for "+defaultConfigName+".yaml")
}

// LoadOptions translates the parsed flags into Load options.
func (f *Flags) LoadOptions() []LoadOption {
	var opts []LoadOption
	if f.ConfigFile != "" {
		opts = append(opts, WithFile(f.ConfigFile))
	}
	if len(f.ConfigPaths) > 0 {
		opts = append(opts, WithPaths(f.ConfigPaths...))
	}
	return opts
}
