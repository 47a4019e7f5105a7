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

package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/go/config"
	"github.com/stratumdb/stratum/go/logutil"
	"github.com/stratumdb/stratum/go/pools/poolset"
	"github.com/stratumdb/stratum/go/telemetry"
)

// Stratum holds the state shared by all stratum commands.
type Stratum struct {
	logging  logutil.Config
	cfgFlags config.Flags

	logger *slog.Logger

	// dialer overrides how pools reach their databases. Tests inject a
	// sqlmock-backed dialer here; nil means real databases.
	dialer poolset.Dialer
}

// GetRootCommand creates and returns the root command for stratum with all
// subcommands.
func GetRootCommand() (*cobra.Command, *Stratum) {
	s := &Stratum{logging: logutil.DefaultConfig()}

	root := &cobra.Command{
		Use:   "stratum",
		Short: "Connection pooling and query execution for SQL databases",
		Long: `Stratum manages named connection pools over PostgreSQL and MySQL and runs
statements through them with flattened transactions and deferred write
batches.

Get started with:
  stratum config init    # Write a starter stratum.yaml
  stratum ping           # Check that every configured pool answers

Configuration is read from --config-file when given, otherwise from
stratum.yaml found in the --config-path directories. Any setting can be
overridden with STRATUM_* environment variables.`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Silence usage for application errors; this runs after flag
			// parsing, so flag errors still print it.
			cmd.SilenceUsage = true

			logger, err := logutil.NewLogger(s.logging)
			if err != nil {
				return err
			}
			s.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	s.logging.RegisterFlags(root.PersistentFlags())
	s.cfgFlags.RegisterFlags(root.PersistentFlags())

	AddConfigCommand(root, s)
	AddPingCommand(root, s)
	AddStatsCommand(root, s)

	return root, s
}

// loadConfig reads the configuration per the config-location flags and
// validates it.
func (s *Stratum) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(s.cfgFlags.LoadOptions()...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSet loads the configuration and opens every configured pool. The
// returned cleanup closes the pools and flushes telemetry.
func (s *Stratum) openSet(ctx context.Context) (*poolset.Set, func(), error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}

	opts := []poolset.Option{poolset.WithLogger(s.logger)}
	if cfg.Telemetry.Enabled {
		opts = append(opts, poolset.WithMeter(providers.Meter()))
	}
	if s.dialer != nil {
		opts = append(opts, poolset.WithDialer(s.dialer))
	}

	set, err := poolset.Open(ctx, cfg, opts...)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	cleanup := func() {
		set.Close()
		shutdown()
	}
	return set, cleanup, nil
}
