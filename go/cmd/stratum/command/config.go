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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/go/config"
)

// AddConfigCommand adds the config subcommand tree to the root command.
func AddConfigCommand(root *cobra.Command, s *Stratum) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Bootstrap and inspect configuration",
		Args:  cobra.NoArgs,
	}
	configCmd.AddCommand(newConfigInitCommand(s))
	configCmd.AddCommand(newConfigValidateCommand(s))
	root.AddCommand(configCmd)
}

func newConfigInitCommand(s *Stratum) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a commented starter configuration file.

The file is written to --config-file when given, otherwise to stratum.yaml
in the first --config-path directory. An existing file is never overwritten.

Examples:
  # Write ./stratum.yaml
  stratum config init

  # Write to an explicit location
  stratum config init --config-file /etc/stratum/stratum.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := s.configInitPath()

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists: %s", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create config directory %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(path, []byte(config.ExampleYAML), 0o644); err != nil {
				return fmt.Errorf("failed to write config file %s: %w", path, err)
			}

			fmt.Printf("Created configuration file: %s\n", path)
			return nil
		},
	}
}

// configInitPath resolves where config init should write.
func (s *Stratum) configInitPath() string {
	if s.cfgFlags.ConfigFile != "" {
		return s.cfgFlags.ConfigFile
	}
	dir := "."
	if len(s.cfgFlags.ConfigPaths) > 0 {
		dir = s.cfgFlags.ConfigPaths[0]
	}
	return filepath.Join(dir, "stratum.yaml")
}

func newConfigValidateCommand(s *Stratum) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration loads and is valid",
		Long: `Load the configuration the same way every other command does, apply
defaults and environment overrides, and run validation. Nothing is dialed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Configuration OK: %d pool(s) defined\n", len(cfg.Pools))
			return nil
		},
	}
}
