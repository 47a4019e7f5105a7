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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/go/dbconn"
)

// PingCmd holds the ping command configuration.
type PingCmd struct {
	s       *Stratum
	timeout time.Duration
}

// AddPingCommand adds the ping subcommand to the root command.
func AddPingCommand(root *cobra.Command, s *Stratum) {
	p := &PingCmd{s: s}

	cmd := &cobra.Command{
		Use:   "ping [pool ...]",
		Short: "Check that configured pools answer on a live session",
		Long: `Acquire a session from each named pool and ping it.

Without arguments every configured pool is pinged. The command fails if any
pool cannot be reached, after trying all of them.

Examples:
  # Ping every configured pool
  stratum ping

  # Ping only the primary
  stratum ping primary`,
		RunE: p.run,
	}
	cmd.Flags().DurationVar(&p.timeout, "timeout", 5*time.Second, "Per-pool ping timeout")

	root.AddCommand(cmd)
}

func (p *PingCmd) run(cmd *cobra.Command, args []string) error {
	set, cleanup, err := p.s.openSet(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	names := args
	if len(names) == 0 {
		names = set.Names()
	}

	var failures []error
	for _, name := range names {
		start := time.Now()
		err := set.WithConn(cmd.Context(), name, func(ctx context.Context, conn *dbconn.Conn) error {
			pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return conn.PingContext(pingCtx)
		})
		if err != nil {
			fmt.Printf("pool %s: failed: %v\n", name, err)
			failures = append(failures, fmt.Errorf("pool %q: %w", name, err))
			continue
		}
		fmt.Printf("pool %s: ok (%s)\n", name, time.Since(start).Round(time.Millisecond))
	}
	return errors.Join(failures...)
}
