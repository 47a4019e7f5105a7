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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// AddStatsCommand adds the stats subcommand to the root command.
func AddStatsCommand(root *cobra.Command, s *Stratum) {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-pool connection counters",
		Long: `Open every configured pool and print its counters.

Opening a pool dials its database, so stats doubles as a connectivity check:
it fails if any configured database is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cleanup, err := s.openSet(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			stats := set.Stats()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POOL\tCAPACITY\tACTIVE\tIDLE\tSPAWNED\tACQUISITIONS\tMAX_IDLE_TIME")
			for _, name := range set.Names() {
				ps := stats[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					ps.Name, ps.Capacity, ps.Active, ps.Idle, ps.Spawned, ps.Acquisitions, ps.MaxIdleTime)
			}
			return w.Flush()
		},
	}
	root.AddCommand(cmd)
}
