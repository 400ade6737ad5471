// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

const agentGuide = `# securamem

This project has a local, air-gapped memory store at .securamem/.

- ` + "`smem remember <text>`" + ` saves a note.
- ` + "`smem recall <query>`" + ` searches notes and code memories.
- ` + "`smem index-code`" + ` indexes this tree's source files for search.
- ` + "`smem search-code <query>`" + ` runs hybrid lexical+semantic search over indexed code.
- ` + "`smem export-context --out bundle.smemctx`" + ` packages memories for another machine.

Nothing here ever leaves this machine: network egress is denied by default
(see .securamem/policy.json).
`

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create the .securamem layout and policy defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "init",
				Argv:   os.Args[1:],
				Params: map[string]any{"force": force},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				policyPath := pctx.Layout.PolicyPath()
				if _, err := os.Stat(policyPath); os.IsNotExist(err) || force {
					if err := policy.Save(policyPath, policy.Default()); err != nil {
						return outcome{}, err
					}
				}

				guidePath := filepath.Join(pctx.Layout.DataDir(), "GUIDE.md")
				if _, err := os.Stat(guidePath); os.IsNotExist(err) || force {
					if err := os.WriteFile(guidePath, []byte(agentGuide), 0o644); err != nil {
						return outcome{}, err
					}
				}

				return outcome{
					ResultSummary: fmt.Sprintf("initialized %s", pctx.Layout.DataDir()),
					Results: map[string]any{
						"dataDir":    pctx.Layout.DataDir(),
						"dbPath":     pctx.Layout.DBPath(),
						"policyPath": policyPath,
					},
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing policy.json/GUIDE.md")
	return cmd
}
