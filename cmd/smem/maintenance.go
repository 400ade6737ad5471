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

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/health"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func digestCacheCmd() *cobra.Command {
	var list, clear bool
	var limit int

	cmd := &cobra.Command{
		Use:   "digest-cache",
		Short: "inspect or clear the file digest cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "digest-cache",
				Argv:   os.Args[1:],
				Params: map[string]any{"list": list, "clear": clear, "limit": limit},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				if clear {
					n, err := pctx.Storage.ClearFileDigests(ctx)
					if err != nil {
						return outcome{}, err
					}
					return outcome{ResultSummary: fmt.Sprintf("cleared %d digest(s)", n)}, nil
				}
				entries, err := pctx.Storage.ListFileDigests(ctx, limit)
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("%d digest(s)", len(entries)),
					Results:       entries,
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list cached file digests")
	cmd.Flags().BoolVar(&clear, "clear", false, "delete every cached digest")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of digests to list (0 is unbounded)")
	return cmd
}

func gcCmd() *cobra.Command {
	var pruneVectors, dropStaleDigests, vacuum bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "prune orphan vectors, drop stale digests, and vacuum storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name: "gc",
				Argv: os.Args[1:],
				Params: map[string]any{
					"pruneVectors": pruneVectors, "dropStaleDigests": dropStaleDigests, "vacuum": vacuum,
				},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				res, err := pctx.GC(ctx, health.GCOptions{
					PruneVectors: pruneVectors, DropStaleDigests: dropStaleDigests, Vacuum: vacuum,
				})
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("pruned %d vector(s), dropped %d digest(s), vacuumed=%v",
						res.VectorsPruned, res.DigestsDropped, res.Vacuumed),
					Results: res,
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&pruneVectors, "prune-vectors", false, "delete vectors with no surviving memory")
	cmd.Flags().BoolVar(&dropStaleDigests, "drop-stale-digests", false, "delete digest rows for files missing on disk")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "reclaim free space in the database file")
	return cmd
}
