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

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the project root, database, and encryption status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "status", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					size, err := pctx.Storage.FileSize(ctx)
					if err != nil {
						return outcome{}, err
					}
					encrypted := !pctx.Crypto.DevMode
					results := map[string]any{
						"root":      pctx.Layout.Root(),
						"dataDir":   pctx.Layout.DataDir(),
						"dbPath":    pctx.Layout.DBPath(),
						"dbBytes":   size,
						"encrypted": encrypted,
					}
					return outcome{
						ResultSummary: fmt.Sprintf("root=%s db=%s (%d bytes) encrypted=%v",
							pctx.Layout.Root(), pctx.Layout.DBPath(), size, encrypted),
						Results: results,
					}, nil
				})
		},
	}
}

func vectorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vector-status",
		Short: "show the selected vector backend, dimension, and count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "vector-status", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					stats, err := pctx.Vectors.Stats(ctx)
					if err != nil {
						return outcome{}, err
					}
					return outcome{
						ResultSummary: fmt.Sprintf("backend=%s dim=%d count=%d", stats.Backend, stats.Dim, stats.Count),
						Results:       stats,
					}, nil
				})
		},
	}
}

func healthCmd() *cobra.Command {
	var sinceDays int
	cmd := &cobra.Command{
		Use:   "health",
		Short: "print storage/vector/digest rollups and receipt-derived latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "health",
				Argv:   os.Args[1:],
				Params: map[string]any{"sinceDays": sinceDays},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				rollup, err := pctx.Health(ctx, sinceDays)
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf(
						"memories=%d vectors=%d/%s digests=%d commands=%d errorRate=%.1f%% p50=%.1fms p95=%.1fms",
						rollup.MemoryCount, rollup.VectorCount, rollup.VectorBackend, rollup.FileDigestCount,
						rollup.CommandCount, rollup.ErrorRatePercent, rollup.LatencyP50Ms, rollup.LatencyP95Ms),
					Results: rollup,
				}, nil
			})
		},
	}
	cmd.Flags().IntVar(&sinceDays, "since", health.DefaultSinceDays, "rollup window in days")
	return cmd
}
