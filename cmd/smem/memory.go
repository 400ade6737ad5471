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
	"strings"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/hybridsearch"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
	"github.com/securamem/smem/internal/storage"
)

func rememberCmd() *cobra.Command {
	var memContext, memType string
	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: "store a freeform memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			return runTracked(commandSpec{
				Name:   "remember",
				Argv:   os.Args[1:],
				Params: map[string]any{"context": memContext, "type": memType, "dryRun": flagDryRun},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				if flagDryRun {
					return outcome{ResultSummary: fmt.Sprintf("dry-run: would remember %d bytes", len(content))}, nil
				}
				memType := memType
				if memType == "" {
					memType = "note"
				}
				id, err := pctx.Storage.StoreMemory(ctx, storage.StoreMemoryParams{
					Content: content, Context: memContext, Type: memType,
				})
				if err != nil {
					return outcome{}, err
				}
				vec := pctx.Indexer().Embed(content, pctx.Indexer().Dim)
				_ = pctx.Storage.UpsertVector(ctx, id, vec)
				return outcome{
					ResultSummary: fmt.Sprintf("remembered id=%d", id),
					Results:       map[string]any{"id": id},
				}, nil
			})
		},
	}
	cmd.Flags().StringVar(&memContext, "context", "", "free-text context tag")
	cmd.Flags().StringVar(&memType, "type", "note", "memory type")
	return cmd
}

func recallCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "search stored memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runTracked(commandSpec{
				Name:   "recall",
				Argv:   os.Args[1:],
				Params: map[string]any{"limit": limit},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				results, err := pctx.Search(ctx, query, hybridsearch.SearchOptions{Limit: limit})
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("%d result(s)", len(results)),
					Results:       results,
					Render:        func() { renderSearchResults(results) },
				}, nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "maximum number of results")
	return cmd
}
