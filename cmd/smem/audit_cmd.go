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
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/audit"
	"github.com/securamem/smem/internal/indexing"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func journalCmd() *cobra.Command {
	var show, clear bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "show or clear the append-only command journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "journal",
				Argv:   os.Args[1:],
				Params: map[string]any{"show": show, "clear": clear},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				if clear {
					if err := audit.ClearJournal(pctx.Layout.JournalPath()); err != nil {
						return outcome{}, err
					}
					return outcome{ResultSummary: "journal cleared"}, nil
				}
				entries, err := audit.ReadJournal(pctx.Layout.JournalPath())
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("%d journal entries", len(entries)),
					Results:       entries,
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&show, "show", true, "print journal entries (default)")
	cmd.Flags().BoolVar(&clear, "clear", false, "truncate the journal")
	return cmd
}

// cliExecutor re-dispatches a journaled command by name for `replay
// --execute`. It reads the original receipt's stored params rather than
// re-parsing argv, since argv is not guaranteed to still resolve to the
// same flags across smem versions.
type cliExecutor struct {
	pctx        *project.Context
	summaryOnly bool
}

func (e *cliExecutor) Execute(entry audit.JournalEntry, dryRun bool) error {
	receipt, err := audit.ReadReceipt(entry.Receipt)
	if err != nil {
		return err
	}
	if e.summaryOnly {
		fmt.Fprintf(os.Stdout, "%s %s: %s\n", receipt.ID, receipt.Command, receipt.ResultSummary)
		return nil
	}
	if dryRun {
		fmt.Fprintf(os.Stdout, "dry-run: would replay %s (%s)\n", receipt.ID, receipt.Command)
		return nil
	}

	ctx := context.Background()
	switch receipt.Command {
	case "index-code":
		path, _ := receipt.Params["path"].(string)
		symbols, _ := receipt.Params["symbols"].(bool)
		root := path
		if root == "" {
			root = e.pctx.Layout.Root()
		}
		_, err := e.pctx.Indexer().IndexCode(ctx, root, indexing.Options{Symbols: symbols})
		return err
	case "reindex-file":
		file, _ := receipt.Params["file"].(string)
		return e.pctx.Indexer().ReindexSingleFile(ctx, file, indexing.Options{Symbols: true})
	case "reindex-folder":
		folder, _ := receipt.Params["folder"].(string)
		_, err := e.pctx.Indexer().ReindexFolder(ctx, folder, indexing.Options{Symbols: true})
		return err
	case "gc":
		return nil // gc has no meaningful replay: it is idempotent housekeeping, not a recorded mutation worth repeating
	default:
		return fmt.Errorf("replay: %s has no registered executor", receipt.Command)
	}
}

func replayCmd() *cobra.Command {
	var last, rng int
	var id string
	var execute, summaryOnly bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "re-run a batch of previously journaled commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "replay",
				Argv:   os.Args[1:],
				Params: map[string]any{"last": last, "id": id, "range": rng, "execute": execute},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				entries, err := audit.ReadJournal(pctx.Layout.JournalPath())
				if err != nil {
					return outcome{}, err
				}
				plan := audit.BuildPlan(entries, audit.Selector{Last: last, ID: id, Range: rng}, execute)
				exec := &cliExecutor{pctx: pctx, summaryOnly: summaryOnly}
				if err := plan.Run(exec); err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("replayed %d entries (dryRun=%v) batchSha256=%s",
						len(plan.Entries), plan.DryRun, plan.BatchSha256),
					Results: plan,
				}, nil
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "replay the last N entries")
	cmd.Flags().StringVar(&id, "id", "", "replay exactly the entry with this receipt id")
	cmd.Flags().IntVar(&rng, "range", 0, "replay the last N entries (alias for --last)")
	cmd.Flags().BoolVar(&execute, "execute", false, "actually re-run the commands instead of a dry run")
	cmd.Flags().BoolVar(&summaryOnly, "summary-only", false, "print each entry's stored summary instead of re-executing")
	return cmd
}

func receiptShowCmd() *cobra.Command {
	var last bool
	var limit int

	cmd := &cobra.Command{
		Use:   "receipt-show [idOrPath]",
		Short: "print one or more receipts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			return runTracked(commandSpec{
				Name:   "receipt-show",
				Argv:   os.Args[1:],
				Params: map[string]any{"target": target, "last": last, "limit": limit},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				if target != "" {
					path := target
					if !strings.Contains(path, string(os.PathSeparator)) && filepath.Ext(path) == "" {
						path = filepath.Join(pctx.Layout.ReceiptsDir(), path+".json")
					}
					receipt, err := audit.ReadReceipt(path)
					if err != nil {
						return outcome{}, err
					}
					return outcome{
						ResultSummary: fmt.Sprintf("%s %s success=%v", receipt.ID, receipt.Command, receipt.Success),
						Results:       receipt,
					}, nil
				}

				names, err := latestReceiptNames(pctx.Layout.ReceiptsDir(), limit)
				if err != nil {
					return outcome{}, err
				}
				var receipts []audit.Receipt
				for _, name := range names {
					r, err := audit.ReadReceipt(filepath.Join(pctx.Layout.ReceiptsDir(), name))
					if err != nil {
						continue
					}
					receipts = append(receipts, r)
				}
				return outcome{
					ResultSummary: fmt.Sprintf("%d receipt(s)", len(receipts)),
					Results:       receipts,
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "show the most recent receipt(s), as many as --limit (also the behavior without this flag)")
	cmd.Flags().IntVar(&limit, "limit", 1, "number of most recent receipts to show")
	return cmd
}

// latestReceiptNames returns the limit most recently written receipt file
// names, newest first. Receipt ids are timestamp-prefixed so lexicographic
// order over the filename is chronological order.
func latestReceiptNames(receiptsDir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(receiptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit <= 0 {
		limit = 1
	}
	if limit < len(names) {
		names = names[:limit]
	}
	return names, nil
}
