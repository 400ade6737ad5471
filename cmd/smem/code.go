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
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/hybridsearch"
	"github.com/securamem/smem/internal/indexing"
	"github.com/securamem/smem/internal/metadata"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func indexingOptionsFlags(cmd *cobra.Command, maxChunk *int, include, exclude *[]string, symbols *bool, diff *bool) {
	cmd.Flags().IntVar(maxChunk, "max-chunk", 0, "maximum lines per chunk (unset uses the default; 0 or negative is rejected)")
	cmd.Flags().StringArrayVar(include, "include", nil, "glob of files to include (repeatable)")
	cmd.Flags().StringArrayVar(exclude, "exclude", nil, "glob of files to exclude (repeatable)")
	cmd.Flags().BoolVar(symbols, "symbols", true, "chunk by AST symbol boundaries when a parser is available")
	if diff != nil {
		cmd.Flags().BoolVar(diff, "diff", false, "skip files whose digest is unchanged since the last index run")
	}
}

// maxChunkOption converts the --max-chunk flag's value into an
// *int suitable for indexing.Options.MaxChunkLines: nil when the caller
// never passed the flag (use the package default), non-nil otherwise so
// an explicit 0 or negative value surfaces as InputInvalid instead of
// being silently coerced.
func maxChunkOption(cmd *cobra.Command, maxChunk int) *int {
	if !cmd.Flags().Changed("max-chunk") {
		return nil
	}
	v := maxChunk
	return &v
}

func indexCodeCmd() *cobra.Command {
	var path string
	var maxChunk int
	var include, exclude []string
	var symbols, diff bool

	cmd := &cobra.Command{
		Use:   "index-code",
		Short: "walk and index a source tree for hybrid search",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "index-code",
				Argv:   os.Args[1:],
				Paths:  []string{path},
				Params: map[string]any{"path": path, "symbols": symbols, "diff": diff},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				root := path
				if root == "" {
					root = pctx.Layout.Root()
				}
				res, err := pctx.Indexer().IndexCode(ctx, root, indexing.Options{
					Include: include, Exclude: exclude, MaxChunkLines: maxChunkOption(cmd, maxChunk), Symbols: symbols, Diff: diff,
				})
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("indexed %d file(s), stored %d chunk(s)", res.FileCount, res.Saved),
					Results:       res,
					Digests:       map[string]string{"batch": res.Digest},
				}, nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "root directory to index (defaults to the project root)")
	indexingOptionsFlags(cmd, &maxChunk, &include, &exclude, &symbols, &diff)
	return cmd
}

func watchCodeCmd() *cobra.Command {
	var path string
	var maxChunk int
	var include, exclude []string
	var symbols bool
	var debounce int

	cmd := &cobra.Command{
		Use:   "watch-code",
		Short: "watch a source tree and incrementally reindex on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "watch-code",
				Argv:   os.Args[1:],
				Paths:  []string{path},
				Params: map[string]any{"path": path, "debounceMs": debounce},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				root := path
				if root == "" {
					root = pctx.Layout.Root()
				}
				watchCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer cancel()

				opts := indexing.WatchOptions{
					Options: indexing.Options{Include: include, Exclude: exclude, MaxChunkLines: maxChunkOption(cmd, maxChunk), Symbols: symbols},
				}
				if debounce > 0 {
					opts.Debounce = time.Duration(debounce) * time.Millisecond
				}
				if err := pctx.Indexer().Watch(watchCtx, root, opts); err != nil {
					return outcome{}, err
				}
				return outcome{ResultSummary: "watch-code stopped"}, nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "root directory to watch (defaults to the project root)")
	cmd.Flags().IntVar(&debounce, "debounce", 0, "debounce window in milliseconds (0 uses the default)")
	indexingOptionsFlags(cmd, &maxChunk, &include, &exclude, &symbols, nil)
	return cmd
}

func reindexFileCmd() *cobra.Command {
	var maxChunk int
	var symbols bool

	cmd := &cobra.Command{
		Use:   "reindex-file <file>",
		Short: "reindex a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			return runTracked(commandSpec{
				Name:   "reindex-file",
				Argv:   os.Args[1:],
				Paths:  []string{file},
				Params: map[string]any{"file": file},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				if err := pctx.Indexer().ReindexSingleFile(ctx, file, indexing.Options{MaxChunkLines: maxChunkOption(cmd, maxChunk), Symbols: symbols}); err != nil {
					return outcome{}, err
				}
				return outcome{ResultSummary: fmt.Sprintf("reindexed %s", file)}, nil
			})
		},
	}
	cmd.Flags().IntVar(&maxChunk, "max-chunk", 0, "maximum lines per chunk (unset uses the default; 0 or negative is rejected)")
	cmd.Flags().BoolVar(&symbols, "symbols", true, "chunk by AST symbol boundaries when a parser is available")
	return cmd
}

func reindexFolderCmd() *cobra.Command {
	var maxChunk int
	var symbols bool

	cmd := &cobra.Command{
		Use:   "reindex-folder <folder>",
		Short: "reindex every file under a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := args[0]
			return runTracked(commandSpec{
				Name:   "reindex-folder",
				Argv:   os.Args[1:],
				Paths:  []string{folder},
				Params: map[string]any{"folder": folder},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				res, err := pctx.Indexer().ReindexFolder(ctx, folder, indexing.Options{MaxChunkLines: maxChunkOption(cmd, maxChunk), Symbols: symbols})
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("reindexed %d/%d file(s), %d error(s)", res.Added, res.Files, len(res.Errors)),
					Results:       res,
				}, nil
			})
		},
	}
	cmd.Flags().IntVar(&maxChunk, "max-chunk", 0, "maximum lines per chunk (unset uses the default; 0 or negative is rejected)")
	cmd.Flags().BoolVar(&symbols, "symbols", true, "chunk by AST symbol boundaries when a parser is available")
	return cmd
}

func searchCodeCmd() *cobra.Command {
	var k, preview, rerank int
	var filterPath, filterSymbol, filterLanguage []string
	var hybrid bool

	cmd := &cobra.Command{
		Use:   "search-code <query>",
		Short: "search indexed code with lexical, semantic, or hybrid ranking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runTracked(commandSpec{
				Name:   "search-code",
				Argv:   os.Args[1:],
				Params: map[string]any{"k": k, "hybrid": hybrid},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				strategy := hybridsearch.StrategyKeywordFirst
				if hybrid {
					strategy = hybridsearch.StrategyAdaptive
				}
				opts := hybridsearch.SearchOptions{Strategy: strategy, Limit: k}
				if rerank > 0 {
					opts.Rerank = true
					opts.RerankN = rerank
				}
				results, err := pctx.Search(ctx, query, opts)
				if err != nil {
					return outcome{}, err
				}

				filtered := make([]hybridsearch.Result, 0, len(results))
				for _, r := range results {
					if r.Type != "code" {
						continue
					}
					meta, err := codeMetaFor(pctx, ctx, r.ID)
					if err != nil {
						continue
					}
					if len(filterPath) > 0 && !matchesAnyGlob(meta.File, filterPath) {
						continue
					}
					if len(filterSymbol) > 0 && !containsAny(meta.Symbol, filterSymbol) {
						continue
					}
					if len(filterLanguage) > 0 && !containsAny(meta.Language, filterLanguage) {
						continue
					}
					if preview > 0 && len(r.Content) > preview {
						r.Content = r.Content[:preview]
					}
					filtered = append(filtered, r)
				}

				return outcome{
					ResultSummary: fmt.Sprintf("%d result(s)", len(filtered)),
					Results:       filtered,
					Render:        func() { renderSearchResults(filtered) },
				}, nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 10, "maximum number of results")
	cmd.Flags().IntVar(&preview, "preview", 0, "truncate each result's content to N characters (0 disables)")
	cmd.Flags().IntVar(&rerank, "rerank", 0, "number of keyword candidates to rerank semantically (0 disables reranking)")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "blend keyword and semantic scoring instead of keyword-first")
	cmd.Flags().StringArrayVar(&filterPath, "filter-path", nil, "glob the result's file path must match (repeatable)")
	cmd.Flags().StringArrayVar(&filterSymbol, "filter-symbol", nil, "symbol name the result must match (repeatable)")
	cmd.Flags().StringArrayVar(&filterLanguage, "filter-language", nil, "language the result must match (repeatable)")
	return cmd
}

func codeMetaFor(pctx *project.Context, ctx context.Context, id int64) (metadata.CodeChunkMeta, error) {
	mem, err := pctx.Storage.GetMemory(ctx, id)
	if err != nil {
		return metadata.CodeChunkMeta{}, err
	}
	meta, err := metadata.UnmarshalFromStorage(mem.MetadataJSON)
	if err != nil {
		return metadata.CodeChunkMeta{}, err
	}
	if meta.Code == nil {
		return metadata.CodeChunkMeta{}, fmt.Errorf("memory %d is not a code chunk", id)
	}
	return *meta.Code, nil
}

func containsAny(value string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(value, c) {
			return true
		}
	}
	return false
}

func matchesAnyGlob(path string, globs []string) bool {
	for _, g := range globs {
		if globMatch(g, path) {
			return true
		}
	}
	return false
}

// globMatch supports "**" as a recursive wildcard, mirroring codeindex.Walk's
// and policy.Broker's matcher since filepath.Match has no such support.
func globMatch(pattern, path string) bool {
	return matchParts(splitSlash(filepath.ToSlash(pattern)), splitSlash(filepath.ToSlash(path)))
}

func splitSlash(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func matchParts(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(path); i++ {
			if matchParts(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchParts(pattern[1:], path[1:])
}
