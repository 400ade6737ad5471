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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/audit"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
	"github.com/securamem/smem/internal/telemetry"
)

// Global flag values, set by rootCmd's persistent flags. Package-level vars
// mirror cmd_chat.go's own flag-var style (tracePath, traceInteractive)
// rather than threading a config struct through every command.
var (
	flagTrace   bool
	flagDryRun  bool
	flagJSON    bool
	flagExplain bool
)

// exitCode is returned from a command's RunE to request a specific process
// exit code without cobra printing its own "Error:" preamble twice.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func fail(code int, err error) error { return &exitCode{code: code, err: err} }

// telemetryShutdown holds whatever Setup installed for newRootCmd's
// PersistentPostRunE to flush; nil until PersistentPreRunE runs.
var telemetryShutdown telemetry.Shutdown

// Execute builds the command tree and runs it, returning the process exit
// code spec §6 defines (0/1/2/3/4/111).
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ec *exitCode
		if errors.As(err, &ec) {
			if ec.err != nil {
				fmt.Fprintln(os.Stderr, ec.err)
			}
			return ec.code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smem",
		Short:         "securamem: an air-gapped local memory engine for developers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagTrace, "trace", false, "enable verbose structured tracing to stderr")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "report what a mutating command would do without persisting it")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print machine-readable JSON instead of text")
	root.PersistentFlags().BoolVar(&flagExplain, "explain", false, "print the policy decision and routing reasoning behind the result")

	// --trace gates real otel span/metric export (stdout exporters only,
	// since this tool runs under an egress-denial policy); without it every
	// Tracer()/Meter() call in internal/indexing, internal/hybridsearch, and
	// internal/bundle stays a cheap no-op via otel's default global providers.
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		shutdown, err := telemetry.Setup(flagTrace, os.Stderr)
		if err != nil {
			return fmt.Errorf("telemetry setup: %w", err)
		}
		telemetryShutdown = shutdown
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown == nil {
			return nil
		}
		return telemetryShutdown(context.Background())
	}

	root.AddCommand(
		initCmd(),
		statusCmd(),
		vectorStatusCmd(),
		healthCmd(),
		rememberCmd(),
		recallCmd(),
		indexCodeCmd(),
		watchCodeCmd(),
		reindexFileCmd(),
		reindexFolderCmd(),
		searchCodeCmd(),
		digestCacheCmd(),
		gcCmd(),
		journalCmd(),
		replayCmd(),
		receiptShowCmd(),
		policyCmd(),
		keyCmd(),
		exportContextCmd(),
		importContextCmd(),
		proveOfflineCmd(),
	)
	return root
}

func traceLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagTrace {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openProject resolves the project root as the current working directory
// and opens a project.Context over it.
func openProject(ctx context.Context) (*project.Context, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return project.Open(ctx, project.Options{Root: root, Logger: traceLogger()})
}

// commandSpec describes one invocation for the policy/audit wrapper.
type commandSpec struct {
	Name                  string
	Argv                  []string
	Paths                 []string
	RequiresSignedContext bool
	HasValidSignature     bool
	OneShotOverride       bool
	Params                map[string]any
}

// outcome is what a tracked command's work function reports back.
type outcome struct {
	ResultSummary string
	Results       any
	Digests       map[string]string
	Render        func() // optional renderer (table on a TTY, plain lines otherwise), used instead of ResultSummary when set and --json is not
}

// runTracked wraps work with the full per-invocation lifecycle spec §4.9/
// §5 require: reload policy fresh, run the four gates, execute on allow,
// write an immutable receipt, and append a journal entry that references
// it — in that order, regardless of whether work succeeds.
func runTracked(spec commandSpec, work func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error)) error {
	ctx := context.Background()
	pctx, err := openProject(ctx)
	if err != nil {
		return fail(1, err)
	}
	defer pctx.Close()

	broker, err := pctx.LoadPolicy()
	if err != nil {
		return fail(1, err)
	}
	tokens, err := policy.LoadTrustTokens(pctx.Layout.TrustTokensPath())
	if err != nil {
		return fail(1, err)
	}
	broker.Tokens = tokens

	start := time.Now().UTC()
	receiptID := audit.NewID(start)

	decision := broker.Check(policy.Request{
		Command:               spec.Name,
		Paths:                 spec.Paths,
		RequiresSignedContext: spec.RequiresSignedContext,
		HasValidSignature:     spec.HasValidSignature,
		OneShotOverride:       spec.OneShotOverride,
	})
	if flagExplain {
		fmt.Fprintf(os.Stderr, "explain: command=%q blocked=%v blocker=%q reason=%q\n",
			spec.Name, decision.Blocked, decision.Blocker, decision.Reason)
	}
	if decision.Blocked {
		return finishTracked(pctx, spec, start, receiptID, outcome{}, fmt.Errorf("PolicyDenied: %s", decision.Reason), decision.Blocker.ExitCode())
	}

	if spec.OneShotOverride {
		broker.ConsumeToken(spec.Name)
		if err := policy.SaveTrustTokens(pctx.Layout.TrustTokensPath(), broker.Tokens); err != nil {
			return fail(1, err)
		}
	}

	out, workErr := work(ctx, pctx, broker)
	exit := 0
	if workErr != nil {
		exit = 1
		var ec *exitCode
		if errors.As(workErr, &ec) {
			exit = ec.code
			workErr = ec.err
		}
	}
	return finishTracked(pctx, spec, start, receiptID, out, workErr, exit)
}

func finishTracked(pctx *project.Context, spec commandSpec, start time.Time, receiptID string, out outcome, workErr error, exit int) error {
	end := time.Now().UTC()
	errStr := ""
	if workErr != nil {
		errStr = workErr.Error()
	}
	code := exit
	receipt := audit.Receipt{
		Schema:        audit.ReceiptSchema,
		Version:       1,
		ID:            receiptID,
		Command:       spec.Name,
		Argv:          spec.Argv,
		Cwd:           pctx.Layout.Root(),
		StartTime:     start,
		EndTime:       end,
		Params:        spec.Params,
		ResultSummary: out.ResultSummary,
		Results:       out.Results,
		Success:       workErr == nil,
		ExitCode:      &code,
		Error:         errStr,
		Digests:       out.Digests,
	}
	path, writeErr := receipt.Write(pctx.Layout.ReceiptsDir())
	if writeErr != nil {
		return fail(1, fmt.Errorf("write receipt: %w", writeErr))
	}
	if journalErr := audit.AppendJournal(pctx.Layout.JournalPath(), audit.JournalEntry{
		Ts: end, Cmd: spec.Name, Args: spec.Argv, Error: errStr, Receipt: path,
	}); journalErr != nil {
		return fail(1, fmt.Errorf("append journal: %w", journalErr))
	}

	if workErr != nil {
		return fail(code, workErr)
	}

	printOutcome(out)
	return nil
}

// printOutcome renders a successful outcome to stdout, as JSON when
// --json is set and as the text summary otherwise.
func printOutcome(out outcome) {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		payload := out.Results
		if payload == nil {
			payload = map[string]string{"summary": out.ResultSummary}
		}
		_ = enc.Encode(payload)
		return
	}
	if out.Render != nil {
		out.Render()
		return
	}
	if out.ResultSummary != "" {
		fmt.Println(out.ResultSummary)
	}
}
