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
	"time"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "inspect and edit the zero-trust command policy",
	}
	cmd.AddCommand(policyStatusCmd(), policyAllowCommandCmd(), policyAllowPathCmd(), policyTrustCmd(), policyDoctorCmd())
	return cmd
}

func policyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the current policy.json document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "policy", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					return outcome{
						ResultSummary: fmt.Sprintf("%d allowed command(s), %d allowed glob(s), networkEgress=%v",
							len(broker.Doc.AllowedCommands), len(broker.Doc.AllowedGlobs), broker.Doc.NetworkEgress),
						Results: broker.Doc,
					}, nil
				})
		},
	}
}

func policyAllowCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allow-command <command>",
		Short: "add a command to the policy allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return runTracked(commandSpec{Name: "policy", Argv: os.Args[1:], Params: map[string]any{"allowCommand": target}},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					doc := broker.Doc
					doc.AllowCommand(target)
					if err := policy.Save(pctx.Layout.PolicyPath(), doc); err != nil {
						return outcome{}, err
					}
					return outcome{ResultSummary: fmt.Sprintf("allowed command %q", target)}, nil
				})
		},
	}
}

func policyAllowPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allow-path <glob>",
		Short: "add a glob to the policy's allowed paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			glob := args[0]
			return runTracked(commandSpec{Name: "policy", Argv: os.Args[1:], Params: map[string]any{"allowPath": glob}},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					doc := broker.Doc
					doc.AllowPath(glob)
					if err := policy.Save(pctx.Layout.PolicyPath(), doc); err != nil {
						return outcome{}, err
					}
					return outcome{ResultSummary: fmt.Sprintf("allowed path glob %q", glob)}, nil
				})
		},
	}
}

func policyTrustCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "trust <command>",
		Short: "mint a one-shot trust token overriding the signed-context gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return runTracked(commandSpec{Name: "policy", Argv: os.Args[1:], Params: map[string]any{"trust": target, "ttl": ttl.String()}},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					now := time.Now().UTC()
					token := policy.NewTrustToken(target, ttl, now)
					tokens, err := policy.LoadTrustTokens(pctx.Layout.TrustTokensPath())
					if err != nil {
						return outcome{}, err
					}
					tokens = append(tokens, token)
					if err := policy.SaveTrustTokens(pctx.Layout.TrustTokensPath(), tokens); err != nil {
						return outcome{}, err
					}
					return outcome{
						ResultSummary: fmt.Sprintf("minted trust token for %q, expires %s", target, token.ExpiresAt.Format(time.RFC3339)),
						Results:       token,
					}, nil
				})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 10*time.Minute, "how long the token remains usable")
	return cmd
}

func policyDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "check the policy document for common misconfigurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "policy", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					findings := policy.Doctor(broker.Doc)
					return outcome{
						ResultSummary: fmt.Sprintf("%d finding(s)", len(findings)),
						Results:       findings,
					}, nil
				})
		},
	}
}
