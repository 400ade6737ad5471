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

	"github.com/securamem/smem/internal/cryptostore"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "manage the Ed25519 signing keyring used by export-context",
	}
	cmd.AddCommand(keyStatusCmd(), keyRotateCmd(), keyListCmd(), keyPruneCmd())
	return cmd
}

func keyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the active signing key's id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "key", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					pub, _, err := pctx.Keys.Active()
					if err != nil {
						return outcome{}, err
					}
					keyID := cryptostore.KeyID(pub)
					return outcome{
						ResultSummary: fmt.Sprintf("active key %s", keyID),
						Results:       map[string]any{"keyId": keyID},
					}, nil
				})
		},
	}
}

func keyRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "archive the active key and generate a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "key", Argv: os.Args[1:], Params: map[string]any{"rotate": true}},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					archivedID, err := pctx.Keys.Rotate()
					if err != nil {
						return outcome{}, err
					}
					pub, _, err := pctx.Keys.Active()
					if err != nil {
						return outcome{}, err
					}
					newID := cryptostore.KeyID(pub)
					return outcome{
						ResultSummary: fmt.Sprintf("archived %s, new active key %s", archivedID, newID),
						Results:       map[string]any{"archivedKeyId": archivedID, "activeKeyId": newID},
					}, nil
				})
		},
	}
}

func keyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the active key and every archived key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "key", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					active, archived, err := pctx.Keys.List()
					if err != nil {
						return outcome{}, err
					}
					return outcome{
						ResultSummary: fmt.Sprintf("active=%s, %d archived", active, len(archived)),
						Results:       map[string]any{"active": active, "archived": archived},
					}, nil
				})
		},
	}
}

func keyPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "delete archived keys beyond the most recent N",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "key", Argv: os.Args[1:], Params: map[string]any{"keep": keep}},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					n, err := pctx.Keys.Prune(keep)
					if err != nil {
						return outcome{}, err
					}
					return outcome{ResultSummary: fmt.Sprintf("pruned %d archived key(s)", n)}, nil
				})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of most recent archived keys to retain")
	return cmd
}
