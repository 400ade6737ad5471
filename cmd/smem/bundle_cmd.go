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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/bundle"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

func exportContextCmd() *cobra.Command {
	var out, bundleType string
	var sign, noSign, zip bool

	cmd := &cobra.Command{
		Use:   "export-context",
		Short: "package memories into a portable .smemctx bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{
				Name:   "export-context",
				Argv:   os.Args[1:],
				Paths:  []string{out},
				Params: map[string]any{"out": out, "type": bundleType, "zip": zip},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				callerWantsSign := sign && !noSign
				res, err := pctx.Export(ctx, bundle.ExportOptions{
					OutPath: out,
					Type:    bundle.BundleType(bundleType),
					Zip:     zip,
					Sign:    broker.ShouldSignExport(callerWantsSign),
				})
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("exported %d memorie(s) to %s (signed=%v)", res.Count, res.Path, res.Signed),
					Results:       res,
				}, nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (required)")
	cmd.Flags().StringVar(&bundleType, "type", "mixed", "bundle content type: code, notes, or mixed")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the bundle with the active export key")
	cmd.Flags().BoolVar(&noSign, "no-sign", false, "skip signing (overridden by a policy that forces signed exports)")
	cmd.Flags().BoolVar(&zip, "zip", false, "write a single .smemctx zip instead of a directory")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func importContextCmd() *cobra.Command {
	var allowUnsigned bool

	cmd := &cobra.Command{
		Use:   "import-context <path>",
		Short: "verify and ingest a .smemctx bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return runTracked(commandSpec{
				Name:                  "import-context",
				Argv:                  os.Args[1:],
				Paths:                 []string{path},
				RequiresSignedContext: true,
				HasValidSignature:     false,
				OneShotOverride:       allowUnsigned,
				Params:                map[string]any{"path": path, "allowUnsigned": allowUnsigned},
			}, func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
				res, err := pctx.Import(ctx, bundle.ImportOptions{
					InPath:        path,
					AllowUnsigned: allowUnsigned,
					RequireSigned: broker.Doc.RequireSignedContext,
				})
				if err != nil {
					var ierr *bundle.ImportError
					if errors.As(err, &ierr) {
						return outcome{}, fail(policy.Blocker(ierr.Blocker).ExitCode(), ierr)
					}
					return outcome{}, err
				}
				return outcome{
					ResultSummary: fmt.Sprintf("imported %d memorie(s), %d vector(s), signedOK=%v",
						res.MemoriesIn, res.VectorsIn, res.SignedOK),
					Results: res,
				}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&allowUnsigned, "allow-unsigned", false, "accept an unsigned bundle via a one-shot trust token")
	return cmd
}
