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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/project"
)

// offlineAttestation is what `prove-offline` prints: a timestamped claim
// that this invocation's governing policy forbids network egress, digested
// so two attestations from the same policy are byte-comparable.
type offlineAttestation struct {
	Timestamp     time.Time `json:"timestamp"`
	NetworkEgress bool      `json:"networkEgress"`
	PolicySha256  string    `json:"policySha256"`
}

func proveOfflineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prove-offline",
		Short: "attest that the governing policy forbids network egress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(commandSpec{Name: "prove-offline", Argv: os.Args[1:]},
				func(ctx context.Context, pctx *project.Context, broker *policy.Broker) (outcome, error) {
					raw, err := json.Marshal(broker.Doc)
					if err != nil {
						return outcome{}, err
					}
					sum := sha256.Sum256(raw)

					if broker.Doc.NetworkEgress {
						return outcome{}, fail(111, fmt.Errorf("NetworkEgress: policy.json has networkEgress=true; this invocation cannot attest offline operation"))
					}

					attestation := offlineAttestation{
						Timestamp:     time.Now().UTC(),
						NetworkEgress: broker.Doc.NetworkEgress,
						PolicySha256:  hex.EncodeToString(sum[:]),
					}
					return outcome{
						ResultSummary: fmt.Sprintf("offline attested at %s (policy sha256 %s)",
							attestation.Timestamp.Format(time.RFC3339), attestation.PolicySha256[:12]),
						Results: attestation,
					}, nil
				})
		},
	}
}
