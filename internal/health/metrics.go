// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package health

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyQuantiles observes every sample into a fresh, process-local
// prometheus Summary and reads the p50/p95 back out via Gather(), rather
// than hand-rolling percentile math. The registry lives only for the
// duration of one `health` invocation: there is no long-running process to
// keep counters warm across commands, so each call starts from the
// receipts on disk instead of accumulating in-memory state.
func latencyQuantiles(samplesSec []float64) (p50, p95 float64, err error) {
	if len(samplesSec) == 0 {
		return 0, 0, nil
	}

	reg := prometheus.NewRegistry()
	summary := prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "smem_health_command_latency_seconds",
		Help:       "Command latency observed from receipts in the health rollup window.",
		Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.01},
	})
	if err := reg.Register(summary); err != nil {
		return 0, 0, fmt.Errorf("health: register latency summary: %w", err)
	}
	for _, s := range samplesSec {
		summary.Observe(s)
	}

	families, err := reg.Gather()
	if err != nil {
		return 0, 0, fmt.Errorf("health: gather metrics: %w", err)
	}
	for _, fam := range families {
		if fam.GetName() != "smem_health_command_latency_seconds" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, q := range m.GetSummary().GetQuantile() {
				switch q.GetQuantile() {
				case 0.5:
					p50 = q.GetValue()
				case 0.95:
					p95 = q.GetValue()
				}
			}
		}
	}
	return p50, p95, nil
}
