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
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/securamem/smem/internal/hybridsearch"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// stdoutIsTTY reports whether stdout is an interactive terminal; colorized
// rendering only kicks in then, keeping piped/redirected output plain.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// renderSearchResults prints results as a colorized table when stdout is a
// TTY, otherwise as one plain "score  context  preview" line per result.
// printOutcome only calls it when --json was not requested.
func renderSearchResults(results []hybridsearch.Result) {
	if !stdoutIsTTY() {
		for _, r := range results {
			fmt.Printf("%.3f  %s  %s\n", r.Score, r.Context, truncate(r.Content, 80))
		}
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-8s %-30s %s", "score", "path", "preview")))
	for _, r := range results {
		fmt.Printf("%s %s %s\n",
			scoreStyle.Render(fmt.Sprintf("%-8.3f", r.Score)),
			pathStyle.Render(fmt.Sprintf("%-30s", truncate(r.Context, 30))),
			truncate(r.Content, 60))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
