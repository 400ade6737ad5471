// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexing

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// unifiedDiff renders a unified-diff summary between a file's previous and
// current content, using a plain line-level LCS (good enough for the source
// files this tool chunks; no pathological-input guarantees are needed for a
// log message). The textual diff algorithm is ours; rendering to the
// standard unified-diff format is sourcegraph/go-diff's job.
func unifiedDiff(file, oldContent, newContent string) (string, error) {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	hunks := hunksFromLCS(oldLines, newLines)
	if len(hunks) == 0 {
		return "", nil
	}

	fd := &diff.FileDiff{
		OrigName: "a/" + file,
		NewName:  "b/" + file,
		Hunks:    hunks,
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("indexing: render diff for %s: %w", file, err)
	}
	return string(out), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// hunksFromLCS computes a single-hunk diff covering the whole file via
// longest-common-subsequence backtracking. Real unified diffs split into
// multiple hunks around unchanged context; for a change-summary log line a
// single hunk covering the full changed span is sufficient. Returns nil when
// the two sides are identical.
func hunksFromLCS(oldLines, newLines []string) []*diff.Hunk {
	ops := diffOps(oldLines, newLines)
	if len(ops) == 0 {
		return nil
	}

	var body strings.Builder
	var origStart, newStart = -1, -1
	origLines, newLinesCount := 0, 0

	for _, op := range ops {
		switch op.kind {
		case opEqual:
			body.WriteString(" " + op.line + "\n")
			origLines++
			newLinesCount++
		case opDelete:
			if origStart == -1 {
				origStart = origLines
			}
			body.WriteString("-" + op.line + "\n")
			origLines++
		case opInsert:
			if newStart == -1 {
				newStart = newLinesCount
			}
			body.WriteString("+" + op.line + "\n")
			newLinesCount++
		}
	}
	if origStart == -1 && newStart == -1 {
		return nil // only equal lines: nothing changed
	}

	return []*diff.Hunk{{
		OrigLine:  1,
		OrigLines: int32(origLines),
		NewLine:   1,
		NewLines:  int32(newLinesCount),
		Body:      []byte(body.String()),
	}}
}

type diffOpKind int

const (
	opEqual diffOpKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind diffOpKind
	line string
}

// diffOps computes a minimal edit script between a and b via classic O(n*m)
// LCS dynamic programming, then backtracks into equal/delete/insert ops.
func diffOps(a, b []string) []diffOp {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}

	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{opEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, diffOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, diffOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, diffOp{opInsert, b[j]})
	}
	return ops
}
