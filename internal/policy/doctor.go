// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import "fmt"

// Finding is one diagnostic emitted by Doctor.
type Finding struct {
	Severity string // "warn" or "info"
	Message  string
}

// Doctor inspects a Document for configurations that are syntactically
// valid but operationally surprising, surfaced by `policy doctor`. It never
// mutates the document.
func Doctor(doc Document) []Finding {
	var findings []Finding

	if len(doc.AllowedCommands) == 0 {
		findings = append(findings, Finding{"warn", "allowedCommands is empty; only help/version will run"})
	}
	if len(doc.AllowedGlobs) == 0 {
		findings = append(findings, Finding{"warn", "allowedGlobs is empty; every path argument will be blocked"})
	}
	for _, g := range doc.AllowedGlobs {
		if g == "**" {
			findings = append(findings, Finding{"info", "allowedGlobs contains \"**\", which permits any path"})
		}
	}
	if doc.RequireSignedContext && !doc.SignExports && !doc.ForceSignedExports {
		findings = append(findings, Finding{"warn", "requireSignedContext is set but this project never signs its own exports"})
	}
	if doc.NetworkEgress {
		findings = append(findings, Finding{"warn", "networkEgress is enabled; this tool is designed to run fully air-gapped"})
	}
	for _, name := range doc.EnvPassthrough {
		if isSensitiveEnvName(name) {
			findings = append(findings, Finding{"warn", fmt.Sprintf("envPassthrough includes %q, which commonly carries secrets", name)})
		}
	}
	return findings
}

func isSensitiveEnvName(name string) bool {
	switch name {
	case "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "GITHUB_TOKEN", "NPM_TOKEN",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "SSH_AUTH_SOCK", "GPG_AGENT_INFO":
		return true
	default:
		return false
	}
}
