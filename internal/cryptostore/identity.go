// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cryptostore implements at-rest encryption of the project database:
// machine-bound key derivation, AES-256-CTR envelope encryption, and
// graceful degradation when the DB file cannot be rewritten immediately.
package cryptostore

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strings"
)

// machineIdentity builds the stable machine-identity string used as the
// PBKDF2 password. includeUsername controls whether the current OS user
// name is folded in; the primary derivation includes it, the fallback
// derivation omits it so that decryption survives user-account migration
// (spec §4.2).
func machineIdentity(includeUsername bool) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cpuModel := firstCPUModel()
	macs, err := sortedPrimaryMACs()
	if err != nil {
		macs = nil // MAC enumeration failing is not fatal to identity derivation
	}

	parts := []string{
		hostname,
		runtime.GOOS,
		runtime.GOARCH,
		cpuModel,
		strings.Join(macs, ","),
	}

	if includeUsername {
		if u, err := user.Current(); err == nil {
			parts = append(parts, u.Username)
		}
	}

	return strings.Join(parts, "|"), nil
}

// sortedPrimaryMACs returns the sorted hardware addresses of non-loopback
// network interfaces that actually have a MAC assigned. Virtual interfaces
// that carry a MAC are not filtered out.
func sortedPrimaryMACs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("cryptostore: enumerate interfaces: %w", err)
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}
	sort.Strings(macs)
	return macs, nil
}

// firstCPUModel returns a best-effort CPU model string. There is no portable
// stdlib API for this, so on platforms where it cannot be read cheaply it
// falls back to GOARCH — which still contributes entropy to the identity
// string without requiring a network call or a cgo dependency.
func firstCPUModel() string {
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") {
					if idx := strings.Index(line, ":"); idx >= 0 {
						return strings.TrimSpace(line[idx+1:])
					}
				}
			}
		}
	}
	return runtime.GOARCH
}
