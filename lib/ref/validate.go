// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"unicode"
)

// maxIDLength bounds identifier strings. Server-assigned identifiers are
// UUID-sized; the bound exists so a malformed or malicious payload cannot
// smuggle arbitrarily large strings into maps keyed by identifier.
const maxIDLength = 128

// validateID checks the structural rules shared by all identifier kinds:
// non-empty, bounded length, and no whitespace or control characters.
// kind names the identifier type in error messages ("user ID" etc.).
func validateID(kind, raw string) error {
	if raw == "" {
		return fmt.Errorf("empty %s", kind)
	}
	if len(raw) > maxIDLength {
		return fmt.Errorf("%s exceeds %d bytes: %q", kind, maxIDLength, raw[:32]+"...")
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%s contains whitespace or control characters: %q", kind, raw)
		}
	}
	return nil
}
