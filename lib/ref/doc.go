// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references for
// Parley entities: users, conversations, and messages.
//
// All three identifier kinds are opaque server-assigned strings. The types
// in this package validate structural sanity at the deserialization
// boundary (non-empty, printable, no whitespace, bounded length) so that
// the rest of the engine never has to re-check identifiers, and so that a
// UserID can never be passed where a ConversationID is expected.
//
// Constructors return errors for invalid input. Once constructed, a ref is
// immutable. The zero value of each type is not a valid identifier; use
// IsZero to check. JSON and CBOR marshaling use the raw string form via
// encoding.TextMarshaler / TextUnmarshaler.
package ref
