// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// MessageID is a validated server-assigned message identifier. Messages
// created optimistically on the client do not have one until the server
// echo arrives — they are addressed by a locally generated ID until
// reconciliation replaces it (see the engine package).
//
// MessageID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type MessageID struct {
	id string
}

// ParseMessageID validates and wraps a raw message identifier.
func ParseMessageID(raw string) (MessageID, error) {
	if err := validateID("message ID", raw); err != nil {
		return MessageID{}, err
	}
	return MessageID{id: raw}, nil
}

// String returns the raw identifier string.
func (m MessageID) String() string { return m.id }

// IsZero reports whether the MessageID is the zero value.
func (m MessageID) IsZero() bool { return m.id == "" }

// MarshalText implements encoding.TextMarshaler for JSON and CBOR
// serialization.
func (m MessageID) MarshalText() ([]byte, error) {
	if m.id == "" {
		return []byte{}, nil
	}
	return []byte(m.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating the
// identifier during deserialization.
func (m *MessageID) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageID(string(text))
	if err != nil {
		return fmt.Errorf("unmarshaling message ID: %w", err)
	}
	*m = parsed
	return nil
}
