// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ConversationID is a validated Parley conversation identifier. The same
// identity space covers direct (one-to-one) and group conversations: the
// directory, per-conversation message feeds, and the conversation
// management endpoints all key on this type.
//
// ConversationID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type ConversationID struct {
	id string
}

// ParseConversationID validates and wraps a raw conversation identifier.
func ParseConversationID(raw string) (ConversationID, error) {
	if err := validateID("conversation ID", raw); err != nil {
		return ConversationID{}, err
	}
	return ConversationID{id: raw}, nil
}

// String returns the raw identifier string.
func (c ConversationID) String() string { return c.id }

// IsZero reports whether the ConversationID is the zero value.
func (c ConversationID) IsZero() bool { return c.id == "" }

// MarshalText implements encoding.TextMarshaler for JSON and CBOR
// serialization.
func (c ConversationID) MarshalText() ([]byte, error) {
	if c.id == "" {
		return []byte{}, nil
	}
	return []byte(c.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating the
// identifier during deserialization.
func (c *ConversationID) UnmarshalText(text []byte) error {
	parsed, err := ParseConversationID(string(text))
	if err != nil {
		return fmt.Errorf("unmarshaling conversation ID: %w", err)
	}
	*c = parsed
	return nil
}
