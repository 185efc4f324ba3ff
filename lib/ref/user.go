// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Parley user identifier. User IDs are assigned by
// the server at registration and come back in authentication responses,
// conversation participant lists, and message sender fields. They are
// parsed into this type at the deserialization boundary and never
// constructed from fragments by client code.
//
// UserID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw user identifier string.
func ParseUserID(raw string) (UserID, error) {
	if err := validateID("user ID", raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// String returns the raw identifier string.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value (uninitialized).
func (u UserID) IsZero() bool { return u.id == "" }

// MarshalText implements encoding.TextMarshaler for JSON and CBOR
// serialization.
func (u UserID) MarshalText() ([]byte, error) {
	if u.id == "" {
		return []byte{}, nil
	}
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating the
// identifier during deserialization.
func (u *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return fmt.Errorf("unmarshaling user ID: %w", err)
	}
	*u = parsed
	return nil
}
