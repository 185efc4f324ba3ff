// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parley's standard CBOR encoding configuration.
//
// Parley uses two serialization formats with a clear boundary:
//
//   - JSON for the request/response API: login, conversation and
//     message snapshots, conversation management endpoints.
//   - CBOR for the persistent connection: every push event and client
//     emit travels as a CBOR envelope in a binary websocket frame
//     (see the wire package).
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Parley package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// Types carrying `json` struct tags serialize identically in both
// formats: fxamacker/cbor reads `json` tags as a fallback when `cbor`
// tags are absent, so the event payload types shared between the REST
// snapshots and the socket protocol need only one set of tags.
//
// Identifier types from lib/ref implement encoding.TextMarshaler and
// TextUnmarshaler; the modes here are configured to serialize them as
// CBOR text strings so their validation runs at the decode boundary.
package codec
