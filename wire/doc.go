// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire owns the persistent push connection to the Parley
// server: one websocket per authenticated session, carrying CBOR
// envelopes as binary frames.
//
// A Conn is started with a session's bearer token and moves through
// the states DISCONNECTED → CONNECTING → CONNECTED. On transport
// failure it reconnects with exponential backoff (1s doubling to a
// 30s ceiling); after five consecutive failures it parks in ERROR,
// which is terminal until the owner calls Start again. A dial that
// succeeds but drops before the connection has stayed up for 30s
// counts as a failure too. Status transitions are reported through
// the OnStatus callback, never as panics.
//
// Emit fails fast with ErrNotConnected while the connection is not
// CONNECTED. Nothing is queued: callers own their retry policy, and
// the one caller that sends user data (the message feed) marks the
// affected message failed-but-retryable instead.
//
// Inbound frames are dispatched serially, in arrival order, to the
// handler registered for the envelope's event name. Handlers run on
// the read loop goroutine; they must not block.
package wire
