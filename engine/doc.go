// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the real-time synchronization core of the Parley
// client. It reconciles three interleaved change sources — paginated
// REST snapshots, push events from the persistent connection, and
// optimistic local sends — into a consistent read model: an ordered
// conversation directory with unread flags, and per open conversation
// an ordered, de-duplicated message feed with delivery states.
//
// The Engine owns all mutable state behind a single lock; every
// reaction (push event, fetch completion, user intent) runs to
// completion before the next is processed. Snapshot loads run on
// their own goroutines and carry a generation tag: a load that
// resolves after its target changed (conversation reopened, directory
// reloaded, engine stopped) is discarded without touching state.
//
// Ownership is strict: conversation entries are mutated only inside
// the directory, messages only inside the feed of their conversation,
// and the websocket only by the wire connection the Engine holds.
// Message send activity reaches the directory through the same merge
// path as server push updates, never by direct field writes.
package engine
