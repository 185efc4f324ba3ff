// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth is the authentication collaborator of the sync engine:
// a store that owns the current authenticated session and fans out
// change notifications on login, logout, and credential rotation.
//
// The engine never reaches for ambient session state — it observes
// the store and runs a full stop/start cycle on every transition, so
// no event is ever processed under a stale identity.
package auth
