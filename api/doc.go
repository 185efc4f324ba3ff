// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api wraps the Parley server's request/response HTTP API.
//
// The package provides two core types. [Client] is an unauthenticated
// client holding the server base URL and HTTP transport; it handles
// registration and login, returning authenticated [Session] values.
// [Session] wraps a Client with a bearer token for authenticated
// operations: the conversation snapshot, paginated message pages,
// conversation detail, conversation management (create one-to-one and
// group conversations, invite, approve, reject, member role changes,
// removal), friendship management, and user search.
//
// Sessions are lightweight (a pointer to the parent Client plus a
// bearer token in mmap-backed secret.Buffer memory). The token is
// locked against swap and excluded from core dumps; callers must call
// Session.Close to release the protected memory.
//
// All API errors are returned as [*APIError] with the server's
// machine-readable code and the HTTP status code. [IsAPIError] tests
// for a specific code; [IsTransient] classifies errors for retry
// decisions (connection failures, 429, and 5xx are transient; other
// 4xx are permanent).
//
// The engine package consumes Session through its narrow Fetcher
// interface; this package has no knowledge of the synchronization
// engine.
package api
