// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"

	"github.com/bureau-foundation/parley/api"
)

func testSession(t *testing.T) *api.Session {
	t.Helper()
	client, err := api.NewClient(api.ClientConfig{BaseURL: "http://localhost:3000"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(api.User{}, "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	return session
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	if store.Session() != nil {
		t.Fatal("new store should be logged out")
	}

	var transitions []*api.Session
	cancel := store.Watch(func(session *api.Session) {
		transitions = append(transitions, session)
	})
	defer cancel()

	first := testSession(t)
	store.SetSession(first)
	if store.Session() != first {
		t.Error("session not installed")
	}

	// Rotation: the old session is replaced and closed.
	second := testSession(t)
	store.SetSession(second)
	if store.Session() != second {
		t.Error("rotated session not installed")
	}

	store.Clear()
	if store.Session() != nil {
		t.Error("expected logged out after Clear")
	}

	// Clearing again is a no-op and does not notify.
	store.Clear()

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(transitions))
	}
	if transitions[0] != first || transitions[1] != second || transitions[2] != nil {
		t.Errorf("unexpected transition sequence: %v", transitions)
	}
}

func TestStoreWatchCancel(t *testing.T) {
	store := NewStore()
	calls := 0
	cancel := store.Watch(func(*api.Session) { calls++ })

	store.SetSession(testSession(t))
	cancel()
	store.Clear()

	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}
