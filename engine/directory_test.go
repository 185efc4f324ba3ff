// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/wire"
)

func mustUserID(t *testing.T, id string) ref.UserID {
	t.Helper()
	parsed, err := ref.ParseUserID(id)
	if err != nil {
		t.Fatalf("parsing user ID %q: %v", id, err)
	}
	return parsed
}

func mustConversationID(t *testing.T, id string) ref.ConversationID {
	t.Helper()
	parsed, err := ref.ParseConversationID(id)
	if err != nil {
		t.Fatalf("parsing conversation ID %q: %v", id, err)
	}
	return parsed
}

func mustMessageID(t *testing.T, id string) ref.MessageID {
	t.Helper()
	parsed, err := ref.ParseMessageID(id)
	if err != nil {
		t.Fatalf("parsing message ID %q: %v", id, err)
	}
	return parsed
}

var testEpoch = time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

func testDirectory(t *testing.T) (*directory, *tracker) {
	t.Helper()
	tracker := &tracker{}
	return newDirectory(mustUserID(t, "user-self"), tracker), tracker
}

func summaryAt(t *testing.T, id string, at time.Time) api.ConversationSummary {
	t.Helper()
	return api.ConversationSummary{
		ConversationID: mustConversationID(t, id),
		Kind:           api.ConversationGroup,
		Name:           id,
		LastMessageAt:  at,
	}
}

// checkSorted fails unless the directory is ordered by LastMessageAt
// descending.
func checkSorted(t *testing.T, d *directory) {
	t.Helper()
	entries := d.snapshot()
	for i := 1; i < len(entries); i++ {
		if entries[i].LastMessageAt.After(entries[i-1].LastMessageAt) {
			t.Fatalf("directory out of order at %d: %v after %v",
				i, entries[i].LastMessageAt, entries[i-1].LastMessageAt)
		}
	}
}

func TestDirectoryPushUpdateMovesToHead(t *testing.T) {
	d, _ := testDirectory(t)
	d.seed([]api.ConversationSummary{
		summaryAt(t, "conv-a", testEpoch.Add(2*time.Minute)),
		summaryAt(t, "conv-b", testEpoch.Add(1*time.Minute)),
	})

	// Scenario: conv-b gets a newer message from another user — it
	// becomes unread and moves to the head.
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID:  mustConversationID(t, "conv-b"),
		LastMessageText: "hi",
		LastMessageAt:   testEpoch.Add(5 * time.Minute),
		SenderID:        mustUserID(t, "user-other"),
	})

	entries := d.snapshot()
	if entries[0].ID.String() != "conv-b" {
		t.Fatalf("expected conv-b at head, got %s", entries[0].ID)
	}
	if !entries[0].Unread {
		t.Error("expected conv-b unread")
	}
	if entries[0].LastMessageText != "hi" {
		t.Errorf("unexpected last message text: %q", entries[0].LastMessageText)
	}
	checkSorted(t, d)
}

func TestDirectorySelfAuthoredStaysRead(t *testing.T) {
	d, _ := testDirectory(t)
	d.seed([]api.ConversationSummary{summaryAt(t, "conv-a", testEpoch)})

	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-a"),
		LastMessageAt:  testEpoch.Add(time.Minute),
		SenderID:       mustUserID(t, "user-self"),
	})

	if d.snapshot()[0].Unread {
		t.Error("self-authored update must not set unread")
	}
}

func TestDirectoryOpenConversationStaysRead(t *testing.T) {
	d, tracker := testDirectory(t)
	d.seed([]api.ConversationSummary{summaryAt(t, "conv-a", testEpoch)})
	tracker.activate(mustConversationID(t, "conv-a"))

	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-a"),
		LastMessageAt:  testEpoch.Add(time.Minute),
		SenderID:       mustUserID(t, "user-other"),
	})

	if d.snapshot()[0].Unread {
		t.Error("update for the open conversation must not set unread")
	}

	// After switching away, the same conversation is eligible for
	// unread marking again.
	tracker.activate(mustConversationID(t, "conv-b"))
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-a"),
		LastMessageAt:  testEpoch.Add(2 * time.Minute),
		SenderID:       mustUserID(t, "user-other"),
	})
	if !d.snapshot()[0].Unread {
		t.Error("expected unread after the conversation was closed")
	}
}

func TestDirectorySynthesizesPlaceholder(t *testing.T) {
	d, _ := testDirectory(t)

	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID:  mustConversationID(t, "conv-new"),
		LastMessageText: "first contact",
		LastMessageAt:   testEpoch,
		SenderID:        mustUserID(t, "user-other"),
	})

	entries := d.snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Placeholder {
		t.Error("expected a placeholder entry")
	}

	// The next directory load fills in real metadata.
	d.seed([]api.ConversationSummary{{
		ConversationID: mustConversationID(t, "conv-new"),
		Kind:           api.ConversationGroup,
		Name:           "weekend plans",
		LastMessageAt:  testEpoch,
	}})
	entries = d.snapshot()
	if entries[0].Placeholder {
		t.Error("placeholder should clear after a directory load")
	}
	if entries[0].DisplayName != "weekend plans" {
		t.Errorf("unexpected display name: %q", entries[0].DisplayName)
	}
}

func TestDirectoryTieBreakLastWriteWins(t *testing.T) {
	d, _ := testDirectory(t)
	at := testEpoch.Add(time.Hour)
	other := mustUserID(t, "user-other")

	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-a"),
		LastMessageAt:  at,
		SenderID:       other,
	})
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-b"),
		LastMessageAt:  at,
		SenderID:       other,
	})

	if got := d.snapshot()[0].ID.String(); got != "conv-b" {
		t.Errorf("expected the most recently written entry first, got %s", got)
	}
}

func TestDirectorySortedAfterArbitraryInterleaving(t *testing.T) {
	d, _ := testDirectory(t)
	other := mustUserID(t, "user-other")

	// Deterministic pseudo-random interleaving across five
	// conversations with out-of-order timestamps.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("conv-%d", (i*7)%5)
		at := testEpoch.Add(time.Duration((i*13)%17) * time.Minute)
		d.applyPushUpdate(wire.ConversationUpdated{
			ConversationID: mustConversationID(t, id),
			LastMessageAt:  at,
			SenderID:       other,
		})
		checkSorted(t, d)
	}
}

func TestDirectorySeedIsLowerBound(t *testing.T) {
	d, _ := testDirectory(t)

	// Push state arrives first.
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID:  mustConversationID(t, "conv-a"),
		LastMessageText: "newest",
		LastMessageAt:   testEpoch.Add(10 * time.Minute),
		SenderID:        mustUserID(t, "user-other"),
	})

	// A snapshot that was in flight resolves with older recency: it
	// must fill metadata without rolling back push state.
	stale := summaryAt(t, "conv-a", testEpoch)
	stale.LastMessageText = "older"
	d.seed([]api.ConversationSummary{stale})

	entry := d.snapshot()[0]
	if entry.LastMessageText != "newest" {
		t.Errorf("snapshot rolled back push state: %q", entry.LastMessageText)
	}
	if !entry.Unread {
		t.Error("snapshot must not clear unread")
	}
}

func TestDirectorySearchIsProjection(t *testing.T) {
	d, _ := testDirectory(t)
	d.seed([]api.ConversationSummary{
		summaryAt(t, "weekend-plans", testEpoch.Add(2*time.Minute)),
		summaryAt(t, "standup", testEpoch.Add(1*time.Minute)),
	})
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "standup"),
		LastMessageAt:  testEpoch.Add(3 * time.Minute),
		SenderID:       mustUserID(t, "user-other"),
	})

	matches := d.search("WEEK")
	if len(matches) != 1 || matches[0].ID.String() != "weekend-plans" {
		t.Fatalf("unexpected search result: %+v", matches)
	}

	// The canonical list is untouched: ordering and unread state
	// survive the search.
	entries := d.snapshot()
	if entries[0].ID.String() != "standup" {
		t.Errorf("search mutated ordering: %s first", entries[0].ID)
	}
	if !entries[0].Unread {
		t.Error("search mutated unread state")
	}
}

func TestDirectoryMarkOpenedClearsUnread(t *testing.T) {
	d, _ := testDirectory(t)
	d.applyPushUpdate(wire.ConversationUpdated{
		ConversationID: mustConversationID(t, "conv-a"),
		LastMessageAt:  testEpoch,
		SenderID:       mustUserID(t, "user-other"),
	})
	if !d.snapshot()[0].Unread {
		t.Fatal("expected unread before open")
	}

	d.markOpened(mustConversationID(t, "conv-a"))
	if d.snapshot()[0].Unread {
		t.Error("markOpened must clear unread")
	}
}
