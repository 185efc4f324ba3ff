// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"sort"
	"strings"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/wire"
)

// directory owns the ordered conversation list. All methods require
// the engine lock; the directory itself is not safe for concurrent
// use. Conversation entries are mutated only here — the feed reports
// message activity through applyPushUpdate, never by field writes.
type directory struct {
	localUser ref.UserID
	tracker   *tracker

	entries []*Conversation
	index   map[ref.ConversationID]*Conversation

	// nextRevision stamps each write so entries with equal
	// LastMessageAt sort by write recency (last write wins).
	nextRevision uint64
}

func newDirectory(localUser ref.UserID, tracker *tracker) *directory {
	return &directory{
		localUser: localUser,
		tracker:   tracker,
		index:     make(map[ref.ConversationID]*Conversation),
	}
}

// seed merges a directory snapshot. Existing entries are updated in
// place so push-derived state observed while the fetch was in flight
// is not reverted: LastMessageText/At only move forward, and Unread is
// never cleared by a snapshot. Placeholder entries get their real
// display metadata here.
func (d *directory) seed(summaries []api.ConversationSummary) {
	for _, summary := range summaries {
		entry := d.index[summary.ConversationID]
		if entry == nil {
			entry = &Conversation{ID: summary.ConversationID}
			d.index[summary.ConversationID] = entry
			d.entries = append(d.entries, entry)
		}

		entry.Kind = summary.Kind
		entry.DisplayName = summary.DisplayName()
		entry.AvatarURL = summary.AvatarURL
		entry.Placeholder = false
		if summary.Recipient != nil {
			entry.Participants = []ref.UserID{summary.Recipient.ID}
		}

		// Snapshot recency is a lower bound: a push update that
		// arrived while the fetch was in flight already carries newer
		// state.
		if summary.LastMessageAt.After(entry.LastMessageAt) {
			entry.LastMessageText = summary.LastMessageText
			entry.LastMessageAt = summary.LastMessageAt
			entry.revision = d.revision()
		}
		if summary.Unread && !d.suppressUnread(entry.ID, ref.UserID{}) {
			entry.Unread = true
		}
	}
	d.resort()
}

// applyPushUpdate merges one conversation-level push update: bump the
// recency fields, set unread unless suppressed, and re-sort the full
// list. An unknown conversation id synthesizes a placeholder entry
// pending the next directory load.
func (d *directory) applyPushUpdate(update wire.ConversationUpdated) {
	entry := d.index[update.ConversationID]
	if entry == nil {
		entry = &Conversation{
			ID:          update.ConversationID,
			DisplayName: update.ConversationID.String(),
			Placeholder: true,
		}
		d.index[update.ConversationID] = entry
		d.entries = append(d.entries, entry)
	}

	entry.LastMessageText = update.LastMessageText
	entry.LastMessageAt = update.LastMessageAt
	entry.revision = d.revision()

	if !d.suppressUnread(update.ConversationID, update.SenderID) {
		entry.Unread = true
	}

	d.resort()
}

// suppressUnread reports whether an update must not set the unread
// flag: events the local user authored, and events for the
// conversation currently open in the tracker.
func (d *directory) suppressUnread(conversationID ref.ConversationID, senderID ref.UserID) bool {
	if senderID == d.localUser && !senderID.IsZero() {
		return true
	}
	return d.tracker.current() == conversationID
}

// markOpened clears the unread flag when the tracker opens a
// conversation.
func (d *directory) markOpened(conversationID ref.ConversationID) {
	if entry := d.index[conversationID]; entry != nil {
		entry.Unread = false
	}
}

// search returns a projection of the canonical list filtered by
// case-insensitive substring match on the display name. Never mutates
// ordering or unread state; an empty term returns the whole list.
func (d *directory) search(term string) []Conversation {
	needle := strings.ToLower(term)
	matches := make([]Conversation, 0, len(d.entries))
	for _, entry := range d.entries {
		if needle != "" && !strings.Contains(strings.ToLower(entry.DisplayName), needle) {
			continue
		}
		matches = append(matches, *entry)
	}
	return matches
}

// snapshot returns a copy of the ordered list for the read model.
func (d *directory) snapshot() []Conversation {
	return d.search("")
}

// resort re-sorts the full list by LastMessageAt descending, ties
// broken by write recency. A full sort after every merge guarantees
// total ordering under arbitrary event interleaving.
func (d *directory) resort() {
	sort.SliceStable(d.entries, func(i, j int) bool {
		a, b := d.entries[i], d.entries[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.revision > b.revision
	})
}

func (d *directory) revision() uint64 {
	d.nextRevision++
	return d.nextRevision
}
