// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/bureau-foundation/parley/lib/ref"
)

// tracker records which conversation, if any, the user is looking at
// right now. Unread suppression in the directory and open/close
// notifications to the server both depend on this single value;
// centralizing it keeps the directory and the feed from holding
// divergent copies.
//
// At most one conversation is open at a time: opening a second
// implicitly closes the first. Methods require the engine lock.
type tracker struct {
	open ref.ConversationID
}

// activate records conversationID as open and returns the previously
// open conversation id (zero if none, or if it equals the new one).
func (t *tracker) activate(conversationID ref.ConversationID) ref.ConversationID {
	previous := t.open
	t.open = conversationID
	if previous == conversationID {
		return ref.ConversationID{}
	}
	return previous
}

// deactivate clears the tracked id if it matches conversationID and
// reports whether it did.
func (t *tracker) deactivate(conversationID ref.ConversationID) bool {
	if t.open != conversationID {
		return false
	}
	t.open = ref.ConversationID{}
	return true
}

// current returns the open conversation id, zero when none is open.
func (t *tracker) current() ref.ConversationID {
	return t.open
}
