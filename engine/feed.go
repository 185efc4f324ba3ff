// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/wire"
)

// feed owns the ordered message sequence of one opened conversation,
// newest-first. Position is governed by arrival order, not timestamp:
// a push message with an older CreatedAt still lands at the head, and
// CreatedAt is display-only. All methods require the engine lock.
type feed struct {
	conversationID ref.ConversationID
	localUser      ref.UserID

	messages []*Message
	byServer map[ref.MessageID]*Message
	byLocal  map[string]*Message
}

func newFeed(conversationID ref.ConversationID, localUser ref.UserID) *feed {
	return &feed{
		conversationID: conversationID,
		localUser:      localUser,
		byServer:       make(map[ref.MessageID]*Message),
		byLocal:        make(map[string]*Message),
	}
}

// seed merges a snapshot page (newest-first). The snapshot is a lower
// bound on feed state: entries already present — confirmed by push
// while the fetch was in flight, or still-pending local sends — are
// left untouched, and only unseen records are appended below them in
// their snapshot order.
func (f *feed) seed(records []api.MessageRecord) {
	for _, record := range records {
		if _, known := f.byServer[record.MessageID]; known {
			continue
		}
		if pending := f.correlatePending(record.Content, record.Kind); pending != nil {
			f.confirm(pending, record.MessageID, record.CreatedAt)
			continue
		}
		message := &Message{
			LocalID:        uuid.NewString(),
			MessageID:      record.MessageID,
			ConversationID: record.ConversationID,
			SenderID:       record.SenderID,
			Kind:           record.Kind,
			Content:        record.Content,
			Attachment:     record.Attachment,
			CreatedAt:      record.CreatedAt,
			State:          Confirmed,
		}
		f.messages = append(f.messages, message)
		f.byServer[record.MessageID] = message
		f.byLocal[message.LocalID] = message
	}
}

// applyPush merges one inbound confirmed message. Idempotent on the
// server id: an exact echo is discarded. A message matching a pending
// local send is reconciled in place, preserving its feed position;
// anything else is inserted at the head.
func (f *feed) applyPush(push wire.NewMessage) {
	if _, known := f.byServer[push.MessageID]; known {
		return
	}
	if pending := f.correlatePending(push.Content, push.Kind); pending != nil {
		f.confirm(pending, push.MessageID, push.CreatedAt)
		return
	}

	message := &Message{
		LocalID:        uuid.NewString(),
		MessageID:      push.MessageID,
		ConversationID: push.ConversationID,
		SenderID:       push.SenderID,
		Kind:           push.Kind,
		Content:        push.Content,
		Attachment:     push.Attachment,
		CreatedAt:      push.CreatedAt,
		State:          Confirmed,
	}
	f.messages = append([]*Message{message}, f.messages...)
	f.byServer[push.MessageID] = message
	f.byLocal[message.LocalID] = message
}

// stage creates a pending optimistic entry at the feed head and
// returns it. The caller forwards the send intent over the connection
// and calls fail on the returned message if that cannot be done.
func (f *feed) stage(content string, kind api.MessageKind, attachment *api.Attachment) *Message {
	message := &Message{
		LocalID:        uuid.NewString(),
		ConversationID: f.conversationID,
		SenderID:       f.localUser,
		Kind:           kind,
		Content:        content,
		Attachment:     attachment,
		CreatedAt:      time.Now(),
		State:          Pending,
	}
	f.messages = append([]*Message{message}, f.messages...)
	f.byLocal[message.LocalID] = message
	return message
}

// fail transitions a message to Failed. The message stays in the feed,
// addressable by LocalID, so the presentation layer can offer retry.
func (f *feed) fail(message *Message, retryable bool) {
	message.State = Failed
	message.Retryable = retryable
}

// retryable looks up a failed, retryable message by local id and marks
// it pending again for a fresh send attempt. Returns nil if the id is
// unknown or the message is not in a retryable state.
func (f *feed) retryable(localID string) *Message {
	message := f.byLocal[localID]
	if message == nil || message.State != Failed || !message.Retryable {
		return nil
	}
	message.State = Pending
	message.Retryable = false
	return message
}

// correlatePending finds the oldest pending local send matching by
// content and kind. Best-effort: without a client idempotency key
// echoed by the server, content equality is the only correlation
// handle, and two identical simultaneous sends can mis-correlate.
func (f *feed) correlatePending(content string, kind api.MessageKind) *Message {
	for i := len(f.messages) - 1; i >= 0; i-- {
		message := f.messages[i]
		if message.State == Pending && message.MessageID.IsZero() &&
			message.Content == content && message.Kind == kind {
			return message
		}
	}
	return nil
}

// confirm reconciles a pending entry with its server echo in place:
// server id and timestamp replace the provisional values, the state
// becomes Confirmed, and the feed position does not change.
func (f *feed) confirm(message *Message, messageID ref.MessageID, createdAt time.Time) {
	message.MessageID = messageID
	message.CreatedAt = createdAt
	message.State = Confirmed
	message.Retryable = false
	f.byServer[messageID] = message
}

// snapshot returns a copy of the ordered feed for the read model.
func (f *feed) snapshot() []Message {
	messages := make([]Message, 0, len(f.messages))
	for _, message := range f.messages {
		messages = append(messages, *message)
	}
	return messages
}
