// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"time"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/codec"
	"github.com/bureau-foundation/parley/lib/ref"
)

// Event names carried in envelopes. Outbound events are emitted by the
// engine; inbound events arrive from the server and are dispatched to
// subscribed handlers.
const (
	// Outbound.
	EventOpenConversation  = "open-conversation"
	EventCloseConversation = "close-conversation"
	EventSendMessage       = "send-message"

	// Inbound.
	EventNewMessage          = "new-message"
	EventConversationUpdated = "conversation-updated"
	EventNewConversation     = "new-conversation"
)

// Envelope is the framing for every websocket message in both
// directions: an event name and a CBOR-encoded payload. The payload is
// kept raw so the read loop can dispatch on the event name without
// knowing every payload shape.
type Envelope struct {
	Event   string           `cbor:"event"`
	Payload codec.RawMessage `cbor:"payload"`
}

// NewEnvelope encodes payload and wraps it with the event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Payload: encoded}, nil
}

// OpenConversation is the payload for open-conversation and
// close-conversation.
type OpenConversation struct {
	ConversationID ref.ConversationID `cbor:"conversation_id"`
}

// SendMessage is the payload for send-message.
type SendMessage struct {
	ConversationID ref.ConversationID `cbor:"conversation_id"`
	Content        string             `cbor:"content"`
	Kind           api.MessageKind    `cbor:"kind"`
	Attachment     *api.Attachment    `cbor:"attachment,omitempty"`
}

// NewMessage is the payload for the inbound new-message event.
type NewMessage struct {
	ConversationID ref.ConversationID `cbor:"conversation_id"`
	MessageID      ref.MessageID      `cbor:"id"`
	SenderID       ref.UserID         `cbor:"sender_id"`
	Content        string             `cbor:"content"`
	Kind           api.MessageKind    `cbor:"kind"`
	Attachment     *api.Attachment    `cbor:"attachment,omitempty"`
	CreatedAt      time.Time          `cbor:"created_at"`
}

// ConversationUpdated is the payload for the inbound
// conversation-updated event.
type ConversationUpdated struct {
	ConversationID  ref.ConversationID `cbor:"conversation_id"`
	LastMessageText string             `cbor:"last_message_text"`
	LastMessageAt   time.Time          `cbor:"last_message_at"`
	SenderID        ref.UserID         `cbor:"sender_id"`
}

// NewConversation is the payload for the inbound new-conversation
// event.
type NewConversation struct {
	ConversationID ref.ConversationID `cbor:"conversation_id"`
	ParticipantIDs []ref.UserID       `cbor:"participant_ids"`
}
