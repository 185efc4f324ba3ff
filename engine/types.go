// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/ref"
)

// DeliveryState tracks an outbound message through its lifecycle.
// Snapshot and push messages are born Confirmed; local sends are born
// Pending and transition exactly once, to Confirmed (server echo) or
// Failed (send error).
type DeliveryState int

const (
	Pending DeliveryState = iota
	Confirmed
	Failed
)

func (s DeliveryState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Confirmed:
		return "CONFIRMED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("DeliveryState(%d)", int(s))
	}
}

// Message is one entry in a feed. LocalID is assigned at creation and
// never changes; MessageID is zero until the server confirms the
// message. Failed messages stay addressable by LocalID for retry.
type Message struct {
	LocalID        string
	MessageID      ref.MessageID
	ConversationID ref.ConversationID
	SenderID       ref.UserID
	Kind           api.MessageKind
	Content        string
	Attachment     *api.Attachment
	CreatedAt      time.Time
	State          DeliveryState

	// Retryable marks a Failed message that can be re-sent via
	// RetryMessage.
	Retryable bool
}

// Conversation is one entry in the directory. Entries are created on
// first observation (snapshot or push) and never deleted for the life
// of the session.
type Conversation struct {
	ID              ref.ConversationID
	Kind            api.ConversationKind
	DisplayName     string
	AvatarURL       string
	LastMessageText string
	LastMessageAt   time.Time
	Unread          bool
	Participants    []ref.UserID

	// Placeholder marks an entry synthesized from a push update for a
	// conversation the directory has not seen in a snapshot yet. The
	// display name is provisional until the next directory load.
	Placeholder bool

	// revision orders entries with equal LastMessageAt: the most
	// recently written entry sorts first.
	revision uint64
}
