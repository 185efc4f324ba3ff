// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"time"

	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/lib/secret"
)

// ConversationKind distinguishes one-to-one conversations from groups.
type ConversationKind string

const (
	// ConversationDirect is a one-to-one conversation.
	ConversationDirect ConversationKind = "DIRECT"
	// ConversationGroup is a named group conversation.
	ConversationGroup ConversationKind = "GROUP"
)

// MessageKind identifies the content type of a message.
type MessageKind string

const (
	MessageText  MessageKind = "TEXT"
	MessageImage MessageKind = "IMAGE"
	MessageVideo MessageKind = "VIDEO"
	MessageFile  MessageKind = "FILE"
)

// RegisterRequest holds parameters for registering a new account.
// Password is stored in an mmap-backed buffer (locked against swap,
// excluded from core dumps). The caller retains ownership of the
// buffer — Register reads from it but does not close it.
type RegisterRequest struct {
	Username  string
	Password  *secret.Buffer
	FirstName string
	LastName  string
}

// Profile is the display profile attached to a user.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	AvatarURL string `json:"avatar,omitempty"`
}

// DisplayName returns the profile's full name for rendering.
func (p Profile) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// User is a server-side account as returned by authentication and
// search endpoints.
type User struct {
	ID      ref.UserID `json:"id"`
	Email   string     `json:"email,omitempty"`
	Profile Profile    `json:"profile"`
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ConversationSummary is one entry of the directory snapshot returned
// by the /api/conversations endpoint.
type ConversationSummary struct {
	ConversationID  ref.ConversationID `json:"conversationId"`
	Kind            ConversationKind   `json:"kind"`
	Name            string             `json:"name,omitempty"`
	AvatarURL       string             `json:"avatar,omitempty"`
	LastMessageText string             `json:"lastMessageText,omitempty"`
	LastMessageAt   time.Time          `json:"lastMessageAt"`
	Unread          bool               `json:"unread"`
	// Recipient is set for DIRECT conversations: the other party.
	Recipient *User `json:"recipient,omitempty"`
}

// DisplayName returns the rendered name of the conversation: the group
// name, or the recipient's profile name for one-to-one conversations.
func (c ConversationSummary) DisplayName() string {
	if c.Kind == ConversationDirect && c.Recipient != nil {
		return c.Recipient.Profile.DisplayName()
	}
	return c.Name
}

// ConversationsResponse is returned by the /api/conversations endpoint.
type ConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// MemberRole is a participant's role within a group conversation.
type MemberRole string

const (
	RoleOwner  MemberRole = "OWNER"
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"
)

// Participant is one member of a conversation, as returned by the
// conversation detail endpoint.
type Participant struct {
	UserID  ref.UserID `json:"userId"`
	Profile Profile    `json:"profile"`
	Role    MemberRole `json:"role"`
	// Pending marks users who requested to join (or were invited) and
	// await approval by an admin.
	Pending bool `json:"pending,omitempty"`
}

// ConversationDetail is the full view of one conversation, including
// its participant and pending-participant lists. Consumed by the
// conversation management flows; shares the conversation identity
// space with the directory.
type ConversationDetail struct {
	ConversationID ref.ConversationID `json:"conversationId"`
	Kind           ConversationKind   `json:"kind"`
	Name           string             `json:"name,omitempty"`
	AvatarURL      string             `json:"avatar,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	Participants   []Participant      `json:"participants"`
}

// Attachment carries the metadata of a non-text message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	MIME string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// MessageRecord is one server-confirmed message, as returned by the
// message page endpoint and carried in new-message push events.
type MessageRecord struct {
	MessageID      ref.MessageID      `json:"messageId"`
	ConversationID ref.ConversationID `json:"conversationId"`
	SenderID       ref.UserID         `json:"senderId"`
	Kind           MessageKind        `json:"type"`
	Content        string             `json:"content"`
	Attachment     *Attachment        `json:"attachment,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// MessagesResponse is returned by the message page endpoint. Messages
// are ordered newest-first.
type MessagesResponse struct {
	Messages []MessageRecord `json:"messages"`
}

// CreateConversationResponse is returned by the one-to-one and group
// creation endpoints.
type CreateConversationResponse struct {
	ConversationID ref.ConversationID `json:"conversationId"`
}

// FriendshipState tracks the progress of a friend request.
type FriendshipState string

const (
	FriendshipAccepted FriendshipState = "ACCEPTED"
	FriendshipPending  FriendshipState = "PENDING"
)

// Friendship is one edge in the user's friendship graph, as returned
// by the friendship listing endpoints.
type Friendship struct {
	UserID  ref.UserID      `json:"userId"`
	Profile Profile         `json:"profile"`
	State   FriendshipState `json:"state"`
}

// FriendshipsResponse is returned by the friendship listing endpoints.
type FriendshipsResponse struct {
	Friendships []Friendship `json:"friendships"`
}

// SearchUsersResponse is returned by the user search endpoint.
type SearchUsersResponse struct {
	Users []User `json:"users"`
}
