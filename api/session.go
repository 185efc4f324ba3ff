// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/lib/secret"
)

// Session is an authenticated Parley API session. It wraps a Client
// with a bearer token for making authenticated calls. Sessions are
// lightweight and safe to share across goroutines.
//
// The token is stored in a secret.Buffer (mmap-backed, locked against
// swap, excluded from core dumps). The caller must call Close when the
// Session is no longer needed.
type Session struct {
	client *Client
	token  *secret.Buffer
	user   User
}

// UserID returns the authenticated user's identifier.
func (s *Session) UserID() ref.UserID {
	return s.user.ID
}

// User returns the authenticated user's account record.
func (s *Session) User() User {
	return s.user
}

// Token returns the bearer token as a heap string. This creates a
// brief copy from the mmap-backed buffer — use only at boundaries that
// require a string (the websocket dial header). Prefer passing the
// Session itself when possible.
func (s *Session) Token() string {
	return s.token.String()
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a request error to force
// the next request to establish a fresh TCP connection.
func (s *Session) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the bearer token memory (zeros, unlocks, unmaps).
// Idempotent — safe to call multiple times.
func (s *Session) Close() error {
	if s.token != nil {
		return s.token.Close()
	}
	return nil
}

// Conversations fetches the directory snapshot: the user's
// conversations ordered by recency.
func (s *Session) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/api/conversations", s.token, nil)
	if err != nil {
		return nil, fmt.Errorf("api: conversations fetch failed: %w", err)
	}

	var response ConversationsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse conversations response: %w", err)
	}
	return response.Conversations, nil
}

// ConversationDetail fetches the full view of one conversation,
// including participants and pending participants.
func (s *Session) ConversationDetail(ctx context.Context, conversationID ref.ConversationID) (*ConversationDetail, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.token, nil)
	if err != nil {
		return nil, fmt.Errorf("api: conversation detail fetch for %s failed: %w", conversationID, err)
	}

	var response ConversationDetail
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse conversation detail: %w", err)
	}
	return &response, nil
}

// ConversationMessages fetches the most recent page of messages for a
// conversation, newest-first. limit caps the page size; zero uses the
// server default.
func (s *Session) ConversationMessages(ctx context.Context, conversationID ref.ConversationID, limit int) ([]MessageRecord, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) + "/messages"

	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.token, nil, query)
	if err != nil {
		return nil, fmt.Errorf("api: message page fetch for %s failed: %w", conversationID, err)
	}

	var response MessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse messages response: %w", err)
	}
	return response.Messages, nil
}

// CreateDirectConversation creates (or returns the existing)
// one-to-one conversation with another user.
func (s *Session) CreateDirectConversation(ctx context.Context, userID ref.UserID) (ref.ConversationID, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/api/conversations/one-to-one", s.token, map[string]any{
		"userId": userID.String(),
	})
	if err != nil {
		return ref.ConversationID{}, fmt.Errorf("api: one-to-one conversation create failed: %w", err)
	}

	var response CreateConversationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.ConversationID{}, fmt.Errorf("api: failed to parse conversation create response: %w", err)
	}

	s.client.logger.Info("created direct conversation",
		"conversation_id", response.ConversationID,
		"peer", userID,
	)
	return response.ConversationID, nil
}

// CreateGroupConversation creates a named group conversation with an
// initial participant set.
func (s *Session) CreateGroupConversation(ctx context.Context, name string, participantIDs []ref.UserID) (ref.ConversationID, error) {
	if name == "" {
		return ref.ConversationID{}, fmt.Errorf("api: group name is required")
	}

	members := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		members = append(members, id.String())
	}

	body, err := s.client.doRequest(ctx, http.MethodPost, "/api/conversations/group", s.token, map[string]any{
		"name":           name,
		"participantIds": members,
	})
	if err != nil {
		return ref.ConversationID{}, fmt.Errorf("api: group conversation create failed: %w", err)
	}

	var response CreateConversationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.ConversationID{}, fmt.Errorf("api: failed to parse conversation create response: %w", err)
	}

	s.client.logger.Info("created group conversation",
		"conversation_id", response.ConversationID,
		"name", name,
		"participants", len(participantIDs),
	)
	return response.ConversationID, nil
}

// InviteUser invites a user into a group conversation. The invitee
// appears in the pending-participant list until approved.
func (s *Session) InviteUser(ctx context.Context, conversationID ref.ConversationID, userID ref.UserID) error {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) + "/invite"
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.token, map[string]any{
		"userId": userID.String(),
	})
	if err != nil {
		return fmt.Errorf("api: invite to %s failed: %w", conversationID, err)
	}
	return nil
}

// ApproveUser approves a pending participant of a group conversation.
func (s *Session) ApproveUser(ctx context.Context, conversationID ref.ConversationID, userID ref.UserID) error {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) + "/approve"
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.token, map[string]any{
		"userId": userID.String(),
	})
	if err != nil {
		return fmt.Errorf("api: approve in %s failed: %w", conversationID, err)
	}
	return nil
}

// RejectUser rejects a pending participant of a group conversation.
func (s *Session) RejectUser(ctx context.Context, conversationID ref.ConversationID, userID ref.UserID) error {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) + "/reject"
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.token, map[string]any{
		"userId": userID.String(),
	})
	if err != nil {
		return fmt.Errorf("api: reject in %s failed: %w", conversationID, err)
	}
	return nil
}

// SetMemberRole promotes or demotes a conversation member.
func (s *Session) SetMemberRole(ctx context.Context, conversationID ref.ConversationID, userID ref.UserID, role MemberRole) error {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) +
		"/members/" + url.PathEscape(userID.String()) + "/role"
	_, err := s.client.doRequest(ctx, http.MethodPatch, path, s.token, map[string]any{
		"role": string(role),
	})
	if err != nil {
		return fmt.Errorf("api: role change in %s failed: %w", conversationID, err)
	}
	return nil
}

// RemoveMember removes a member from a group conversation.
func (s *Session) RemoveMember(ctx context.Context, conversationID ref.ConversationID, userID ref.UserID) error {
	path := "/api/conversations/" + url.PathEscape(conversationID.String()) +
		"/members/" + url.PathEscape(userID.String())
	_, err := s.client.doRequest(ctx, http.MethodDelete, path, s.token, nil)
	if err != nil {
		return fmt.Errorf("api: member removal from %s failed: %w", conversationID, err)
	}
	return nil
}

// SearchUsers searches accounts by display name, case-insensitively.
func (s *Session) SearchUsers(ctx context.Context, name string) ([]User, error) {
	query := url.Values{"name": []string{name}}
	body, err := s.client.doRequest(ctx, http.MethodGet, "/api/users/search", s.token, nil, query)
	if err != nil {
		return nil, fmt.Errorf("api: user search failed: %w", err)
	}

	var response SearchUsersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse user search response: %w", err)
	}
	return response.Users, nil
}

// Friendships returns the accepted friendships of the user.
func (s *Session) Friendships(ctx context.Context) ([]Friendship, error) {
	return s.friendshipList(ctx, "/api/friendships/")
}

// SentFriendRequests returns friend requests the user has sent that
// are still pending.
func (s *Session) SentFriendRequests(ctx context.Context) ([]Friendship, error) {
	return s.friendshipList(ctx, "/api/friendships/sent")
}

// ReceivedFriendRequests returns pending friend requests addressed to
// the user.
func (s *Session) ReceivedFriendRequests(ctx context.Context) ([]Friendship, error) {
	return s.friendshipList(ctx, "/api/friendships/received")
}

func (s *Session) friendshipList(ctx context.Context, path string) ([]Friendship, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.token, nil)
	if err != nil {
		return nil, fmt.Errorf("api: friendship list fetch failed: %w", err)
	}

	var response FriendshipsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse friendships response: %w", err)
	}
	return response.Friendships, nil
}

// SendFriendRequest sends a friend request to another user.
func (s *Session) SendFriendRequest(ctx context.Context, userID ref.UserID) error {
	return s.friendshipAction(ctx, userID, "request")
}

// AcceptFriend accepts a received friend request.
func (s *Session) AcceptFriend(ctx context.Context, userID ref.UserID) error {
	return s.friendshipAction(ctx, userID, "accept")
}

// RejectFriend rejects a received friend request.
func (s *Session) RejectFriend(ctx context.Context, userID ref.UserID) error {
	return s.friendshipAction(ctx, userID, "reject")
}

// CancelFriendRequest withdraws a friend request the user sent.
func (s *Session) CancelFriendRequest(ctx context.Context, userID ref.UserID) error {
	return s.friendshipAction(ctx, userID, "cancel")
}

// Unfriend removes an accepted friendship.
func (s *Session) Unfriend(ctx context.Context, userID ref.UserID) error {
	return s.friendshipAction(ctx, userID, "unfriend")
}

func (s *Session) friendshipAction(ctx context.Context, userID ref.UserID, action string) error {
	path := "/api/friendships/" + url.PathEscape(userID.String()) + "/" + action
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.token, struct{}{})
	if err != nil {
		return fmt.Errorf("api: friendship %s for %s failed: %w", action, userID, err)
	}
	return nil
}
