// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/bureau-foundation/parley/lib/codec"
	"github.com/bureau-foundation/parley/lib/ref"
)

// wsServer starts an in-process websocket server. handle is called
// with each accepted connection; the connection is closed when handle
// returns.
func wsServer(t *testing.T, handle func(ctx context.Context, ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := websocket.Accept(writer, request, nil)
		if err != nil {
			t.Errorf("websocket accept failed: %v", err)
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")
		handle(request.Context(), ws)
	}))
	t.Cleanup(server.Close)
	return server
}

// sendEnvelope encodes and writes one envelope as a binary frame.
func sendEnvelope(ctx context.Context, t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	envelope, err := NewEnvelope(event, payload)
	if err != nil {
		t.Errorf("encoding envelope: %v", err)
		return
	}
	frame, err := codec.Marshal(envelope)
	if err != nil {
		t.Errorf("encoding frame: %v", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Errorf("writing frame: %v", err)
	}
}

// waitStatus drains the status channel until the wanted status arrives
// or the timeout fires.
func waitStatus(t *testing.T, statuses <-chan Status, want Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case status := <-statuses:
			if status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

func TestConnReceivesPushEvents(t *testing.T) {
	conversationID, _ := ref.ParseConversationID("conv-1")

	server := wsServer(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, t, ws, EventConversationUpdated, ConversationUpdated{
			ConversationID:  conversationID,
			LastMessageText: "hi",
		})
		// Hold the connection open until the client goes away.
		ws.Read(ctx)
	})

	statuses := make(chan Status, 16)
	conn, err := New(Config{
		SocketURL: server.URL,
		OnStatus:  func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	received := make(chan ConversationUpdated, 1)
	conn.Subscribe(EventConversationUpdated, func(payload codec.RawMessage) {
		var update ConversationUpdated
		if err := codec.Unmarshal(payload, &update); err != nil {
			t.Errorf("decoding payload: %v", err)
			return
		}
		received <- update
	})

	if err := conn.Start("test-token"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop()

	waitStatus(t, statuses, StatusConnecting)
	waitStatus(t, statuses, StatusConnected)

	select {
	case update := <-received:
		if update.ConversationID != conversationID {
			t.Errorf("unexpected conversation ID: %s", update.ConversationID)
		}
		if update.LastMessageText != "hi" {
			t.Errorf("unexpected text: %q", update.LastMessageText)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for push event")
	}

	conn.Stop()
	if got := conn.Status(); got != StatusDisconnected {
		t.Errorf("expected DISCONNECTED after Stop, got %s", got)
	}
}

func TestConnEmit(t *testing.T) {
	conversationID, _ := ref.ParseConversationID("conv-1")

	received := make(chan Envelope, 1)
	server := wsServer(t, func(ctx context.Context, ws *websocket.Conn) {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var envelope Envelope
		if err := codec.Unmarshal(frame, &envelope); err != nil {
			t.Errorf("decoding envelope: %v", err)
			return
		}
		received <- envelope
		ws.Read(ctx)
	})

	statuses := make(chan Status, 16)
	conn, err := New(Config{
		SocketURL: server.URL,
		OnStatus:  func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Not started yet: emit must fail fast, never queue.
	if err := conn.Emit(EventOpenConversation, OpenConversation{ConversationID: conversationID}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected before Start, got: %v", err)
	}

	if err := conn.Start("test-token"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop()
	waitStatus(t, statuses, StatusConnected)

	if err := conn.Emit(EventOpenConversation, OpenConversation{ConversationID: conversationID}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case envelope := <-received:
		if envelope.Event != EventOpenConversation {
			t.Errorf("unexpected event: %s", envelope.Event)
		}
		var payload OpenConversation
		if err := codec.Unmarshal(envelope.Payload, &payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if payload.ConversationID != conversationID {
			t.Errorf("unexpected conversation ID: %s", payload.ConversationID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for emitted frame")
	}
}

func TestConnRetryBudget(t *testing.T) {
	// A server that is already closed: every dial fails.
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	statuses := make(chan Status, 64)
	conn, err := New(Config{
		SocketURL: server.URL,
		OnStatus:  func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	conn.backoffInitial = time.Millisecond
	conn.backoffMax = 5 * time.Millisecond

	if err := conn.Start("test-token"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop()

	waitStatus(t, statuses, StatusError)

	if got := conn.Status(); got != StatusError {
		t.Errorf("expected terminal ERROR, got %s", got)
	}
}

func TestConnDropAfterConnectCountsAgainstBudget(t *testing.T) {
	// A server that accepts the websocket and drops it straight away.
	// Each short-lived connection must count as a failure and sleep
	// the backoff, ending in terminal ERROR rather than redialing in
	// a hot loop forever.
	var accepts atomic.Int64
	server := wsServer(t, func(ctx context.Context, ws *websocket.Conn) {
		accepts.Add(1)
		ws.Close(websocket.StatusInternalError, "shutting down")
	})

	statuses := make(chan Status, 64)
	conn, err := New(Config{
		SocketURL: server.URL,
		OnStatus:  func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	conn.backoffInitial = time.Millisecond
	conn.backoffMax = 5 * time.Millisecond

	if err := conn.Start("test-token"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop()

	waitStatus(t, statuses, StatusError)

	if got := accepts.Load(); got != 5 {
		t.Errorf("expected 5 dials before terminal ERROR, got %d", got)
	}
	if got := conn.Status(); got != StatusError {
		t.Errorf("expected terminal ERROR, got %s", got)
	}
}

func TestConnReconnectReplay(t *testing.T) {
	conversationID, _ := ref.ParseConversationID("conv-1")

	// The first accepted connection is dropped immediately; the second
	// stays open and records the replayed open-conversation event.
	accepts := make(chan struct{}, 4)
	replayed := make(chan Envelope, 4)
	first := true
	server := wsServer(t, func(ctx context.Context, ws *websocket.Conn) {
		accepts <- struct{}{}
		if first {
			first = false
			ws.Close(websocket.StatusGoingAway, "restart")
			return
		}
		for {
			_, frame, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var envelope Envelope
			if err := codec.Unmarshal(frame, &envelope); err != nil {
				continue
			}
			replayed <- envelope
		}
	})

	conn, err := New(Config{SocketURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	conn.backoffInitial = time.Millisecond
	conn.backoffMax = 5 * time.Millisecond
	conn.config.OnConnect = func() {
		conn.Emit(EventOpenConversation, OpenConversation{ConversationID: conversationID})
	}

	if err := conn.Start("test-token"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop()

	// Both the initial connection and the reconnect must arrive.
	for i := 0; i < 2; i++ {
		select {
		case <-accepts:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for accept %d", i+1)
		}
	}

	select {
	case envelope := <-replayed:
		if envelope.Event != EventOpenConversation {
			t.Errorf("unexpected replayed event: %s", envelope.Event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for open-conversation replay")
	}
}
