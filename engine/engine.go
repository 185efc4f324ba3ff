// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/lib/codec"
	"github.com/bureau-foundation/parley/lib/ref"
	"github.com/bureau-foundation/parley/wire"
)

const defaultPageSize = 50

// Fetcher is the slice of the REST API the engine consumes: snapshot
// fetches only. *api.Session satisfies it.
type Fetcher interface {
	Conversations(ctx context.Context) ([]api.ConversationSummary, error)
	ConversationMessages(ctx context.Context, conversationID ref.ConversationID, limit int) ([]api.MessageRecord, error)
}

// link is the engine's view of the push connection. *wire.Conn
// satisfies it; tests substitute an in-memory fake.
type link interface {
	Subscribe(event string, handler wire.Handler)
	Emit(event string, payload any) error
	Start(token string) error
	Stop()
	Status() wire.Status
}

// Config configures an Engine.
type Config struct {
	// Fetcher performs snapshot fetches. Required.
	Fetcher Fetcher

	// LocalUser is the authenticated user's id, used to suppress
	// unread marking for self-authored events. Required.
	LocalUser ref.UserID

	// SocketURL is the websocket endpoint for the push connection.
	// Required.
	SocketURL string

	// PageSize is the message snapshot page size. Defaults to 50.
	PageSize int

	// OnChange, if set, is called after every read-model mutation.
	// Called without internal locks held; reading the engine's
	// snapshot accessors from inside is safe.
	OnChange func()

	// OnStatus, if set, observes connection status transitions.
	OnStatus func(wire.Status)

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient, if set, is used for the websocket dial.
	HTTPClient *http.Client
}

// Engine wires the directory, the active feed, the tracker, and the
// push connection together behind a single lock. All exported methods
// are safe for concurrent use; every mutation runs to completion
// before the next is processed.
type Engine struct {
	config   Config
	logger   *slog.Logger
	pageSize int
	link     link

	mu        sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	status    wire.Status
	tracker   *tracker
	directory *directory
	feed      *feed

	// Generation tags for in-flight snapshot loads. A load result
	// whose generation no longer matches is stale and discarded.
	directoryGen uint64
	feedGen      uint64

	// feedCancel cancels the in-flight message fetch for the open
	// conversation. Closing or switching conversations aborts the
	// HTTP request rather than letting it run to a discarded result.
	feedCancel context.CancelFunc

	directoryErr error
	feedErr      error
}

// New creates an Engine with its own wire connection. Call Start with
// the session's bearer token to connect.
func New(config Config) (*Engine, error) {
	if config.SocketURL == "" {
		return nil, fmt.Errorf("engine: socket URL is required")
	}

	engine, err := newWithLink(config, nil)
	if err != nil {
		return nil, err
	}

	conn, err := wire.New(wire.Config{
		SocketURL:  config.SocketURL,
		OnStatus:   engine.handleStatus,
		OnConnect:  engine.handleConnect,
		Logger:     engine.logger,
		HTTPClient: config.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: creating connection: %w", err)
	}
	engine.setLink(conn)
	return engine, nil
}

// newWithLink builds the engine around an existing link. The link may
// be nil; New installs the wire connection via setLink afterward.
func newWithLink(config Config, l link) (*Engine, error) {
	if config.Fetcher == nil {
		return nil, fmt.Errorf("engine: fetcher is required")
	}
	if config.LocalUser.IsZero() {
		return nil, fmt.Errorf("engine: local user is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	tracker := &tracker{}
	engine := &Engine{
		config:    config,
		logger:    logger,
		pageSize:  pageSize,
		status:    wire.StatusDisconnected,
		tracker:   tracker,
		directory: newDirectory(config.LocalUser, tracker),
	}
	if l != nil {
		engine.setLink(l)
	}
	return engine, nil
}

// setLink installs the push connection and registers the inbound
// event handlers.
func (e *Engine) setLink(l link) {
	e.link = l
	l.Subscribe(wire.EventNewMessage, e.onNewMessage)
	l.Subscribe(wire.EventConversationUpdated, e.onConversationUpdated)
	l.Subscribe(wire.EventNewConversation, e.onNewConversation)
}

// Start opens the push connection with the given bearer token. The
// directory snapshot load is driven by the connection reaching
// CONNECTED, so state fills in as soon as the transport is up.
func (e *Engine) Start(token string) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine: already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	if err := e.link.Start(token); err != nil {
		e.mu.Lock()
		e.started = false
		e.cancel()
		e.mu.Unlock()
		return fmt.Errorf("engine: starting connection: %w", err)
	}
	return nil
}

// Stop tears the engine down: in-flight snapshot loads are cancelled,
// the connection is closed, and no handler fires after Stop returns.
// A session change (logout, credential rotation) is a full Stop/Start
// cycle — there is no credential hot-swap, so no event is ever
// processed under a stale identity.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.cancel()
	// Bump generations so any load that slips past the context cancel
	// check is still discarded.
	e.directoryGen++
	e.feedGen++
	e.mu.Unlock()

	e.link.Stop()
}

// ConnectionStatus returns the current push connection status.
func (e *Engine) ConnectionStatus() wire.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Conversations returns the ordered conversation list with unread
// flags: the directory read model.
func (e *Engine) Conversations() []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.snapshot()
}

// SearchConversations returns a filtered projection of the directory
// by case-insensitive substring match on display names. The canonical
// list is untouched.
func (e *Engine) SearchConversations(term string) []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.search(term)
}

// Messages returns the ordered feed of the open conversation,
// newest-first, or nil when no conversation is open.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.feed == nil {
		return nil
	}
	return e.feed.snapshot()
}

// OpenID returns the id of the open conversation, zero when none.
func (e *Engine) OpenID() ref.ConversationID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.current()
}

// DirectoryError returns the most recent directory load failure, nil
// after a successful load. Existing directory state is never
// corrupted by a failed load; RefreshDirectory retries.
func (e *Engine) DirectoryError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directoryErr
}

// FeedError returns the most recent message load failure for the open
// conversation, nil after a successful load.
func (e *Engine) FeedError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feedErr
}

// OpenConversation makes conversationID the open conversation:
// records it in the tracker (implicitly closing any previously open
// one), clears its unread flag, notifies the server, and loads the
// message snapshot into a fresh feed. Reopening the open conversation
// reloads its feed.
func (e *Engine) OpenConversation(conversationID ref.ConversationID) error {
	if conversationID.IsZero() {
		return fmt.Errorf("engine: conversation id is required")
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine: not started")
	}
	previous := e.tracker.activate(conversationID)
	e.directory.markOpened(conversationID)
	e.feed = newFeed(conversationID, e.config.LocalUser)
	e.feedErr = nil
	e.feedGen++
	generation := e.feedGen
	if e.feedCancel != nil {
		e.feedCancel()
	}
	var ctx context.Context
	ctx, e.feedCancel = context.WithCancel(e.ctx)
	e.mu.Unlock()

	if !previous.IsZero() {
		if err := e.link.Emit(wire.EventCloseConversation, wire.OpenConversation{ConversationID: previous}); err != nil {
			e.logger.Debug("close notification not delivered", "conversation_id", previous, "error", err)
		}
	}
	if err := e.link.Emit(wire.EventOpenConversation, wire.OpenConversation{ConversationID: conversationID}); err != nil {
		// The open state is replayed on reconnect, so a failed
		// notification here heals itself.
		e.logger.Debug("open notification not delivered", "conversation_id", conversationID, "error", err)
	}

	e.notify()
	go e.loadFeed(ctx, conversationID, generation)
	return nil
}

// CloseConversation closes conversationID if it is the open
// conversation: the feed is discarded, its in-flight load is
// cancelled, and the server is notified. Closing a conversation that
// is not open is a no-op.
func (e *Engine) CloseConversation(conversationID ref.ConversationID) {
	e.mu.Lock()
	if !e.tracker.deactivate(conversationID) {
		e.mu.Unlock()
		return
	}
	e.feed = nil
	e.feedErr = nil
	e.feedGen++
	if e.feedCancel != nil {
		e.feedCancel()
		e.feedCancel = nil
	}
	e.mu.Unlock()

	if err := e.link.Emit(wire.EventCloseConversation, wire.OpenConversation{ConversationID: conversationID}); err != nil {
		e.logger.Debug("close notification not delivered", "conversation_id", conversationID, "error", err)
	}
	e.notify()
}

// SendMessage sends to the open conversation: a pending entry appears
// at the feed head immediately, and the intent goes out over the
// connection. If the send cannot be forwarded — most commonly because
// the connection is down — the entry is marked Failed and retryable
// right away; nothing is ever left pending indefinitely. Returns the
// message's local id.
func (e *Engine) SendMessage(content string, kind api.MessageKind, attachment *api.Attachment) (string, error) {
	e.mu.Lock()
	feed := e.feed
	if feed == nil {
		e.mu.Unlock()
		return "", fmt.Errorf("engine: no open conversation")
	}
	message := feed.stage(content, kind, attachment)
	// Directory recency moves through the same merge path as server
	// push updates. The sender is the local user, so unread stays off.
	e.directory.applyPushUpdate(wire.ConversationUpdated{
		ConversationID:  feed.conversationID,
		LastMessageText: content,
		LastMessageAt:   message.CreatedAt,
		SenderID:        e.config.LocalUser,
	})
	localID := message.LocalID
	conversationID := feed.conversationID
	e.mu.Unlock()
	e.notify()

	err := e.link.Emit(wire.EventSendMessage, wire.SendMessage{
		ConversationID: conversationID,
		Content:        content,
		Kind:           kind,
		Attachment:     attachment,
	})
	if err != nil {
		e.mu.Lock()
		if e.feed == feed {
			feed.fail(message, true)
		}
		e.mu.Unlock()
		e.logger.Warn("send failed", "conversation_id", conversationID, "local_id", localID, "error", err)
		e.notify()
	}
	return localID, nil
}

// RetryMessage re-sends a failed message by local id. Only messages
// in the Failed state with the retryable flag are eligible.
func (e *Engine) RetryMessage(localID string) error {
	e.mu.Lock()
	feed := e.feed
	if feed == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: no open conversation")
	}
	message := feed.retryable(localID)
	if message == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: message %s is not retryable", localID)
	}
	conversationID := feed.conversationID
	content := message.Content
	kind := message.Kind
	attachment := message.Attachment
	e.mu.Unlock()
	e.notify()

	err := e.link.Emit(wire.EventSendMessage, wire.SendMessage{
		ConversationID: conversationID,
		Content:        content,
		Kind:           kind,
		Attachment:     attachment,
	})
	if err != nil {
		e.mu.Lock()
		if e.feed == feed {
			feed.fail(message, true)
		}
		e.mu.Unlock()
		e.notify()
		return fmt.Errorf("engine: retry failed: %w", err)
	}
	return nil
}

// RefreshDirectory reloads the conversation snapshot. Used for
// explicit retry after a load failure, and by management flows
// (invites, membership changes) that alter directory state through
// the REST API.
func (e *Engine) RefreshDirectory() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.directoryGen++
	generation := e.directoryGen
	ctx := e.ctx
	e.mu.Unlock()

	go e.loadDirectory(ctx, generation)
}

// handleConnect runs every time the connection reaches CONNECTED. It
// replays the open-conversation subscription, which the server forgets
// when the transport drops, and (re)loads the directory snapshot plus
// the open feed. The feed reload picks up messages pushed while the
// transport was down; the lower-bound merge keeps pending and
// confirmed local state intact.
func (e *Engine) handleConnect() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	open := e.tracker.current()
	e.directoryGen++
	directoryGeneration := e.directoryGen
	ctx := e.ctx

	var feedCtx context.Context
	var feedGeneration uint64
	if !open.IsZero() && e.feed != nil {
		e.feedGen++
		feedGeneration = e.feedGen
		if e.feedCancel != nil {
			e.feedCancel()
		}
		feedCtx, e.feedCancel = context.WithCancel(ctx)
	}
	e.mu.Unlock()

	if !open.IsZero() {
		if err := e.link.Emit(wire.EventOpenConversation, wire.OpenConversation{ConversationID: open}); err != nil {
			e.logger.Warn("open replay failed", "conversation_id", open, "error", err)
		}
	}
	go e.loadDirectory(ctx, directoryGeneration)
	if feedCtx != nil {
		go e.loadFeed(feedCtx, open, feedGeneration)
	}
}

func (e *Engine) handleStatus(status wire.Status) {
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()

	if e.config.OnStatus != nil {
		e.config.OnStatus(status)
	}
	e.notify()
}

// loadDirectory fetches the conversation snapshot and merges it,
// unless the result has gone stale (generation mismatch) or the
// engine stopped.
func (e *Engine) loadDirectory(ctx context.Context, generation uint64) {
	summaries, err := e.config.Fetcher.Conversations(ctx)

	e.mu.Lock()
	if !e.started || generation != e.directoryGen {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.directoryErr = err
		e.mu.Unlock()
		e.logger.Error("directory load failed", "error", err)
		e.notify()
		return
	}
	e.directoryErr = nil
	e.directory.seed(summaries)
	e.mu.Unlock()

	e.logger.Info("directory loaded", "conversations", len(summaries))
	e.notify()
}

// loadFeed fetches the newest message page for an opened conversation
// and merges it into the feed, unless the result has gone stale.
func (e *Engine) loadFeed(ctx context.Context, conversationID ref.ConversationID, generation uint64) {
	records, err := e.config.Fetcher.ConversationMessages(ctx, conversationID, e.pageSize)

	e.mu.Lock()
	if !e.started || generation != e.feedGen || e.feed == nil {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.feedErr = err
		e.mu.Unlock()
		e.logger.Error("feed load failed", "conversation_id", conversationID, "error", err)
		e.notify()
		return
	}
	e.feedErr = nil
	e.feed.seed(records)
	e.mu.Unlock()

	e.notify()
}

// onNewMessage handles the inbound new-message event: the open feed
// merges it (dedup and pending reconciliation), and the directory
// gets a recency update through the standard merge path.
func (e *Engine) onNewMessage(payload codec.RawMessage) {
	var push wire.NewMessage
	if err := codec.Unmarshal(payload, &push); err != nil {
		e.logger.Warn("malformed new-message event", "error", err)
		return
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	if e.feed != nil && e.feed.conversationID == push.ConversationID {
		e.feed.applyPush(push)
	}
	e.directory.applyPushUpdate(wire.ConversationUpdated{
		ConversationID:  push.ConversationID,
		LastMessageText: push.Content,
		LastMessageAt:   push.CreatedAt,
		SenderID:        push.SenderID,
	})
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) onConversationUpdated(payload codec.RawMessage) {
	var update wire.ConversationUpdated
	if err := codec.Unmarshal(payload, &update); err != nil {
		e.logger.Warn("malformed conversation-updated event", "error", err)
		return
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.directory.applyPushUpdate(update)
	e.mu.Unlock()
	e.notify()
}

// onNewConversation triggers a full directory reload: group
// membership and display metadata cannot be derived from the event
// payload alone.
func (e *Engine) onNewConversation(payload codec.RawMessage) {
	var created wire.NewConversation
	if err := codec.Unmarshal(payload, &created); err != nil {
		e.logger.Warn("malformed new-conversation event", "error", err)
		return
	}
	e.logger.Info("new conversation announced", "conversation_id", created.ConversationID)
	e.RefreshDirectory()
}

func (e *Engine) notify() {
	if e.config.OnChange != nil {
		e.config.OnChange()
	}
}
