// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/engine"
	"github.com/bureau-foundation/parley/wire"
)

// readModelChanged is sent by the engine's OnChange callback: the
// conversation list or the open feed changed and the view must be
// re-rendered from fresh snapshots.
type readModelChanged struct{}

// statusChanged carries a connection status transition.
type statusChanged struct {
	status wire.Status
}

type focusArea int

const (
	focusList focusArea = iota
	focusCompose
	focusSearch
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	listStyle     = lipgloss.NewStyle().Width(32).PaddingRight(1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	unreadStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	senderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

type model struct {
	engine      *engine.Engine
	displayName string

	conversations []engine.Conversation
	messages      []engine.Message
	status        wire.Status

	focus    focusArea
	cursor   int
	search   textinput.Model
	compose  textinput.Model
	feedView viewport.Model
	spin     spinner.Model
	loading  bool

	width  int
	height int
	notice string
}

func newModel(syncEngine *engine.Engine, displayName string) model {
	search := textinput.New()
	search.Placeholder = "search conversations"
	search.CharLimit = 64

	compose := textinput.New()
	compose.Placeholder = "type a message"
	compose.CharLimit = 2000

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return model{
		engine:      syncEngine,
		displayName: displayName,
		status:      syncEngine.ConnectionStatus(),
		search:      search,
		compose:     compose,
		feedView:    viewport.New(0, 0),
		spin:        spin,
		loading:     true,
	}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.feedView.Width = max(20, m.width-34)
		m.feedView.Height = max(4, m.height-6)
		m.refresh()
		return m, nil

	case readModelChanged:
		m.refresh()
		return m, nil

	case statusChanged:
		m.status = message.status
		return m, nil

	case spinner.TickMsg:
		var command tea.Cmd
		m.spin, command = m.spin.Update(message)
		return m, command

	case tea.KeyMsg:
		return m.handleKey(message)
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSearch:
		switch key.Type {
		case tea.KeyEsc:
			m.focus = focusList
			m.search.SetValue("")
			m.search.Blur()
			m.refresh()
		case tea.KeyEnter:
			m.focus = focusList
			m.search.Blur()
		default:
			var command tea.Cmd
			m.search, command = m.search.Update(key)
			m.refresh()
			return m, command
		}
		return m, nil

	case focusCompose:
		switch key.Type {
		case tea.KeyEsc:
			m.focus = focusList
			m.compose.Blur()
		case tea.KeyEnter:
			m.sendMessage()
		default:
			var command tea.Cmd
			m.compose, command = m.compose.Update(key)
			return m, command
		}
		return m, nil
	}

	// List focus.
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.focus = focusSearch
		return m, m.search.Focus()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	case "enter", "l":
		m.openSelected()
		m.focus = focusCompose
		return m, m.compose.Focus()
	case "x":
		if open := m.engine.OpenID(); !open.IsZero() {
			m.engine.CloseConversation(open)
			m.refresh()
		}
	case "r":
		m.engine.RefreshDirectory()
	}
	return m, nil
}

func (m *model) openSelected() {
	if m.cursor >= len(m.conversations) {
		return
	}
	selected := m.conversations[m.cursor]
	m.loading = true
	if err := m.engine.OpenConversation(selected.ID); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.refresh()
}

func (m *model) sendMessage() {
	content := strings.TrimSpace(m.compose.Value())
	if content == "" {
		return
	}
	if _, err := m.engine.SendMessage(content, api.MessageText, nil); err != nil {
		m.notice = err.Error()
		return
	}
	m.compose.SetValue("")
	m.refresh()
}

// refresh re-reads the engine snapshots and re-renders the feed
// viewport.
func (m *model) refresh() {
	m.conversations = m.engine.SearchConversations(m.search.Value())
	if m.cursor >= len(m.conversations) {
		m.cursor = max(0, len(m.conversations)-1)
	}
	m.messages = m.engine.Messages()
	if m.messages != nil {
		m.loading = false
	}
	m.feedView.SetContent(m.renderFeed())
	m.feedView.GotoTop()
}

func (m model) View() string {
	list := m.renderList()
	feed := m.feedView.View()
	body := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list), feed)

	var sections []string
	sections = append(sections, titleStyle.Render("parley — "+m.displayName))
	sections = append(sections, body)
	sections = append(sections, m.compose.View())
	sections = append(sections, m.renderStatus())
	return strings.Join(sections, "\n")
}

func (m model) renderList() string {
	var builder strings.Builder
	if m.focus == focusSearch || m.search.Value() != "" {
		builder.WriteString(m.search.View())
		builder.WriteString("\n")
	}
	for index, conversation := range m.conversations {
		label := conversation.DisplayName
		if conversation.Unread {
			label = unreadStyle.Render("● " + label)
		} else {
			label = "  " + label
		}
		if index == m.cursor {
			label = selectedStyle.Render("> ") + label
		} else {
			label = "  " + label
		}
		builder.WriteString(label)
		builder.WriteString("\n")
		if conversation.LastMessageText != "" {
			builder.WriteString(dimStyle.Render("    " + truncate(conversation.LastMessageText, 26)))
			builder.WriteString("\n")
		}
	}
	if len(m.conversations) == 0 {
		builder.WriteString(dimStyle.Render("no conversations"))
	}
	return builder.String()
}

func (m model) renderFeed() string {
	if m.engine.OpenID().IsZero() {
		return dimStyle.Render("open a conversation (enter)")
	}
	if m.loading {
		return m.spin.View() + " loading messages"
	}

	var builder strings.Builder
	for _, message := range m.messages {
		builder.WriteString(m.renderMessage(message))
		builder.WriteString("\n")
	}
	if len(m.messages) == 0 {
		builder.WriteString(dimStyle.Render("no messages yet"))
	}
	return builder.String()
}

func (m model) renderMessage(message engine.Message) string {
	sender := senderStyle.Render(message.SenderID.String())
	marker := ""
	switch message.State {
	case engine.Pending:
		marker = dimStyle.Render(" …")
	case engine.Failed:
		if message.Retryable {
			marker = failedStyle.Render(" ✗ failed (retryable)")
		} else {
			marker = failedStyle.Render(" ✗ failed")
		}
	}
	body := message.Content
	if message.Kind != api.MessageText && message.Attachment != nil {
		body = fmt.Sprintf("[%s] %s", strings.ToLower(string(message.Kind)), message.Attachment.Name)
	}
	timestamp := dimStyle.Render(message.CreatedAt.Format("15:04"))
	return fmt.Sprintf("%s %s%s\n  %s", sender, timestamp, marker, body)
}

func (m model) renderStatus() string {
	parts := []string{"connection: " + m.status.String()}
	if m.notice != "" {
		parts = append(parts, failedStyle.Render(m.notice))
	}
	parts = append(parts, dimStyle.Render("enter open · / search · x close · r refresh · q quit"))
	return statusStyle.Render(strings.Join(parts, "   "))
}

// truncate shortens text to limit runes. Counting runes, not bytes,
// keeps a multi-byte character at the cut point intact.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
