package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/capitalize-ai/booking-assistant/internal/dialogue"
	chatmodel "github.com/capitalize-ai/booking-assistant/internal/model"
)

const (
	resetCommand = "/reset"
	quitCommand  = "/quit"
)

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	errorText lipgloss.Style
	candidate lipgloss.Style
	hint      lipgloss.Style
	status    lipgloss.Style
	panel     lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(mint).
			Padding(0, 1),
		user:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorText: lipgloss.NewStyle().Foreground(pink),
		candidate: lipgloss.NewStyle().PaddingLeft(2),
		hint:      lipgloss.NewStyle().Foreground(muted).Italic(true),
		status:    lipgloss.NewStyle().Foreground(muted),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
	}
}

// turnDoneMsg reports the end of a Submit or SelectCandidate call. seq
// identifies the turn that produced it.
type turnDoneMsg struct {
	seq   int
	reply *chatmodel.Message
	err   error
}

type model struct {
	ctx  context.Context
	ctrl *dialogue.Controller
	user string

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme

	// turnSeq advances on every started turn and on reset; results of
	// older turns are ignored.
	turnSeq int
	waiting bool
	status  string
	width   int
	height  int
}

func newModel(ctx context.Context, ctrl *dialogue.Controller, user string) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask to book, modify or cancel a room. /reset starts over."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	return model{
		ctx:      ctx,
		ctrl:     ctrl,
		user:     user,
		input:    input,
		timeline: timeline,
		spinner:  sp,
		theme:    newTheme(),
		status:   "ready",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case turnDoneMsg:
		if msg.seq != m.turnSeq {
			m.renderTimeline()
			break
		}
		m.waiting = false
		switch {
		case errors.Is(msg.err, dialogue.ErrBusy):
			m.status = "still waiting for the previous reply"
		case errors.Is(msg.err, dialogue.ErrInvalidSelection):
			m.status = "that booking is no longer selectable"
		case msg.err != nil:
			m.status = "error: " + msg.err.Error()
		case msg.reply == nil:
			m.status = "ready"
		case msg.reply.IsError:
			m.status = "request failed"
		default:
			m.status = "ready"
		}
		m.renderTimeline()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			cmd := m.submit(m.input.Value())
			m.renderTimeline()
			return m, cmd
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit interprets one line of input and returns the command that runs it.
func (m *model) submit(raw string) tea.Cmd {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return nil
	case text == quitCommand:
		return tea.Quit
	case text == resetCommand:
		m.input.Reset()
		m.ctrl.Reset(m.ctx)
		m.turnSeq++
		m.waiting = false
		m.status = "conversation reset"
		return nil
	case m.waiting:
		m.status = "still waiting for the previous reply"
		return nil
	}

	m.input.Reset()
	m.turnSeq++
	m.waiting = true
	m.status = "waiting for the assistant"

	ctx, ctrl, seq := m.ctx, m.ctrl, m.turnSeq
	if id, ordinal, ok := selectionFor(ctrl.State(), text); ok {
		return func() tea.Msg {
			reply, err := ctrl.SelectCandidate(ctx, id, ordinal)
			return turnDoneMsg{seq: seq, reply: reply, err: err}
		}
	}
	return func() tea.Msg {
		reply, err := ctrl.Submit(ctx, raw)
		return turnDoneMsg{seq: seq, reply: reply, err: err}
	}
}

// selectionFor reports whether text is a 1-based pick from the list offered
// by the latest assistant message.
func selectionFor(state chatmodel.ConversationState, text string) (string, int, bool) {
	last := state.LastAssistant()
	if last == nil || !last.OffersSelection() {
		return "", 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(last.BookingList) {
		return "", 0, false
	}
	return last.ID, n - 1, true
}

func (m *model) resize() {
	headerHeight := 1
	footerHeight := 4
	m.timeline.Width = max(20, m.width-2)
	m.timeline.Height = max(3, m.height-headerHeight-footerHeight-2)
	m.input.Width = max(20, m.width-6)
}

func (m *model) renderTimeline() {
	state := m.ctrl.State()
	width := max(20, m.timeline.Width-2)

	var b strings.Builder
	for i, msg := range state.Messages {
		b.WriteString(m.renderMessage(msg, width))
		if i < len(state.Messages)-1 {
			b.WriteString("\n\n")
		}
	}
	m.timeline.SetContent(b.String())
	m.timeline.GotoBottom()
}

func (m model) renderMessage(msg chatmodel.Message, width int) string {
	var b strings.Builder
	stamp := msg.Timestamp.Format("15:04")
	if msg.Sender == chatmodel.SenderUser {
		b.WriteString(m.theme.user.Render(stamp + " " + m.user))
	} else {
		b.WriteString(m.theme.assistant.Render(stamp + " assistant"))
	}
	b.WriteString("\n")

	body := lipgloss.NewStyle().Width(width)
	if msg.IsError {
		body = body.Inherit(m.theme.errorText)
	}
	b.WriteString(body.Render(msg.Text))

	for i, c := range msg.BookingList {
		b.WriteString("\n")
		b.WriteString(m.theme.candidate.Render(fmt.Sprintf("%d. %s", i+1, describeCandidate(c))))
	}
	if msg.OffersSelection() {
		b.WriteString("\n")
		b.WriteString(m.theme.hint.Render("type a number to choose"))
	}
	if len(msg.MissingParameters) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.hint.Render("still needed: " + strings.Join(msg.MissingParameters, ", ")))
	}
	if msg.RequiresConfirmation {
		b.WriteString("\n")
		b.WriteString(m.theme.hint.Render("answer yes or no"))
	}
	return b.String()
}

func describeCandidate(c chatmodel.BookingCandidate) string {
	parts := []string{c.RoomName}
	if c.Date != "" {
		parts = append(parts, c.Date)
	}
	if c.StartTime != "" || c.EndTime != "" {
		parts = append(parts, c.StartTime+"-"+c.EndTime)
	}
	s := strings.Join(parts, " ")
	if c.Purpose != "" {
		s += " · " + c.Purpose
	}
	if c.ParticipantCount > 0 {
		s += fmt.Sprintf(" (%d people)", c.ParticipantCount)
	}
	return s
}

func (m model) View() string {
	header := m.theme.header.Render("Room booking assistant · " + m.ctrl.Mode().String() + " mode")

	status := m.theme.status.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.theme.panel.Render(m.timeline.View()),
		status,
		m.input.View(),
	)
}
