// ABOUTME: Bubbletea model for the sync daemon TUI
// ABOUTME: Holds discovered peers and recent sync activity and renders them
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// maxActivity is how many activity lines are kept
const maxActivity = 12

// Model represents the TUI state
type Model struct {
	identity protocol.Identity

	// Service
	running    bool
	port       int
	bridgeAddr string
	startTime  time.Time

	// Peers, sorted by the registry
	peers []protocol.ConnectedDevice

	// Activity, newest last
	activity []Activity

	// Counters
	requests  int
	responses int
	data      int
	errors    int

	showDetails bool
	quitting    bool
	quitChan    chan struct{}

	width  int
	height int
}

// Activity is one line in the activity log
type Activity struct {
	At   time.Time
	Text string
	Err  bool
}

// PeersMsg replaces the peer list
type PeersMsg []protocol.ConnectedDevice

// ActivityMsg records a sync message or failure
type ActivityMsg struct {
	Message protocol.Message
	Err     error
	At      time.Time
}

// StatusMsg updates service status
type StatusMsg struct {
	Running    *bool
	Port       int
	BridgeAddr string
}

type tickMsg time.Time

// NewModel creates a model for the local identity
func NewModel(identity protocol.Identity, quitChan chan struct{}) Model {
	return Model{
		identity:  identity,
		startTime: time.Now(),
		quitChan:  quitChan,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tickEvery()
	case StatusMsg:
		m.applyStatus(msg)
	case PeersMsg:
		m.peers = []protocol.ConnectedDevice(msg)
	case ActivityMsg:
		m.applyActivity(msg)
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.quitChan != nil {
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "d":
		m.showDetails = !m.showDetails
	case "c":
		m.activity = nil
	}

	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Running != nil {
		m.running = *msg.Running
		if !m.running {
			m.peers = nil
		}
	}
	if msg.Port != 0 {
		m.port = msg.Port
	}
	if msg.BridgeAddr != "" {
		m.bridgeAddr = msg.BridgeAddr
	}
}

func (m *Model) applyActivity(msg ActivityMsg) {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}

	entry := Activity{At: at}
	switch {
	case msg.Err != nil:
		m.errors++
		entry.Text = msg.Err.Error()
		entry.Err = true
	case msg.Message != nil:
		entry.Text = Describe(msg.Message)
		switch msg.Message.Kind() {
		case protocol.KindRequest:
			m.requests++
		case protocol.KindResponse:
			m.responses++
		case protocol.KindData:
			m.data++
		}
	default:
		return
	}

	m.activity = append(m.activity, entry)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

// Describe renders a one-line summary of a sync message
func Describe(msg protocol.Message) string {
	switch v := msg.(type) {
	case protocol.SyncRequestMessage:
		return fmt.Sprintf("request %s from %s for %s", shortID(v.RequestID), v.SenderName, v.CollectionID)
	case protocol.SyncRequestResponse:
		verdict := "accepted"
		if !v.Accepted {
			verdict = "declined"
			if v.Reason != "" {
				verdict += " (" + v.Reason + ")"
			}
		}
		return fmt.Sprintf("response %s from %s: %s", shortID(v.RequestID), v.ResponderID, verdict)
	case protocol.SyncDataMessage:
		return fmt.Sprintf("data %s for %s (%d bytes)", shortID(v.RequestID), v.CollectionID, len(v.Payload))
	default:
		return msg.Kind().String()
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down sync service...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Yaba Sync"))
	b.WriteString("\n\n")

	m.renderStatus(&b)
	b.WriteString("\n")
	m.renderPeers(&b)
	b.WriteString("\n")
	m.renderActivity(&b)

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("d:Details  c:Clear  q:Quit"))

	return b.String()
}

func (m Model) renderStatus(b *strings.Builder) {
	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("Device", fmt.Sprintf("%s (%s, %s)", m.identity.Name, m.identity.ID, m.identity.Type))

	state := "Stopped"
	if m.running {
		state = fmt.Sprintf("Running on port %d", m.port)
	}
	field("Status", state)

	if m.bridgeAddr != "" {
		field("Bridge", "ws://"+m.bridgeAddr+"/events")
	}
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Messages", fmt.Sprintf("req %d  resp %d  data %d  err %d", m.requests, m.responses, m.data, m.errors))
}

func (m Model) renderPeers(b *strings.Builder) {
	b.WriteString(peerStyle.Render(fmt.Sprintf("Peers (%d)", len(m.peers))))
	b.WriteString("\n")

	if len(m.peers) == 0 {
		b.WriteString(valueStyle.Render("  No peers discovered"))
		b.WriteString("\n")
		return
	}

	for _, p := range m.peers {
		b.WriteString(fmt.Sprintf("  • %s", p.Name))
		if m.showDetails {
			b.WriteString(valueStyle.Render(fmt.Sprintf(" [%s] %s %s seen %s",
				p.ID, p.DeviceType, p.Addr(), p.LastSeen.Format("15:04:05"))))
		} else {
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s)", p.DeviceType)))
		}
		b.WriteString("\n")
	}
}

func (m Model) renderActivity(b *strings.Builder) {
	b.WriteString(peerStyle.Render("Activity"))
	b.WriteString("\n")

	if len(m.activity) == 0 {
		b.WriteString(valueStyle.Render("  Nothing yet"))
		b.WriteString("\n")
		return
	}

	for _, a := range m.activity {
		line := fmt.Sprintf("  %s %s", a.At.Format("15:04:05"), truncate(a.Text, 70))
		if a.Err {
			b.WriteString(errorStyle.Render(line))
		} else {
			b.WriteString(valueStyle.Render(line))
		}
		b.WriteString("\n")
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
