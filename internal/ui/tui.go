// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the sync daemon
package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// TUI manages the daemon terminal UI
type TUI struct {
	program  *tea.Program
	updates  chan tea.Msg
	quitChan chan struct{}

	mu      sync.Mutex
	stopped bool
}

// New creates a TUI for identity
func New(identity protocol.Identity) *TUI {
	t := &TUI{
		updates:  make(chan tea.Msg, 64),
		quitChan: make(chan struct{}, 1),
	}
	t.program = tea.NewProgram(NewModel(identity, t.quitChan), tea.WithAltScreen())
	return t
}

// Run blocks until the TUI exits
func (t *TUI) Run() error {
	go func() {
		for msg := range t.updates {
			t.program.Send(msg)
		}
	}()

	_, err := t.program.Run()
	return err
}

// Send queues an update without blocking
func (t *TUI) Send(msg tea.Msg) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	select {
	case t.updates <- msg:
	default:
	}
}

// Stop stops the TUI
func (t *TUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	t.program.Quit()
	close(t.updates)
}

// QuitChan signals when the user asks to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
