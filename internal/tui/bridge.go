package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/on-cure/oncare/internal/realtime"
	"github.com/on-cure/oncare/internal/session"
)

// NavigateMsg asks the model to change route.
type NavigateMsg struct {
	Navigation session.Navigation
}

// PushMsg carries a realtime message into the program.
type PushMsg struct {
	Message realtime.Message
}

// Bridge forwards provider navigations and realtime messages into a running
// program. Anything sent before Attach is queued and flushed on attach, so
// the bridge can be handed to the provider before the program exists.
type Bridge struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []tea.Msg
}

// NewBridge returns a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach starts delivering to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.AttachFunc(p.Send)
}

// AttachFunc starts delivering to send.
func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	queued := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, msg := range queued {
		send(msg)
	}
}

// Detach stops delivery; later messages are dropped.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.send = func(tea.Msg) {}
	b.mu.Unlock()
}

func (b *Bridge) deliver(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	if send == nil {
		b.pending = append(b.pending, msg)
	}
	b.mu.Unlock()

	if send != nil {
		send(msg)
	}
}

// Navigate implements session.Navigator.
func (b *Bridge) Navigate(n session.Navigation) {
	b.deliver(NavigateMsg{Navigation: n})
}

// HandleMessage is a realtime.Handler.
func (b *Bridge) HandleMessage(m realtime.Message) {
	b.deliver(PushMsg{Message: m})
}

var _ session.Navigator = (*Bridge)(nil)
