package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/profile"
)

// confirmRequest is a question raised by a background operation. The
// operation blocks until an answer is sent on reply.
type confirmRequest struct {
	question string
	reply    chan bool
}

// noticeMsg is a user-facing message from a background operation
type noticeMsg struct {
	level profile.Level
	text  string
}

// overlayUpdateMsg reports an overlay phase change
type overlayUpdateMsg overlay.Update

// profileEventMsg reports a profile manager event
type profileEventMsg profile.Event

// Bridge carries confirmations, notices and overlay updates from worker
// goroutines into the Bubble Tea event loop. It implements
// profile.Confirmer and profile.Notifier.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}
}

// NewBridge creates a Bridge
func NewBridge() *Bridge {
	return &Bridge{
		msgs: make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
}

// Confirm asks the user and waits for the answer. It answers "no" once the
// UI has shut down.
func (b *Bridge) Confirm(question string) bool {
	req := confirmRequest{question: question, reply: make(chan bool, 1)}
	select {
	case b.msgs <- req:
	case <-b.done:
		return false
	}
	select {
	case answer := <-req.reply:
		return answer
	case <-b.done:
		return false
	}
}

// Notify queues a notice, dropping it when the queue is full
func (b *Bridge) Notify(level profile.Level, message string) {
	b.send(noticeMsg{level: level, text: message})
}

// OverlayUpdate forwards controller updates; pass it to overlay.Build
func (b *Bridge) OverlayUpdate(u overlay.Update) {
	b.send(overlayUpdateMsg(u))
}

// ProfileEvent forwards manager events; pass it to Manager.OnChange
func (b *Bridge) ProfileEvent(ev profile.Event) {
	b.send(profileEventMsg(ev))
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	default:
		// Channel full, skip message
	}
}

// Close releases any operation waiting for an answer
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

func (b *Bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.msgs:
			return msg
		case <-b.done:
			return nil
		}
	}
}
