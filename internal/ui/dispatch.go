package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/haikuplus/internal/queue"
)

// dispatchMsg carries a queued callback onto the Bubble Tea event loop.
type dispatchMsg func()

// ProgramDispatcher delivers queue callbacks as Bubble Tea messages, so they
// run on the UI goroutine inside Update. Callbacks posted before Attach are
// held until a program is attached.
type ProgramDispatcher struct {
	mu      sync.Mutex
	program *tea.Program
	pending []func()
}

var _ queue.Dispatcher = (*ProgramDispatcher)(nil)

// Post implements queue.Dispatcher.
func (d *ProgramDispatcher) Post(fn func()) {
	d.mu.Lock()
	p := d.program
	if p == nil {
		d.pending = append(d.pending, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	p.Send(dispatchMsg(fn))
}

// Attach routes callbacks to p and forwards anything posted earlier.
func (d *ProgramDispatcher) Attach(p *tea.Program) {
	d.mu.Lock()
	d.program = p
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	// Send blocks until the program's event loop is running.
	go func() {
		for _, fn := range pending {
			p.Send(dispatchMsg(fn))
		}
	}()
}

func (d *ProgramDispatcher) held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
