package ui

import "testing"

func TestProgramDispatcherHoldsUntilAttached(t *testing.T) {
	var d ProgramDispatcher
	d.Post(func() {})
	d.Post(func() {})
	if got := d.held(); got != 2 {
		t.Fatalf("held = %d, want 2", got)
	}
}
