// Package ui provides the Haiku+ terminal browser built on Bubble Tea.
//
// # Overview
//
// The browser shows the haiku stream, one haiku at a time in detail, and a
// form for writing new ones. It reads everything it renders from a
// state.Store and sends every request through a haiku.Facade; it never
// touches the network on its own goroutine.
//
// # Architecture
//
// The package follows The Elm Architecture (TEA) pattern via Bubble Tea:
//
//   - Model: application state (view, selection, snapshot, compose form)
//   - Update: handles messages (keys, ticks, snapshots, dispatched callbacks)
//   - View: renders header, body viewport and footer
//
// # Views
//
//   - Stream: the haiku list for the current mode (everyone or friends)
//   - Detail: one haiku rendered as a card with author, date and votes
//   - Compose: a four-field form for a new haiku
//
// The help overlay sits above all three and closes on any key.
//
// # Data Flow
//
// Actions go through the Facade, whose queue delivers callbacks through a
// ProgramDispatcher:
//
//	key press ──→ Facade (queue worker) ──→ ProgramDispatcher.Post
//	                                              │ p.Send(dispatchMsg)
//	                                              ↓
//	                                   Update runs the callback
//	                                   callback writes state.Store
//	                                   Update re-reads the snapshot
//
// Callbacks therefore run on the UI goroutine. A background poller (see
// package app) also writes the store; a tick re-reads the snapshot every
// PollTick (default one second).
//
// Callbacks posted before Run attaches the program are held by the
// dispatcher and flushed on Attach, so work queued during start-up is not
// lost.
//
// # Message Types
//
//   - tickMsg: periodic snapshot refresh
//   - snapshotMsg: a fresh copy of the store
//   - dispatchMsg: a facade callback to run on the UI goroutine
//   - tea.KeyMsg, tea.WindowSizeMsg: input and resize
//
// # Stream Modes
//
// Pressing f switches between everyone and friends. The store drops the old
// stream at once, the model cancels any stream fetch still queued under
// haiku.TagStream, and a new fetch starts. A late answer for the old mode is
// ignored by the store.
//
// # Votes
//
// Votes are applied to the store before the request is sent. The server's
// reply replaces the count, and a failed vote restores the original haiku.
// The footer reports "Vote not counted" when the reply did not raise the
// count.
//
// # Compose
//
// The form has fields for the title and the three lines. Enter moves to the
// next field and posts from the last one; ctrl+s posts from anywhere.
// Validation runs before anything is queued: missing fields stay on the form
// with the error shown. A posted haiku is prepended to the stream when the
// server answers.
//
// # Key Bindings
//
// Global:
//   - q, ctrl+c: quit
//   - ?: toggle help
//   - T: cycle theme
//
// Stream and detail:
//   - j/k, up/down: move selection
//   - g/G: top and bottom
//   - enter: show the selected haiku
//   - esc: back to the stream
//   - v: vote
//   - c: write a haiku
//   - f: toggle everyone/friends
//   - r: refresh now
//
// Compose:
//   - tab/shift+tab: next and previous field
//   - ctrl+s: post
//   - esc: discard and return
//
// # Themes
//
// Nightfox (default), Kanagawa and Slate. Each theme's Styles derive every
// lipgloss style from a small palette; BgStyle keeps the header background
// continuous across styled segments.
//
// # Rendering Outside the Browser
//
// RenderHaiku is exported so the CLI's show command prints the same card the
// detail view shows.
//
// # Usage
//
//	d := &ui.ProgramDispatcher{}
//	rt, _ := app.Open(app.Options{Dispatcher: d})
//	err := ui.Run(ui.Options{
//		Context:    ctx,
//		Facade:     rt.Facade,
//		Store:      rt.State,
//		Dispatcher: d,
//	})
package ui
