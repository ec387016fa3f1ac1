// Package state provides thread-safe client-side state for Haiku+.
//
// # Overview
//
// The Store shares the signed-in user and the latest haiku stream between
// the background poller, facade callbacks and the UI. It is the one place
// where network results meet rendering: writers call the mutation methods,
// readers take a Snapshot.
//
// # Architecture
//
// Several producers, one consumer:
//
//	Producers:                      Consumer (UI):
//	┌──────────────────────┐       ┌──────────────────┐
//	│ poller: Update()     │       │                  │
//	│ sign-in: SetUser()   │──────→│ store.Snapshot() │
//	│ vote: ApplyVote()    │(mutex)│      ↓           │
//	│ reply: UpdateHaiku() │       │  render          │
//	│ post: Prepend()      │       │                  │
//	└──────────────────────┘       └──────────────────┘
//
// The poller runs on its own goroutine. Facade callbacks run wherever the
// queue's dispatcher delivers them: inline on a worker for the CLI, on the
// Bubble Tea goroutine for the browser. The Store does not care which.
//
// # Core Types
//
// Store:
//   - Guards a single Snapshot with a sync.RWMutex
//   - Every mutation holds the write lock for a copy, never across I/O
//
// Snapshot:
//   - User: the signed-in user, nil when signed out
//   - Mode: the stream filter (everyone or friends)
//   - Stream, HasStream: the latest haikus and whether any fetch succeeded
//   - LastUpdated, LastError, ConsecutiveFailures: refresh bookkeeping
//
// # Update Semantics
//
// Update(mode, stream, err) follows a keep-last-good rule:
//
//	// Success: replace the stream, reset failures
//	store.Update(mode, stream, nil)
//	→ snapshot.Stream = stream
//	→ snapshot.HasStream = true
//	→ snapshot.LastError = nil
//	→ snapshot.ConsecutiveFailures = 0
//
//	// Error: keep the old stream, record the error
//	store.Update(mode, nil, err)
//	→ snapshot.Stream = <unchanged>
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
// Two consecutive failures make IsOffline report true; the UI shows an
// offline marker but keeps the last stream on screen.
//
// # Stream Modes
//
// SetMode switches the filter and empties the stream, so the UI never shows
// friends' haikus under the "everyone" heading. Update ignores results for
// a mode other than the current one: a slow response for the old filter
// cannot overwrite the view after the user switched.
//
//	store.SetMode(haiku.StreamFriends)      // stream cleared
//	store.Update(haiku.StreamAll, old, nil)  // dropped
//	store.Update(haiku.StreamFriends, s, nil) // shown
//
// # Optimistic Votes
//
// ApplyVote increments a haiku's vote count immediately so the key press
// has visible effect. The count is not authoritative: the server's reply
// arrives through UpdateHaiku, and a failed vote delivers the original
// haiku, which restores the old count. The next Update replaces everything.
//
// Prepend puts a newly written haiku at the top of the stream without
// waiting for the next poll.
//
// # Sign-out
//
// Reset forgets the user and the stream but keeps the mode, so signing back
// in shows the same filter.
//
// # Defensive Copying
//
// Update, UpdateHaiku, Prepend and Snapshot copy the stream and each author
// pointer. Errors are re-wrapped so errors.Is still matches the original.
// Callers can mutate what they hold without touching the store.
//
// # Usage Example
//
//	store := &state.Store{}
//
//	// Poller goroutine:
//	haikus, err := api.FetchStream(ctx, store.Mode())
//	store.Update(mode, haikus, err)
//
//	// UI goroutine:
//	snap := store.Snapshot()
//	if snap.IsOffline() {
//		renderOffline(snap.LastError)
//	}
//
// # Testing Considerations
//
// The zero Store is ready to use and Snapshot on it returns the zero
// Snapshot (mode StreamAll, no user, no stream).
package state
