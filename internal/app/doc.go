// Package app is the composition root of the Haiku+ client.
//
// # Overview
//
// Open wires configuration, the persisted session, the HTTP API, the
// request queue and the shared state store into a Runtime. Commands and the
// TUI talk to the Runtime rather than constructing those pieces themselves,
// so there is exactly one Session per process.
//
// # Architecture
//
//	config.Load ──→ prefs.Open ──→ session.New ──→ haiku.New ──→ queue.New
//	                                                    │            │
//	                                                    └─ Facade ───┘
//
// Open makes no network calls. The OAuth provider fetches the issuer's
// discovery document the first time a credential is requested, and retries
// discovery on the next request if it failed.
//
// Options override any piece: tests pass an in-memory prefs store, a fake
// identity provider and queue.Inline; the browser passes a
// ui.ProgramDispatcher so callbacks land on the Bubble Tea goroutine.
//
// # Runtime Fields
//
//   - Config: the resolved configuration
//   - Session: account, session token, one-shot code and ID token
//   - API: the synchronous client (or an installed fake)
//   - Queue, Facade: asynchronous access with tags and cancellation
//   - State: the snapshot store the UI renders from
//
// Close stops the queue and closes the prefs store if it holds a file or
// database handle.
//
// # Sign-in
//
// SignIn drives the code exchange:
//
//  1. Record the account (or reuse the stored one)
//  2. Ask the identity provider for a one-shot code; on a consent error call
//     the ConsentResolver and ask again interactively
//  3. Attach the code to GET /api/users/me; the server answers with a
//     session cookie
//  4. If the server still challenges, repeat with a new code (up to 3 times)
//
// A successful response with no user in the body is an error, never a
// signed-in state. SignInAsync runs the same steps on the queue under
// TagSignIn and always delivers exactly one result.
//
// # Resume
//
// Resume restores the user at start-up:
//
//	status           action
//	Unauthenticated  nothing; returns nil, nil
//	HasAccount       silent ID token fetch (bounded), then GET /api/users/me
//	HasSession       GET /api/users/me with the stored cookie
//
// The silent fetch never shows a consent screen. If the provider needs the
// user, or does not answer within 30 seconds, the request goes out without
// a credential and Resume returns the server's sign-in error.
//
// # Deep Links
//
// OpenDeepLink fetches the haiku a link points at. Links carrying
// action=vote also cast a vote, signing in first if the server asks for it.
// A vote that cannot be cast returns the unchanged haiku with the error.
//
//	https://haiku.example.com/haikus/42              view
//	https://haiku.example.com/haikus/42?action=vote  view and vote
//
// # Sign-out
//
// SignOut and Disconnect call the server, then clear the session and the
// state store whatever the server answered. A failed call is logged, not
// returned: locally the user is signed out either way.
//
// # Polling
//
// StartPoller refreshes the stream for the store's current mode. After
// consecutive failures the interval doubles up to 30 seconds and resets on
// the next success:
//
//	failures  delay (10s base)
//	0         10s
//	1         20s
//	2+        30s
//
// A refresh that finishes after the poller's context is cancelled is
// discarded.
//
// # Components
//
//   - app.go: Runtime, Open, Resume and sign-out
//   - signin.go: sign-in, votes and deep links
//   - provider.go: OAuth provider with deferred discovery
//   - poller.go: background stream refresh with exponential backoff
package app
