// Package config loads the Haiku+ client configuration.
//
// # Overview
//
// Configuration lives in a TOML file, by default
// ~/.config/haikuplus/config.toml. A missing file is not an error: the client
// works against a local development server out of the box.
//
// # Resolution Order
//
//  1. Defaults from Default()
//  2. Values present and non-blank in the TOML file
//  3. Environment overrides: HAIKU_SERVER_URL, HAIKU_LOG_LEVEL
//
// The command line applies one more layer on top: the -server flag replaces
// ServerURL and -v forces debug logging.
//
// # TOML Format
//
//	server_url = "https://haiku.example.com"
//	user_agent = "Haiku+Client-Go"
//	server_client_id = "1234.apps.googleusercontent.com"
//	oauth_client_id = "5678.apps.googleusercontent.com"
//	oauth_client_secret = "installed-app-secret"
//	issuer = "https://accounts.google.com"
//	scopes = ["openid", "email", "profile"]
//	visible_actions = ["http://schemas.google.com/AddActivity"]
//	prefs_backend = "file"          # file | sqlite | memory
//	prefs_path = "~/.config/haikuplus/HaikuPlus-HaikuSession.toml"
//	log_level = "info"
//	request_timeout = "10s"
//	max_retries = 3
//	backoff_multiplier = 2.0
//	workers = 4
//	poll_seconds = 10
//
// All fields are optional. Tilde expansion is applied to prefs_path.
//
// # Defaults
//
// Server:
//   - server_url: http://127.0.0.1:4567 (the development server)
//   - user_agent: Haiku+Client-Go
//
// Identity:
//   - issuer: https://accounts.google.com
//   - scopes: openid, email, profile
//   - visible_actions: AddActivity, ReviewActivity
//   - client IDs: empty; sign-in needs them, read-only commands do not
//
// Requests:
//   - request_timeout: 10s for the first attempt
//   - max_retries: 3, for transport failures only
//   - backoff_multiplier: 2.0, so attempts time out after 10s, 30s, 90s, 270s
//   - workers: 4 queue workers
//   - poll_seconds: 10, doubling on failure up to 30s
//
// Storage:
//   - prefs_backend: file
//   - prefs_path: empty, meaning the backend's default under
//     ~/.config/haikuplus (HaikuPlus-HaikuSession.toml or prefs.db)
//
// # Field Semantics
//
// Blank strings and non-positive numbers in the file are treated as absent
// and keep the default. max_retries is the exception: an explicit 0 turns
// retries off, so it is read as a pointer to tell 0 from missing.
//
// scopes and visible_actions replace the defaults wholesale; entries are
// trimmed and blank ones dropped.
//
// log_level accepts the slog level names in any case (debug, info, warn,
// error).
//
// # Error Handling
//
// Load returns errors for:
//   - unreadable files ("open config", "read config")
//   - invalid TOML ("parse config")
//   - malformed or non-positive request_timeout
//   - negative max_retries
//   - unknown log levels, from the file or HAIKU_LOG_LEVEL
//
// Missing files fall back to defaults.
//
// # Usage
//
//	cfg, err := config.Load("")          // default path
//	cfg, err := config.Load("./dev.toml")
//	cfg := config.Default()              // tests
package config
