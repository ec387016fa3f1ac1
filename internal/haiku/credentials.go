package haiku

import (
	"net/http"
	"strings"

	"github.com/five82/haikuplus/internal/session"
)

// Header and cookie names of the Haiku+ auth handshake.
const (
	HeaderOAuthCode   = "X-OAuth-Code"
	SessionCookieName = "HaikuSessionId"

	sessionCookiePrefix = SessionCookieName + "="
)

// credentialRule attaches one kind of credential when it matches.
type credentialRule struct {
	name    string
	matches func(session.Credentials) bool
	apply   func(http.Header, session.Credentials)
	// consumesCode marks the rule that spends the one-shot code.
	consumesCode bool
}

// credentialPolicy is ordered; the first matching rule wins.
var credentialPolicy = []credentialRule{
	{
		name:         "code",
		matches:      func(c session.Credentials) bool { return c.Code != "" },
		apply:        func(h http.Header, c session.Credentials) { h.Set(HeaderOAuthCode, c.Code) },
		consumesCode: true,
	},
	{
		name:    "cookie",
		matches: func(c session.Credentials) bool { return c.SessionToken != "" },
		apply:   func(h http.Header, c session.Credentials) { h.Set("Cookie", sessionCookiePrefix+c.SessionToken) },
	},
	{
		name:    "bearer",
		matches: func(c session.Credentials) bool { return c.Account != "" && c.IDToken != "" },
		apply:   func(h http.Header, c session.Credentials) { h.Set("Authorization", "Bearer "+c.IDToken) },
	},
}

// selectCredential returns the first rule matching creds, or false when the
// request goes out unauthenticated.
func selectCredential(creds session.Credentials) (credentialRule, bool) {
	for _, rule := range credentialPolicy {
		if rule.matches(creds) {
			return rule, true
		}
	}
	return credentialRule{}, false
}

// sessionTokenFromHeader returns the first HaikuSessionId value among the
// Set-Cookie headers, cut at the first ';'.
func sessionTokenFromHeader(h http.Header) (string, bool) {
	for _, value := range h.Values("Set-Cookie") {
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(value, sessionCookiePrefix) {
			continue
		}
		token, _, _ := strings.Cut(strings.TrimPrefix(value, sessionCookiePrefix), ";")
		return token, true
	}
	return "", false
}
