package haiku

import (
	"fmt"
	"net/url"
	"strings"
)

// ActionVote is the only call-to-action a deep link may carry.
const ActionVote = "vote"

// DeepLink references a haiku and optionally an action to perform on it.
type DeepLink struct {
	HaikuID string
	Action  string
}

// String renders the link as /haikus/{id}[?action={action}].
func (d DeepLink) String() string {
	path := "/haikus/" + d.HaikuID
	if d.Action == "" {
		return path
	}
	return path + "?action=" + d.Action
}

// ParseDeepLink parses "/haikus/{id}?action={action}". It also accepts a
// wrapping URL that carries the link in a deep_link_id query parameter, as
// share targets deliver it.
func ParseDeepLink(raw string) (DeepLink, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return DeepLink{}, fmt.Errorf("deep link is empty")
	}
	if strings.Contains(link, "://") {
		u, err := url.Parse(link)
		if err != nil {
			return DeepLink{}, fmt.Errorf("parse deep link %q: %w", raw, err)
		}
		if inner := u.Query().Get("deep_link_id"); inner != "" {
			link = inner
		} else {
			link = u.RequestURI()
		}
	}

	path, query, _ := strings.Cut(link, "?")
	id := strings.Trim(strings.TrimPrefix(strings.TrimPrefix(path, "/"), "haikus/"), "/")
	if id == "" || strings.Contains(id, "/") {
		return DeepLink{}, fmt.Errorf("deep link %q does not name a haiku", raw)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return DeepLink{}, fmt.Errorf("parse deep link %q: %w", raw, err)
	}
	return DeepLink{HaikuID: id, Action: values.Get("action")}, nil
}
