package haiku

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the server's timestamp format (Java yyyy-MM-dd'T'HH:mm:ssZ).
const TimeLayout = "2006-01-02T15:04:05-0700"

// Time is a timestamp encoded in TimeLayout. Decoding also accepts RFC 3339;
// empty strings and null decode to the zero time.
type Time struct {
	time.Time
}

// MarshalJSON encodes t in TimeLayout, or null when zero.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(TimeLayout))
}

// UnmarshalJSON decodes TimeLayout or RFC 3339 strings.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time: %w", err)
	}
	parsed, err := parseTime(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Display renders t the way haiku cards show it, e.g. "on Jan 2 2006".
func (t Time) Display() string {
	if t.IsZero() {
		return ""
	}
	return "on " + t.Local().Format("Jan 2 2006")
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time: unrecognised timestamp %q", value)
}

// User is a Haiku+ account as returned by /api/users/me.
type User struct {
	ID                string `json:"id"`
	GooglePlusID      string `json:"google_plus_id,omitempty"`
	GoogleDisplayName string `json:"google_display_name,omitempty"`
	GooglePhotoURL    string `json:"google_photo_url,omitempty"`
	GoogleProfileURL  string `json:"google_profile_url,omitempty"`
	LastUpdated       Time   `json:"last_updated"`
}

// Haiku is a three-line poem with its author and share metadata.
type Haiku struct {
	ID                     string `json:"id,omitempty"`
	Author                 *User  `json:"author,omitempty"`
	Title                  string `json:"title"`
	LineOne                string `json:"line_one"`
	LineTwo                string `json:"line_two"`
	LineThree              string `json:"line_three"`
	Votes                  int    `json:"votes"`
	CreationTime           Time   `json:"creation_time"`
	ContentURL             string `json:"content_url,omitempty"`
	ContentDeepLinkID      string `json:"content_deep_link_id,omitempty"`
	CallToActionURL        string `json:"call_to_action_url,omitempty"`
	CallToActionDeepLinkID string `json:"call_to_action_deep_link_id,omitempty"`
}

// Lines returns the three lines in order.
func (h Haiku) Lines() [3]string {
	return [3]string{h.LineOne, h.LineTwo, h.LineThree}
}

// Validation errors returned (joined) by Haiku.Validate.
var (
	ErrMissingTitle = errors.New("haiku needs a title")
	ErrMissingLine  = errors.New("haiku needs three lines")
)

// Validate reports every missing field of a haiku about to be posted.
func (h Haiku) Validate() error {
	var errs []error
	if strings.TrimSpace(h.Title) == "" {
		errs = append(errs, ErrMissingTitle)
	}
	for i, line := range h.Lines() {
		if strings.TrimSpace(line) == "" {
			errs = append(errs, fmt.Errorf("line %d: %w", i+1, ErrMissingLine))
		}
	}
	return errors.Join(errs...)
}

// StreamMode selects which haikus FetchStream returns.
type StreamMode int

const (
	StreamAll StreamMode = iota
	StreamFriends
)

func (m StreamMode) String() string {
	if m == StreamFriends {
		return "friends"
	}
	return "all"
}

// ParseStreamMode maps "all" and "friends" (or "circles") to a StreamMode.
func ParseStreamMode(value string) (StreamMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all", "everyone":
		return StreamAll, nil
	case "friends", "circles":
		return StreamFriends, nil
	default:
		return StreamAll, fmt.Errorf("unknown stream mode %q", value)
	}
}
