package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/five82/haikuplus/internal/haiku"
)

func TestRenderHaiku(t *testing.T) {
	created := time.Date(2013, time.June, 5, 12, 0, 0, 0, time.Local)
	h := haiku.Haiku{
		ID:           "42",
		Title:        "Old pond",
		LineOne:      "An old silent pond",
		LineTwo:      "A frog jumps into the pond",
		LineThree:    "Splash! Silence again",
		Votes:        1,
		Author:       &haiku.User{GoogleDisplayName: "Basho"},
		CreationTime: haiku.Time{Time: created},
		ContentURL:   "http://127.0.0.1:4567/haikus/42",
	}

	out := RenderHaiku(h, GetTheme(""), 0)
	for _, want := range []string{
		"Old pond",
		"A frog jumps into the pond",
		"by Basho on Jun 5 2013",
		"1 vote",
		"#42",
		"/haikus/42",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderHaiku missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHaikuFallbacks(t *testing.T) {
	out := RenderHaiku(haiku.Haiku{Votes: 3}, GetTheme(""), 0)
	if !strings.Contains(out, "Untitled") || !strings.Contains(out, "by someone") || !strings.Contains(out, "3 votes") {
		t.Fatalf("RenderHaiku fallbacks missing:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"ab", 1, "a"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
