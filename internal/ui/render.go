package ui

import (
	"fmt"
	"strings"

	"github.com/five82/haikuplus/internal/haiku"
)

// RenderHaiku draws h as a card. It is shared by the browser's detail view
// and the CLI's show command.
func RenderHaiku(h haiku.Haiku, theme Theme, width int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Title.Render(fallback(h.Title, "Untitled")))
	b.WriteString("\n\n")
	for _, line := range h.Lines() {
		b.WriteString(styles.Text.Italic(true).Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render(byline(h)))
	b.WriteString("\n")
	b.WriteString(styles.AccentText.Render(voteLabel(h.Votes)))
	if h.ID != "" {
		b.WriteString(styles.FaintText.Render("  #" + h.ID))
	}
	for _, link := range []string{h.ContentURL, h.CallToActionURL} {
		if link == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render(link))
	}

	card := styles.Card
	if width > 4 {
		card = card.Width(width - 2)
	}
	return card.Render(b.String())
}

// streamRow renders one line of the stream list.
func streamRow(h haiku.Haiku, selected bool, styles Styles, width int) string {
	text := fmt.Sprintf("%-28s %-20s %s", truncate(fallback(h.Title, "Untitled"), 28), truncate(authorName(h), 20), voteLabel(h.Votes))
	if selected {
		if width > 0 {
			return styles.Selected.Width(width).Render(text)
		}
		return styles.Selected.Render(text)
	}
	return styles.Text.Render(text)
}

func byline(h haiku.Haiku) string {
	parts := []string{"by " + authorName(h)}
	if when := h.CreationTime.Display(); when != "" {
		parts = append(parts, when)
	}
	return strings.Join(parts, " ")
}

func authorName(h haiku.Haiku) string {
	if h.Author == nil || h.Author.GoogleDisplayName == "" {
		return "someone"
	}
	return h.Author.GoogleDisplayName
}

func voteLabel(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return fmt.Sprintf("%d votes", n)
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
