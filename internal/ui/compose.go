package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/haikuplus/internal/haiku"
)

const (
	fieldTitle = iota
	fieldLineOne
	fieldLineTwo
	fieldLineThree
	fieldCount
)

var fieldLabels = [fieldCount]string{"Title", "Line one", "Line two", "Line three"}

// composeForm collects a new haiku.
type composeForm struct {
	inputs [fieldCount]textinput.Model
	focus  int
	err    error
}

func newComposeForm() composeForm {
	var f composeForm
	placeholders := [fieldCount]string{"Title", "An old silent pond", "A frog jumps into the pond", "Splash! Silence again"}
	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 120
		in.Prompt = ""
		f.inputs[i] = in
	}
	f.inputs[fieldTitle].Focus()
	return f
}

// move shifts focus by delta, wrapping around.
func (f *composeForm) move(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + fieldCount) % fieldCount
	return f.inputs[f.focus].Focus()
}

// Haiku returns the form contents with surrounding space trimmed.
func (f composeForm) Haiku() haiku.Haiku {
	return haiku.Haiku{
		Title:     strings.TrimSpace(f.inputs[fieldTitle].Value()),
		LineOne:   strings.TrimSpace(f.inputs[fieldLineOne].Value()),
		LineTwo:   strings.TrimSpace(f.inputs[fieldLineTwo].Value()),
		LineThree: strings.TrimSpace(f.inputs[fieldLineThree].Value()),
	}
}

func (f composeForm) update(msg tea.Msg) (composeForm, tea.Cmd) {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f composeForm) view(theme Theme) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Title.Render("Write a haiku"))
	b.WriteString("\n\n")
	for i, in := range f.inputs {
		label := styles.MutedText.Width(12).Render(fieldLabels[i])
		if i == f.focus {
			label = styles.AccentText.Width(12).Render(fieldLabels[i])
		}
		b.WriteString(label)
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if f.err != nil {
		b.WriteString("\n")
		for _, line := range strings.Split(f.err.Error(), "\n") {
			b.WriteString(styles.DangerText.Render(line))
			b.WriteString("\n")
		}
	}
	return styles.FocusedCard.Render(b.String())
}
