package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/haikuplus/internal/haiku"
	"github.com/five82/haikuplus/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewStream View = iota
	ViewDetail
	ViewCompose
)

// Options configures the UI.
type Options struct {
	Context context.Context
	// Facade runs API calls off the UI goroutine. Its queue should post
	// through Dispatcher.
	Facade     *haiku.Facade
	Store      *state.Store
	Dispatcher *ProgramDispatcher
	PollTick   time.Duration
	ThemeName  string
}

// notice is the footer message. Callbacks set it from inside Update, so it
// is shared by pointer across Model copies.
type notice struct {
	text  string
	isErr bool
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx      context.Context
	facade   *haiku.Facade
	store    *state.Store
	pollTick time.Duration
	keys     keyMap

	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	snapshot    state.Snapshot
	selectedRow int

	viewport viewport.Model
	compose  composeForm
	notice   *notice
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = time.Second
	}
	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}
	return Model{
		ctx:         ctx,
		facade:      opts.Facade,
		store:       store,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.ThemeName),
		currentView: ViewStream,
		compose:     newComposeForm(),
		notice:      &notice{},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		fetchSnapshotCmd(m.store),
		m.refreshCmd(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.ready = true
		m.updateViewport()
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchSnapshotCmd(m.store), tickCmd(m.pollTick))

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.clampSelection()
		m.updateViewport()
		return m, nil

	case dispatchMsg:
		msg()
		return m, fetchSnapshotCmd(m.store)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.currentView == ViewCompose {
		return m.handleComposeKey(msg)
	}
	m.setNotice("", false)

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.updateViewport()
		return m, nil
	case key.Matches(msg, m.keys.Compose):
		m.compose = newComposeForm()
		m.currentView = ViewCompose
		m.updateViewport()
		return m, nil
	case key.Matches(msg, m.keys.Vote):
		return m, m.vote()
	case key.Matches(msg, m.keys.ToggleFriends):
		m.toggleMode()
		m.updateViewport()
		return m, m.refreshCmd()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	switch m.currentView {
	case ViewStream:
		return m.handleStreamKey(msg)
	case ViewDetail:
		if key.Matches(msg, m.keys.Escape) {
			m.currentView = ViewStream
			m.updateViewport()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleStreamKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Stream)
	if count == 0 {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < count-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = count - 1
	case key.Matches(msg, m.keys.Detail):
		m.currentView = ViewDetail
	}
	m.updateViewport()
	return m, nil
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewStream
	case key.Matches(msg, m.keys.Submit):
		cmd = m.submitCompose()
	case key.Matches(msg, m.keys.NextField):
		cmd = m.compose.move(1)
	case key.Matches(msg, m.keys.PrevField):
		cmd = m.compose.move(-1)
	case msg.Type == tea.KeyEnter:
		if m.compose.focus == fieldLineThree {
			cmd = m.submitCompose()
		} else {
			cmd = m.compose.move(1)
		}
	default:
		m.compose, cmd = m.compose.update(msg)
	}
	m.updateViewport()
	return m, cmd
}

// submitCompose posts the form if it validates; otherwise the errors stay
// on the form.
func (m *Model) submitCompose() tea.Cmd {
	h := m.compose.Haiku()
	if err := h.Validate(); err != nil {
		m.compose.err = err
		return nil
	}
	m.currentView = ViewStream
	m.compose = newComposeForm()
	m.setNotice("Posting...", false)

	ctx, facade, store, n := m.ctx, m.facade, m.store, m.notice
	if facade == nil {
		return nil
	}
	return func() tea.Msg {
		facade.WriteHaiku(ctx, h, func(res haiku.Result[*haiku.Haiku]) {
			if !res.OK() {
				n.text, n.isErr = fmt.Sprintf("Post failed: %v", res.Err), true
				return
			}
			store.Prepend(*res.Value)
			n.text, n.isErr = fmt.Sprintf("Posted %q", res.Value.Title), false
		})
		return nil
	}
}

// vote counts the selected haiku's vote locally and sends it. The server's
// reply, or the unchanged haiku if the vote failed, replaces the local count.
func (m *Model) vote() tea.Cmd {
	h, ok := m.selected()
	if !ok || m.facade == nil {
		return nil
	}
	m.store.ApplyVote(h.ID)
	ctx, facade, store, n := m.ctx, m.facade, m.store, m.notice
	return tea.Batch(fetchSnapshotCmd(store), func() tea.Msg {
		facade.WriteHaikuVote(ctx, h, func(res haiku.Result[*haiku.Haiku]) {
			if res.Value == nil {
				return
			}
			store.UpdateHaiku(*res.Value)
			if res.Value.Votes > h.Votes {
				n.text, n.isErr = fmt.Sprintf("Voted for %q", res.Value.Title), false
			} else {
				n.text, n.isErr = "Vote not counted", true
			}
		})
		return nil
	})
}

func (m *Model) toggleMode() {
	next := haiku.StreamFriends
	if m.store.Mode() == haiku.StreamFriends {
		next = haiku.StreamAll
	}
	m.store.SetMode(next)
	m.snapshot = m.store.Snapshot()
	m.selectedRow = 0
}

// refreshCmd fetches the stream for the current mode, dropping any fetch
// still in flight.
func (m Model) refreshCmd() tea.Cmd {
	ctx, facade, store, n := m.ctx, m.facade, m.store, m.notice
	if facade == nil {
		return nil
	}
	return func() tea.Msg {
		facade.CancelAll(haiku.TagStream)
		mode := store.Mode()
		facade.FetchStream(ctx, mode, func(res haiku.Result[[]haiku.Haiku]) {
			store.Update(mode, res.Value, res.Err)
			if res.Err != nil {
				n.text, n.isErr = fmt.Sprintf("Refresh failed: %v", res.Err), true
			}
		})
		return nil
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice.text, m.notice.isErr = text, isErr
}

func (m Model) selected() (haiku.Haiku, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.snapshot.Stream) {
		return haiku.Haiku{}, false
	}
	return m.snapshot.Stream[m.selectedRow], true
}

func (m *Model) clampSelection() {
	if n := len(m.snapshot.Stream); m.selectedRow >= n {
		m.selectedRow = max(n-1, 0)
	}
}

func (m *Model) updateViewport() {
	if !m.ready {
		return
	}
	switch m.currentView {
	case ViewCompose:
		m.viewport.SetContent(m.compose.view(m.theme))
		m.viewport.GotoTop()
	case ViewDetail:
		h, ok := m.selected()
		if !ok {
			m.viewport.SetContent(m.theme.Styles().MutedText.Render("Nothing selected."))
			return
		}
		m.viewport.SetContent(RenderHaiku(h, m.theme, m.width))
	default:
		m.viewport.SetContent(m.renderStream())
		m.keepSelectionVisible()
	}
}

func (m *Model) keepSelectionVisible() {
	switch {
	case m.selectedRow < m.viewport.YOffset:
		m.viewport.SetYOffset(m.selectedRow)
	case m.selectedRow >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(m.selectedRow - m.viewport.Height + 1)
	}
}

func (m Model) renderStream() string {
	styles := m.theme.Styles()
	if !m.snapshot.HasStream {
		return styles.MutedText.Render("Loading haikus...")
	}
	if len(m.snapshot.Stream) == 0 {
		return styles.MutedText.Render("No haikus yet. Press c to write one.")
	}
	rows := make([]string, len(m.snapshot.Stream))
	for i, h := range m.snapshot.Stream {
		rows[i] = streamRow(h, i == m.selectedRow, styles, m.width)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	who := "signed out"
	if u := m.snapshot.User; u != nil {
		who = u.GoogleDisplayName
		if who == "" {
			who = u.ID
		}
	}
	parts := []string{
		bg.Render("Haiku+", styles.Title),
		bg.Render(who, styles.Text),
		bg.Render(m.snapshot.Mode.String(), styles.AccentText),
	}
	if m.snapshot.IsOffline() {
		parts = append(parts, bg.Render("offline", styles.DangerText))
	}
	return bg.FillLine(bg.Join(parts, " · "), m.width)
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.notice.text != "" {
		style := styles.SuccessText
		if m.notice.isErr {
			style = styles.DangerText
		}
		return styles.Footer.Width(m.width).Render(style.Render(m.notice.text))
	}
	bindings := m.keys.ShortHelp()
	if m.currentView == ViewCompose {
		bindings = []key.Binding{m.keys.NextField, m.keys.Submit, m.keys.Escape}
	}
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	return styles.Footer.Width(m.width).Render(strings.Join(hints, "  "))
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	if opts.Dispatcher != nil {
		opts.Dispatcher.Attach(p)
	}
	_, err := p.Run()
	return err
}
