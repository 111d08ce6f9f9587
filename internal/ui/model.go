// Package ui renders the project list and its running state in the terminal.
// It reads the session and issues commands through it; it never mutates
// running state itself.
package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fafa-a/runtty/internal/projects"
	"github.com/fafa-a/runtty/internal/runstate"
)

// Session is the part of a client session the UI drives.
type Session interface {
	OpenWorkspace(ctx context.Context) error
	Projects() []projects.Project
	Root() string
	WorkspaceError() string
	Running() runstate.Snapshot
	Watch() (<-chan struct{}, func())
	Start(ctx context.Context, path string) error
	Stop(ctx context.Context, path string) error
	StopAll(ctx context.Context) error
	Sync(ctx context.Context) error
	LastError() string
	Available() bool
}

type runningChangedMsg struct{}

type workspaceOpenedMsg struct{ err error }

type actionDoneMsg struct {
	path string
	err  error
}

// Model is the bubbletea model of the project list.
type Model struct {
	ctx   context.Context
	sess  Session
	theme theme
	keys  keyMap
	help  help.Model

	watch       <-chan struct{}
	cancelWatch func()

	width    int
	height   int
	cursor   int
	projects []projects.Project
	running  runstate.Snapshot
	busy     map[string]bool
}

// New creates the model. Call Close when the program exits.
func New(ctx context.Context, sess Session) Model {
	watch, cancel := sess.Watch()
	m := Model{
		ctx:         ctx,
		sess:        sess,
		theme:       newTheme(),
		keys:        newKeyMap(),
		help:        help.New(),
		watch:       watch,
		cancelWatch: cancel,
		projects:    sess.Projects(),
		running:     sess.Running(),
		busy:        make(map[string]bool),
	}
	m.updateKeys()
	return m
}

// Close stops watching the running set.
func (m Model) Close() {
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return waitForChange(m.watch) }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case runningChangedMsg:
		m.running = m.sess.Running()
		m.updateKeys()
		return m, waitForChange(m.watch)

	case workspaceOpenedMsg:
		m.projects = m.sess.Projects()
		if m.cursor >= len(m.projects) {
			m.cursor = max(len(m.projects)-1, 0)
		}
		m.running = m.sess.Running()
		m.updateKeys()

	case actionDoneMsg:
		delete(m.busy, msg.path)
		m.running = m.sess.Running()
		m.updateKeys()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.projects)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			return workspaceOpenedMsg{err: sess.OpenWorkspace(ctx)}
		}
	case key.Matches(msg, m.keys.Start):
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.busy[p.Path] = true
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			return actionDoneMsg{path: p.Path, err: sess.Start(ctx, p.Path)}
		}
	case key.Matches(msg, m.keys.Stop):
		p, ok := m.selected()
		if !ok || !m.running.Has(p.Path) {
			return m, nil
		}
		m.busy[p.Path] = true
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			return actionDoneMsg{path: p.Path, err: sess.Stop(ctx, p.Path)}
		}
	case key.Matches(msg, m.keys.StopAll):
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			return actionDoneMsg{err: sess.StopAll(ctx)}
		}
	case key.Matches(msg, m.keys.Sync):
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			return actionDoneMsg{err: sess.Sync(ctx)}
		}
	}
	m.updateKeys()
	return m, nil
}

func (m Model) selected() (projects.Project, bool) {
	if m.cursor < 0 || m.cursor >= len(m.projects) {
		return projects.Project{}, false
	}
	return m.projects[m.cursor], true
}

// updateKeys enables Stop only for a running selection and StopAll only while
// something runs.
func (m *Model) updateKeys() {
	p, ok := m.selected()
	m.keys.Start.SetEnabled(ok)
	m.keys.Stop.SetEnabled(ok && m.running.Has(p.Path))
	m.keys.StopAll.SetEnabled(m.running.Len() > 0)
}

// View implements tea.Model.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	root := m.sess.Root()
	if root == "" {
		root = "no folder open"
	}
	link := m.theme.ok.Render("connected")
	if !m.sess.Available() {
		link = m.theme.danger.Render("bridge unavailable")
	}
	header := m.theme.panel.Width(width - 2).Render(strings.Join([]string{
		m.theme.title.Render("runtty"),
		m.theme.muted.Render(root) + "  " + link,
	}, "\n"))

	body := m.theme.panel.Width(width - 2).Render(m.renderProjects())

	var parts []string
	parts = append(parts, header, body)
	if msg := m.message(); msg != "" {
		parts = append(parts, m.theme.danger.Render(msg))
	}
	parts = append(parts, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderProjects() string {
	if len(m.projects) == 0 {
		return m.theme.muted.Render("Press o to open a workspace folder.")
	}

	width := nameWidth(m.projects)
	lines := make([]string, 0, len(m.projects))
	for i, p := range m.projects {
		state := m.theme.muted.Render("stopped")
		if m.running.Has(p.Path) {
			state = m.theme.ok.Render("running")
		}
		if m.busy[p.Path] {
			state += m.theme.warn.Render(" …")
		}

		name := m.theme.text.Render(p.Name)
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
			name = m.theme.highlight.Render(p.Name)
		}
		pad := strings.Repeat(" ", width-lipgloss.Width(p.Name)+1)
		lines = append(lines, prefix+name+pad+state)
	}
	return strings.Join(lines, "\n")
}

func (m Model) message() string {
	if msg := m.sess.WorkspaceError(); msg != "" {
		return msg
	}
	return m.sess.LastError()
}

func nameWidth(list []projects.Project) int {
	w := 0
	for _, p := range list {
		w = max(w, lipgloss.Width(p.Name))
	}
	return w
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return runningChangedMsg{}
	}
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, sess Session) error {
	m := New(ctx, sess)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
