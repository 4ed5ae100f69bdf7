// Package tui implements the Bubble Tea terminal user interface: a live view
// of one streaming analysis run, and a review view of its frozen snapshot.
package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/stream"
)

// pane identifies the focused lower pane.
type pane int

const (
	paneThinking pane = iota
	paneEvents
	paneDocs
	numPanes
)

// stateMsg carries a published state copy into the Bubble Tea loop.
type stateMsg stream.State

// streamClosedMsg means the subscription channel closed; no more updates.
type streamClosedMsg struct{}

// Model is the top-level Bubble Tea model for procwatch.
type Model struct {
	session *stream.Session
	updates <-chan stream.State
	unsub   func()

	state stream.State

	// review renders the frozen snapshot instead of the live stream.
	review bool

	spin         spinner.Model
	pane         pane
	scrollOffset int
	showRaw      bool
	showHelp     bool

	width  int
	height int
}

// New creates a TUI model subscribed to the session.
func New(session *stream.Session) Model {
	ch, unsub := session.Subscribe()
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = phaseActiveStyle
	return Model{
		session: session,
		updates: ch,
		unsub:   unsub,
		state:   session.State(),
		spin:    sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spin.Tick)
}

// waitForUpdate blocks on the subscription out-of-band from the render loop.
func (m Model) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return stateMsg(st)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stateMsg:
		prev := m.state
		m.state = stream.State(msg)
		// Completion flips to the snapshot view; the live stream is done.
		if m.state.Snapshot != nil && prev.Snapshot == nil {
			m.review = true
		}
		return m, m.waitForUpdate()

	case streamClosedMsg:
		return m, nil

	case spinner.TickMsg:
		if !m.state.Status.Terminal() && !m.state.StreamEnded {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.unsub()
		m.session.Stop()
		return m, tea.Quit

	case key.Matches(msg, keys.Stop):
		m.session.Stop()

	case key.Matches(msg, keys.Down):
		m.scrollOffset++

	case key.Matches(msg, keys.Up):
		if m.scrollOffset > 0 {
			m.scrollOffset--
		}

	case key.Matches(msg, keys.Pane):
		m.pane = (m.pane + 1) % numPanes
		m.scrollOffset = 0

	case key.Matches(msg, keys.Raw):
		m.showRaw = !m.showRaw

	case key.Matches(msg, keys.Review):
		if m.state.Snapshot != nil {
			m.review = !m.review
			m.scrollOffset = 0
		}

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}

	return m, nil
}

// viewData is what the render path consumes: either the live state or the
// frozen snapshot, projected into one shape.
type viewData struct {
	analysisID  string
	status      model.Status
	elapsedSec  int
	errMsg      string
	streamEnded bool
	thinking    [model.NumPhases]string
	timings     [model.NumPhases]*model.PhaseTiming
	events      []model.StreamEvent
	docs        []model.ParsedDocInfo
	frozen      bool
}

func (m Model) current() viewData {
	if m.review && m.state.Snapshot != nil {
		snap := m.state.Snapshot
		return viewData{
			analysisID: snap.AnalysisID,
			status:     snap.FinalStatus,
			elapsedSec: snap.ElapsedSec,
			thinking:   snap.Thinking,
			timings:    snap.Timings,
			events:     snap.Events,
			docs:       snap.ParsedDocs,
			frozen:     true,
		}
	}
	return viewData{
		analysisID:  m.state.AnalysisID,
		status:      m.state.Status,
		elapsedSec:  m.state.ElapsedSec,
		errMsg:      m.state.ErrorMessage,
		streamEnded: m.state.StreamEnded,
		thinking:    m.state.Thinking,
		timings:     m.state.Timings,
		events:      m.state.Events,
		docs:        m.state.ParsedDocs,
	}
}

// Run starts the TUI for an already-started session and blocks until quit.
func Run(session *stream.Session) error {
	p := tea.NewProgram(New(session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
