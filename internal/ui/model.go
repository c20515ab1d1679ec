// Package ui is the terminal front end: it renders the player status and
// the frame gallery and turns key presses into controller calls.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bdougie/framegrab/internal/app"
	"github.com/bdougie/framegrab/internal/models"
	"github.com/bdougie/framegrab/internal/session"
)

const refreshInterval = 250 * time.Millisecond

// Controller is the part of app.Controller the UI drives.
type Controller interface {
	State() *session.State
	Playback() app.Playback
	PendingWrites() int

	OpenFile(ctx context.Context, location string) error
	LoadSample(ctx context.Context) error
	ToggleCapture() error
	TogglePlayback() error
	Seek(delta float64) error
	SetInterval(n int) error
	SelectFolder(ctx context.Context, location string) error
	ClearFolder() error
	DeleteFrame(id string) bool
	Describe(id string) bool
	Copy(ctx context.Context, id string) error
	SearchSimilar(ctx context.Context, id string) ([]models.SimilarFrame, error)
}

// PromptMode tracks what the path prompt is asking for.
type PromptMode int

const (
	PromptNone PromptMode = iota
	PromptVideo
	PromptFolder
)

// Model is the root bubbletea model.
type Model struct {
	ctx  context.Context
	ctrl Controller

	updates     <-chan struct{}
	unsubscribe func()

	snap     session.Snapshot
	playback app.Playback
	pending  int

	selected int

	prompt     textinput.Model
	promptMode PromptMode

	spinner spinner.Model
	busy    string

	similarFor string
	similar    []models.SimilarFrame

	modal  string // blocking error, dismissed with enter or esc
	notice string

	width  int
	height int
}

// New creates the model and subscribes to session changes. Call Close when
// the program exits.
func New(ctx context.Context, ctrl Controller) Model {
	ti := textinput.New()
	ti.CharLimit = 4096
	ti.Width = 60

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(SpinnerStyle))

	updates, unsubscribe := ctrl.State().Subscribe()
	m := Model{
		ctx:         ctx,
		ctrl:        ctrl,
		updates:     updates,
		unsubscribe: unsubscribe,
		prompt:      ti,
		spinner:     sp,
	}
	m.refresh()
	return m
}

// Close drops the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.updates), refreshTick(), m.spinner.Tick)
}

// waitForChange blocks until the session changes.
func waitForChange(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return StateChangedMsg{}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return RefreshTickMsg{}
	})
}

func clearNoticeCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// runCmd runs a controller call that may block, such as opening a remote
// video, off the update loop.
func runCmd(notice string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionDoneMsg{Notice: notice, Err: fn()}
	}
}

func similarCmd(ctx context.Context, ctrl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		results, err := ctrl.SearchSimilar(ctx, id)
		return SimilarFramesMsg{FrameID: id, Results: results, Err: err}
	}
}

// refresh copies controller state into the model.
func (m *Model) refresh() {
	m.snap = m.ctrl.State().Snapshot()
	m.playback = m.ctrl.Playback()
	m.pending = m.ctrl.PendingWrites()

	if m.selected >= len(m.snap.Frames) {
		m.selected = max(0, len(m.snap.Frames)-1)
	}
	if m.similarFor != "" {
		if _, ok := m.ctrl.State().Frame(m.similarFor); !ok {
			m.similarFor, m.similar = "", nil
		}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateChangedMsg:
		m.refresh()
		return m, waitForChange(m.updates)

	case RefreshTickMsg:
		m.refresh()
		return m, refreshTick()

	case ActionDoneMsg:
		m.busy = ""
		m.refresh()
		if msg.Err != nil {
			m.modal = msg.Err.Error()
			return m, nil
		}
		if msg.Notice != "" {
			m.notice = msg.Notice
			return m, clearNoticeCmd()
		}
		return m, nil

	case SimilarFramesMsg:
		m.busy = ""
		if msg.Err != nil {
			m.modal = fmt.Sprintf("Similar frames: %v", msg.Err)
			return m, nil
		}
		m.similarFor = msg.FrameID
		m.similar = msg.Results
		return m, nil

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.promptMode != PromptNone {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		return m, tea.Quit
	}

	if m.modal != "" {
		if key == KeyEnter || key == KeyEsc {
			m.modal = ""
		}
		return m, nil
	}

	if m.promptMode != PromptNone {
		return m.handlePromptKey(msg)
	}

	switch key {
	case KeyQuit:
		return m, tea.Quit

	case KeyOpenFile:
		return m, m.openPrompt(PromptVideo, "Video file or URL: ")

	case KeySample:
		m.busy = "Loading sample video"
		return m, runCmd("Sample video loaded", func() error {
			return m.ctrl.LoadSample(m.ctx)
		})

	case KeyCapture:
		return m.apply(m.ctrl.ToggleCapture())

	case KeyPlayPause:
		return m.apply(m.ctrl.TogglePlayback())

	case KeyIntervalUp, KeyIntervalEq:
		return m.stepInterval(1)

	case KeyIntervalDown:
		return m.stepInterval(-1)

	case KeySeekBack:
		return m.apply(m.ctrl.Seek(-app.SeekStep))

	case KeySeekForward:
		return m.apply(m.ctrl.Seek(app.SeekStep))

	case KeyFolder:
		if m.snap.Capturing {
			m.modal = session.ErrCaptureActive.Error()
			return m, nil
		}
		return m, m.openPrompt(PromptFolder, "Save frames to folder: ")

	case KeyClearFolder:
		return m.apply(m.ctrl.ClearFolder())

	case KeyUp, KeyK:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.selected < len(m.snap.Frames)-1 {
			m.selected++
		}
		return m, nil
	}

	f, ok := m.selectedFrame()
	if !ok {
		return m, nil
	}

	switch key {
	case KeyDelete:
		m.ctrl.DeleteFrame(f.ID)
		m.refresh()
		return m, nil

	case KeyDescribe:
		m.ctrl.Describe(f.ID)
		m.refresh()
		return m, nil

	case KeyCopy:
		return m, runCmd("Frame copied to clipboard", func() error {
			return m.ctrl.Copy(m.ctx, f.ID)
		})

	case KeySimilar:
		m.busy = "Searching similar frames"
		return m, similarCmd(m.ctx, m.ctrl, f.ID)
	}

	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.closePrompt()
		return m, nil

	case KeyEnter:
		value := m.prompt.Value()
		mode := m.promptMode
		m.closePrompt()

		if mode == PromptFolder {
			return m, runCmd("", func() error {
				return m.ctrl.SelectFolder(m.ctx, value)
			})
		}
		if value == "" {
			return m, nil
		}
		m.busy = "Opening video"
		return m, runCmd("Video loaded", func() error {
			return m.ctrl.OpenFile(m.ctx, value)
		})
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) openPrompt(mode PromptMode, label string) tea.Cmd {
	m.promptMode = mode
	m.prompt.Prompt = label
	m.prompt.SetValue("")
	return m.prompt.Focus()
}

func (m *Model) closePrompt() {
	m.promptMode = PromptNone
	m.prompt.Blur()
	m.prompt.SetValue("")
}

// stepInterval moves the capture interval by delta, stopping at the range
// limits.
func (m Model) stepInterval(delta int) (tea.Model, tea.Cmd) {
	next := min(max(m.snap.Interval+delta, session.MinInterval), session.MaxInterval)
	if m.snap.HasVideo() && next == m.snap.Interval {
		return m, nil
	}
	return m.apply(m.ctrl.SetInterval(next))
}

// apply refreshes after a synchronous controller call and surfaces its error.
func (m Model) apply(err error) (tea.Model, tea.Cmd) {
	m.refresh()
	if err != nil {
		if errors.Is(err, session.ErrNoVideo) {
			m.modal = "Load a video first (o to open a file, s for the sample)."
		} else {
			m.modal = err.Error()
		}
	}
	return m, nil
}

func (m Model) selectedFrame() (models.CapturedFrame, bool) {
	if m.selected < 0 || m.selected >= len(m.snap.Frames) {
		return models.CapturedFrame{}, false
	}
	return m.snap.Frames[m.selected], true
}
