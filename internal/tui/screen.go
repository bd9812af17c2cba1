// Package tui renders the recording screen and forwards user actions to the session.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alkime/memo/internal/session"
	"github.com/alkime/memo/internal/tui/style"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Session is the controller surface the screen observes and drives.
type Session interface {
	State() session.State
	Subscribe() <-chan session.State
	RequestMicrophoneAccess()
	DismissPermissionPrompt()
	StartRecording() error
	StopRecording()
	PlayRecording() error
}

// stateMsg carries a published session snapshot into the update loop.
type stateMsg session.State

// errMsg carries a failed action into the update loop.
type errMsg struct {
	err error
}

// Model is the recording screen.
type Model struct {
	session Session
	updates <-chan session.State
	keys    KeyMap
	spinner spinner.Model
	state   session.State
	lastErr error
}

// New creates the screen for sess.
func New(sess Session) Model {
	s := spinner.New()
	s.Spinner = spinner.Points

	return Model{
		session: sess,
		updates: sess.Subscribe(),
		keys:    DefaultKeyMap(),
		spinner: s,
		state:   sess.State(),
	}
}

// Init asks for microphone access once the screen appears.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.requestAccess,
		m.waitForState,
		m.spinner.Tick,
	)
}

// Update handles messages for the recording screen.
func (m Model) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMsg := teaMsg.(type) {
	case stateMsg:
		m.state = session.State(typedMsg)
		return m, m.waitForState

	case errMsg:
		// the permission prompt already explains a refusal
		if !errors.Is(typedMsg.err, session.ErrPermissionDenied) {
			m.lastErr = typedMsg.err
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(typedMsg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typedMsg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit), key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Dismiss) && m.state.PermissionDenialPending:
		return m, m.dismiss

	case key.Matches(msg, m.keys.Record) && !m.state.IsPlaying:
		m.lastErr = nil
		if m.state.IsRecording {
			return m, m.stopRecording
		}
		return m, m.startRecording

	case key.Matches(msg, m.keys.Play) && m.canPlay():
		m.lastErr = nil
		return m, m.play
	}

	return m, nil
}

// canPlay hides the playback action until something was recorded and while
// recording or playing.
func (m Model) canPlay() bool {
	return m.state.HasRecording && !m.state.IsRecording && !m.state.IsPlaying
}

// View renders the recording screen.
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(style.Header.Render("Voice Memo"))
	sb.WriteString("\n\n")

	phase := m.state.Phase()
	if phase == session.PhaseIdle {
		sb.WriteString(style.Badge(phase, "Ready"))
	} else {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(style.Badge(phase, phase.String()))
	}

	sb.WriteString(" ")
	sb.WriteString(style.Timer.Render(formatDuration(m.state.ElapsedSeconds)))
	sb.WriteString("\n\n")

	if m.state.PermissionDenialPending {
		sb.WriteString(style.Prompt.Render(
			"Microphone access is required to record.\n" +
				"Allow microphone access in your system privacy settings, then try again."))
		sb.WriteString("\n")
		sb.WriteString(renderKeyHelp(m.keys.Dismiss, "\n\n"))
	}

	if m.lastErr != nil {
		sb.WriteString(style.Fault.Render("✗ " + m.lastErr.Error()))
		sb.WriteString("\n\n")
	}

	if !m.state.IsPlaying {
		recordHelp := m.keys.Record
		if m.state.IsRecording {
			recordHelp.SetHelp("space", "stop recording")
		} else {
			recordHelp.SetHelp("space", "start recording")
		}
		sb.WriteString(renderKeyHelp(recordHelp, " "))
	}

	if m.canPlay() {
		sb.WriteString(renderKeyHelp(m.keys.Play, " "))
	}

	sb.WriteString(renderKeyHelp(m.keys.Quit, "\n"))

	return sb.String()
}

// State returns the last snapshot the screen rendered.
func (m Model) State() session.State {
	return m.state
}

func (m Model) waitForState() tea.Msg {
	return stateMsg(<-m.updates)
}

func (m Model) requestAccess() tea.Msg {
	m.session.RequestMicrophoneAccess()
	return nil
}

func (m Model) dismiss() tea.Msg {
	m.session.DismissPermissionPrompt()
	return nil
}

func (m Model) startRecording() tea.Msg {
	if err := m.session.StartRecording(); err != nil {
		return errMsg{err: err}
	}
	return nil
}

func (m Model) stopRecording() tea.Msg {
	m.session.StopRecording()
	return nil
}

func (m Model) play() tea.Msg {
	if err := m.session.PlayRecording(); err != nil {
		return errMsg{err: err}
	}
	return nil
}

// formatDuration renders whole seconds as mm:ss.
func formatDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func renderKeyHelp(keyBinding key.Binding, suffix ...string) string {
	s := style.HintText.Render("[") + style.HintKey.Render(keyBinding.Help().Key) +
		style.HintText.Render("] ") +
		style.HintText.Render(keyBinding.Help().Desc)

	s += strings.Join(suffix, "")

	return s
}
