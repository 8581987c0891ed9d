// Package tui renders the interactive device authorization screen.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/watchsweep/internal/auth"
)

// CodeMsg is sent when the device code has been issued.
// It is exported so that tests can inject it directly into AuthModel.Update.
type CodeMsg struct {
	Code   auth.DeviceCode
	Issued time.Time
}

// OutcomeMsg is sent once the authentication attempt has ended.
type OutcomeMsg struct {
	Kind   auth.OutcomeKind
	Reason error
}

// TickMsg refreshes the countdown.
type TickMsg time.Time

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	codeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1).Border(lipgloss.RoundedBorder())
	dimStyle     = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const separator = "────────────────────────────────────────────────────────────\n"

// AuthModel is the Bubbletea model for the device authorization screen.
type AuthModel struct {
	code      auth.DeviceCode
	issued    time.Time
	now       time.Time
	outcome   *OutcomeMsg
	cancelled bool
	cancel    context.CancelFunc
}

// NewAuthModel creates the screen model. cancel is called when the user quits.
func NewAuthModel(cancel context.CancelFunc) AuthModel {
	return AuthModel{cancel: cancel}
}

// Init starts the countdown ticker.
func (m AuthModel) Init() tea.Cmd {
	return tickEvery(time.Second)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles incoming messages and key events.
func (m AuthModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case CodeMsg:
		m.code = msg.Code
		m.issued = msg.Issued
		m.now = msg.Issued
		return m, nil

	case TickMsg:
		m.now = time.Time(msg)
		if m.outcome != nil {
			return m, nil
		}
		return m, tickEvery(time.Second)

	case OutcomeMsg:
		m.outcome = &msg
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

// Cancelled reports whether the user quit the screen.
func (m AuthModel) Cancelled() bool {
	return m.cancelled
}

// View renders the screen.
func (m AuthModel) View() string {
	header := titleStyle.Render(" watchsweep: Trakt authorization") + "\n"

	var body string
	switch {
	case m.outcome != nil:
		body = "\n " + m.renderOutcome() + "\n\n"
		return header + separator + body
	case m.cancelled:
		return header + separator + "\n Cancelled.\n\n"
	case m.code.UserCode == "":
		body = "\n Requesting authorization...\n\n"
	default:
		body = fmt.Sprintf("\n Visit:  %s\n Code:\n%s\n\n Waiting for authorization... %s\n\n",
			m.code.VerificationURL, codeStyle.Render(m.code.UserCode), dimStyle.Render("expires in "+m.remaining()))
	}

	footer := dimStyle.Render(" q: cancel") + "\n"
	return header + separator + body + separator + footer
}

func (m AuthModel) renderOutcome() string {
	switch m.outcome.Kind {
	case auth.OutcomeAuthenticated:
		return successStyle.Render("Authenticated.")
	case auth.OutcomeExpired:
		return failureStyle.Render("The code expired before it was entered. Run again to get a new one.")
	default:
		if m.outcome.Reason != nil {
			return failureStyle.Render("Authentication aborted: " + m.outcome.Reason.Error())
		}
		return failureStyle.Render("Authentication aborted.")
	}
}

func (m AuthModel) remaining() string {
	left := time.Duration(m.code.ExpiresIn)*time.Second - m.now.Sub(m.issued)
	if left < 0 {
		left = 0
	}
	left = left.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(left.Minutes()), int(left.Seconds())%60)
}

// AuthScreen implements auth.Notifier on top of a Bubbletea program.
// The program only starts when a device code is shown, so a stored credential never opens the screen.
type AuthScreen struct {
	program *tea.Program
	once    sync.Once
	started chan struct{}
	done    chan struct{}
	err     error
}

// Ensure AuthScreen implements Notifier.
var _ auth.Notifier = (*AuthScreen)(nil)

// NewAuthScreen creates the screen. cancel is called if the user quits before the attempt ends.
func NewAuthScreen(cancel context.CancelFunc, opts ...tea.ProgramOption) *AuthScreen {
	return &AuthScreen{
		program: tea.NewProgram(NewAuthModel(cancel), opts...),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *AuthScreen) start() {
	close(s.started)
	go func() {
		defer close(s.done)
		_, s.err = s.program.Run()
	}()
}

func (s *AuthScreen) isStarted() bool {
	select {
	case <-s.started:
		return true
	default:
		return false
	}
}

func (s *AuthScreen) ShowCode(code auth.DeviceCode) {
	s.once.Do(s.start)
	s.program.Send(CodeMsg{Code: code, Issued: time.Now()})
}

func (s *AuthScreen) Authenticated() {
	s.finish(OutcomeMsg{Kind: auth.OutcomeAuthenticated})
}

func (s *AuthScreen) Expired() {
	s.finish(OutcomeMsg{Kind: auth.OutcomeExpired})
}

func (s *AuthScreen) Aborted(reason error) {
	s.finish(OutcomeMsg{Kind: auth.OutcomeAborted, Reason: reason})
}

func (s *AuthScreen) finish(msg OutcomeMsg) {
	if !s.isStarted() {
		return
	}
	s.program.Send(msg)
	<-s.done
}

// Wait blocks until the screen has closed and returns the program error, if any.
// It returns immediately when the screen never opened.
func (s *AuthScreen) Wait() error {
	if !s.isStarted() {
		return nil
	}
	<-s.done
	return s.err
}
