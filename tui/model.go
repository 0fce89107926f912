package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the watch timer.
type tickMsg time.Time

// state represents the current phase of the command.
type state int

const (
	stateInit       state = iota
	stateRefreshing       // refresh episode in flight
	stateRequesting       // API request in flight
	stateWatching         // notification stream open
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// maxStatusLines bounds the status log during long watch sessions.
const maxStatusLines = 200

// Model is the BubbleTea model for the client TUI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	server   string
	request  string
	since    time.Time
	elapsed  time.Duration
	received int

	// Success / error display
	summary string
	errMsg  string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

// Lipgloss styles, defined once at package level.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateWatching {
			return m, nil
		}
		m.elapsed = time.Time(msg).Sub(m.since)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── session messages ─────────────────────────────────────────────────────

	case MsgBanner:
		m.server = msg.Server
		return m, nil

	case MsgSessionRestored:
		m.addStatus(statusOK, "Using stored session")
		return m, nil

	case MsgNoSession:
		m.addStatus(statusInfo, "Not signed in")
		return m, nil

	case MsgLoggedIn:
		m.addStatus(statusOK, "Signed in as "+msg.Name)
		return m, nil

	case MsgRegistered:
		m.addStatus(statusOK, "Account "+msg.Name+" created")
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusWarn, "Signed out, stored tokens removed")
		return m, nil

	case MsgRefreshing:
		m.state = stateRefreshing
		m.addStatus(statusInfo, "Refreshing access token...")
		return m, nil

	case MsgRefreshOK:
		m.state = m.resume()
		m.addStatus(statusOK, "Token refreshed successfully")
		return m, nil

	case MsgRefreshFailed:
		m.state = m.resume()
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	// ── request messages ─────────────────────────────────────────────────────

	case MsgRequesting:
		m.request = msg.Method + " " + msg.Path
		if m.state != stateWatching {
			m.state = stateRequesting
		}
		return m, nil

	case MsgAPICallOK:
		m.addStatus(statusOK, fmt.Sprintf("API call successful (%d)", msg.Status))
		return m, nil

	case MsgAPICallFailed:
		m.addStatus(statusWarn, fmt.Sprintf("API call failed: %v", msg.Err))
		return m, nil

	case MsgAccessTokenRejected:
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, nil

	case MsgTokenRefreshedRetrying:
		m.addStatus(statusOK, "Token refreshed, retrying API call...")
		return m, nil

	// ── notification messages ────────────────────────────────────────────────

	case MsgWatching:
		m.state = stateWatching
		m.since = time.Now()
		m.addStatus(statusOK, "Notification stream open")
		return m, tickAfterSecond()

	case MsgNotification:
		m.received++
		m.addStatus(statusInfo, msg.Text)
		return m, nil

	case MsgNotificationHistory:
		m.addStatus(statusInfo, fmt.Sprintf("%d unread notification(s)", msg.Count))
		return m, nil

	case MsgNotificationRead:
		m.addStatus(statusOK, "Notification "+msg.ID+" marked as read")
		return m, nil

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// resume picks the state to return to once a refresh episode settles.
func (m Model) resume() state {
	if !m.since.IsZero() {
		return stateWatching
	}
	if m.request != "" {
		return stateRequesting
	}
	return stateInit
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

// viewMain is shown while a command is running.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  API Client  "))
	b.WriteString("\n")
	if m.server != "" {
		b.WriteString(styleDim.Render("  " + m.server))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.state {
	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...\n")

	case stateRequesting:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + styleBold.Render(m.request) + "\n")

	case stateWatching:
		b.WriteString(m.spinner.View())
		b.WriteString(" Listening for notifications  ")
		b.WriteString(styleDim.Render(fmt.Sprintf("%d received, %s", m.received, formatDuration(m.elapsed))))
		b.WriteString("\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown after the command completed.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Done"))
	b.WriteString("\n")
	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(styleBold.Render("  " + m.summary))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Command failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
	if len(m.statusLines) > maxStatusLines {
		m.statusLines = m.statusLines[len(m.statusLines)-maxStatusLines:]
	}
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
