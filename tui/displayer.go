package tui

import (
	"fmt"
	"io"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all user-facing progress output. It satisfies
// session.Events and gateway.Events, so the session and the gateway report
// straight into it.
type Displayer interface {
	Banner(server string)
	SessionRestored()
	NoSession()
	LoggedIn(name string)
	Registered(name string)
	LoggedOut()
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	Requesting(method, path string)
	APICallOK(status int)
	APICallFailed(err error)
	AccessTokenRejected()
	TokenRefreshedRetrying()
	Watching()
	Notification(text string)
	NotificationHistory(count int)
	NotificationRead(id string)
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner(server string) {
	fmt.Fprintf(p.w, "=== API client (%s) ===\n", server)
}

func (p *PlainDisplayer) SessionRestored() {
	fmt.Fprintln(p.w, "Using stored session")
}

func (p *PlainDisplayer) NoSession() {
	fmt.Fprintln(p.w, "Not signed in")
}

func (p *PlainDisplayer) LoggedIn(name string) {
	fmt.Fprintf(p.w, "Signed in as %s\n", name)
}

func (p *PlainDisplayer) Registered(name string) {
	fmt.Fprintf(p.w, "Account %s created\n", name)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Signed out, stored tokens removed")
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) Requesting(method, path string) {
	fmt.Fprintf(p.w, "%s %s\n", method, path)
}

func (p *PlainDisplayer) APICallOK(status int) {
	fmt.Fprintf(p.w, "API call successful (%d)\n", status)
}

func (p *PlainDisplayer) APICallFailed(err error) {
	fmt.Fprintf(p.w, "API call failed: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) TokenRefreshedRetrying() {
	fmt.Fprintln(p.w, "Token refreshed, retrying API call...")
}

func (p *PlainDisplayer) Watching() {
	fmt.Fprintln(p.w, "Listening for notifications (Ctrl+C to stop)")
}

func (p *PlainDisplayer) Notification(text string) {
	fmt.Fprintf(p.w, "Notification: %s\n", text)
}

func (p *PlainDisplayer) NotificationHistory(count int) {
	fmt.Fprintf(p.w, "%d unread notification(s)\n", count)
}

func (p *PlainDisplayer) NotificationRead(id string) {
	fmt.Fprintf(p.w, "Notification %s marked as read\n", id)
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)           {}
func (NoopDisplayer) SessionRestored()          {}
func (NoopDisplayer) NoSession()                {}
func (NoopDisplayer) LoggedIn(_ string)         {}
func (NoopDisplayer) Registered(_ string)       {}
func (NoopDisplayer) LoggedOut()                {}
func (NoopDisplayer) Refreshing()               {}
func (NoopDisplayer) RefreshOK()                {}
func (NoopDisplayer) RefreshFailed(_ error)     {}
func (NoopDisplayer) Requesting(_, _ string)    {}
func (NoopDisplayer) APICallOK(_ int)           {}
func (NoopDisplayer) APICallFailed(_ error)     {}
func (NoopDisplayer) AccessTokenRejected()      {}
func (NoopDisplayer) TokenRefreshedRetrying()   {}
func (NoopDisplayer) Watching()                 {}
func (NoopDisplayer) Notification(_ string)     {}
func (NoopDisplayer) NotificationHistory(_ int) {}
func (NoopDisplayer) NotificationRead(_ string) {}
func (NoopDisplayer) Done(_ string)             {}
func (NoopDisplayer) Fatal(_ error)             {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(server string) {
	t.p.Send(MsgBanner{Server: server})
}

func (t *ProgramDisplayer) SessionRestored() {
	t.p.Send(MsgSessionRestored{})
}

func (t *ProgramDisplayer) NoSession() {
	t.p.Send(MsgNoSession{})
}

func (t *ProgramDisplayer) LoggedIn(name string) {
	t.p.Send(MsgLoggedIn{Name: name})
}

func (t *ProgramDisplayer) Registered(name string) {
	t.p.Send(MsgRegistered{Name: name})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) Requesting(method, path string) {
	t.p.Send(MsgRequesting{Method: method, Path: path})
}

func (t *ProgramDisplayer) APICallOK(status int) {
	t.p.Send(MsgAPICallOK{Status: status})
}

func (t *ProgramDisplayer) APICallFailed(err error) {
	t.p.Send(MsgAPICallFailed{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) TokenRefreshedRetrying() {
	t.p.Send(MsgTokenRefreshedRetrying{})
}

func (t *ProgramDisplayer) Watching() {
	t.p.Send(MsgWatching{})
}

func (t *ProgramDisplayer) Notification(text string) {
	t.p.Send(MsgNotification{Text: text})
}

func (t *ProgramDisplayer) NotificationHistory(count int) {
	t.p.Send(MsgNotificationHistory{Count: count})
}

func (t *ProgramDisplayer) NotificationRead(id string) {
	t.p.Send(MsgNotificationRead{ID: id})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
