package tui

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{ Server string }

// MsgSessionRestored signals that a stored session was found.
type MsgSessionRestored struct{}

// MsgNoSession signals that no stored session exists.
type MsgNoSession struct{}

// MsgLoggedIn signals a successful sign-in.
type MsgLoggedIn struct{ Name string }

// MsgRegistered signals that an account was created.
type MsgRegistered struct{ Name string }

// MsgLoggedOut signals that the session was cleared.
type MsgLoggedOut struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgRequesting signals that an API request was sent.
type MsgRequesting struct{ Method, Path string }

// MsgAPICallOK signals that an API call succeeded.
type MsgAPICallOK struct{ Status int }

// MsgAPICallFailed signals that an API call failed.
type MsgAPICallFailed struct{ Err error }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgTokenRefreshedRetrying signals that the token was refreshed and a retry is starting.
type MsgTokenRefreshedRetrying struct{}

// MsgWatching signals that the notification stream is open.
type MsgWatching struct{}

// MsgNotification carries one incoming notification text.
type MsgNotification struct{ Text string }

// MsgNotificationHistory reports how many unread notifications were replayed.
type MsgNotificationHistory struct{ Count int }

// MsgNotificationRead signals the server acknowledged a read marker.
type MsgNotificationRead struct{ ID string }

// MsgDone signals successful completion of the command.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
