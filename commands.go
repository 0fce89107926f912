package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/go-authgate/api-client/api"
	"github.com/go-authgate/api-client/gateway"
	"github.com/go-authgate/api-client/notify"
	"github.com/go-authgate/api-client/session"
	"github.com/go-authgate/api-client/tui"
)

var (
	errPasswordRequired = errors.New("password required: use --password or APICLIENT_PASSWORD")
	errNotSignedIn      = errors.New("not signed in")
	errRefreshFailed    = errors.New("token refresh failed, session cleared")
)

const tokenPreviewLen = 12

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apiclient",
		Short: "Authenticated client for the learning platform API",
		Long: `apiclient signs in to the API server, keeps the session in a local token
store and sends authenticated requests. An expired access token is refreshed
once and the request retried transparently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlags(root)

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newRefreshCmd(),
		newStatusCmd(),
		newRequestCmd(http.MethodGet, false),
		newRequestCmd(http.MethodDelete, false),
		newRequestCmd(http.MethodPost, true),
		newRequestCmd(http.MethodPut, true),
		newRequestCmd(http.MethodPatch, true),
		newProfileCmd(),
		newNotificationsCmd(),
		newWatchCmd(),
	)
	return root
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <name>",
		Short: "Sign in and store the session",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().String("password", "", "account password (APICLIENT_PASSWORD env)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, a *app, _ io.Writer) error {
			flagPassword, _ := cmd.Flags().GetString("password")
			password := getConfig(flagPassword, a.cfg.Password)
			if password == "" {
				return errPasswordRequired
			}
			if err := a.session.SignIn(ctx, args[0], password); err != nil {
				return err
			}
			a.display.LoggedIn(args[0])
			a.display.Done("Signed in as " + args[0])
			return nil
		})
	}
	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().String("password", "", "account password (APICLIENT_PASSWORD env)")
	cmd.Flags().Bool("login", false, "sign in after registering")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, a *app, _ io.Writer) error {
			flagPassword, _ := cmd.Flags().GetString("password")
			password := getConfig(flagPassword, a.cfg.Password)
			if password == "" {
				return errPasswordRequired
			}
			if err := a.session.Register(ctx, args[0], password); err != nil {
				return err
			}
			a.display.Registered(args[0])

			if login, _ := cmd.Flags().GetBool("login"); login {
				if err := a.session.SignIn(ctx, args[0], password); err != nil {
					return err
				}
				a.display.LoggedIn(args[0])
			}
			a.display.Done("")
			return nil
		})
	}
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app, _ io.Writer) error {
				a.session.Logout(ctx)
				a.display.Done("")
				return nil
			})
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app, _ io.Writer) error {
				token, ok := a.session.RefreshToken(ctx)
				if !ok {
					return errRefreshFailed
				}
				a.display.Done("Access token: " + preview(token))
				return nil
			})
		},
	}
}

// statusReport is what "status" prints.
type statusReport struct {
	Server          string `json:"server"`
	Store           string `json:"store"`
	Profile         string `json:"profile"`
	SignedIn        bool   `json:"signed_in"`
	AccessToken     string `json:"access_token,omitempty"`
	HasRefreshToken bool   `json:"has_refresh_token"`
	UserID          string `json:"user_id,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(_ context.Context, a *app, out io.Writer) error {
				snap := a.session.Snapshot()
				report := statusReport{
					Server:          a.cfg.ServerURL,
					Store:           a.cfg.TokenStore,
					Profile:         a.cfg.Profile,
					SignedIn:        snap.AccessToken != "",
					HasRefreshToken: snap.RefreshToken != "",
				}
				if report.SignedIn {
					a.display.SessionRestored()
					report.AccessToken = preview(snap.AccessToken)
					report.UserID, _ = session.UserID(snap.AccessToken)
				} else {
					a.display.NoSession()
				}

				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

// newRequestCmd builds "get <path>", "post <path> [json]" and friends. A
// body of "-" is read from stdin.
func newRequestCmd(method string, withBody bool) *cobra.Command {
	use := strings.ToLower(method) + " <path>"
	args := cobra.ExactArgs(1)
	if withBody {
		use += " [json]"
		args = cobra.RangeArgs(1, 2)
	}

	return &cobra.Command{
		Use:   use,
		Short: "Send an authenticated " + method + " request and print the response body",
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			if len(args) > 1 {
				body = []byte(args[1])
				if args[1] == "-" {
					var err error
					if body, err = io.ReadAll(cmd.InOrStdin()); err != nil {
						return fmt.Errorf("failed to read request body: %w", err)
					}
				}
				if !json.Valid(body) {
					return errors.New("request body is not valid JSON")
				}
			}

			return run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				return sendRaw(ctx, a, out, method, args[0], body)
			})
		},
	}
}

func sendRaw(ctx context.Context, a *app, out io.Writer, method, path string, body []byte) error {
	a.display.Requesting(method, path)

	resp, err := a.gateway.Do(ctx, &gateway.Request{Method: method, URL: path, Body: body})
	if err != nil {
		a.display.APICallFailed(err)
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := writeBody(out, data); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &api.StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		a.display.APICallFailed(err)
		return err
	}
	a.display.APICallOK(resp.StatusCode)
	a.display.Done("")
	return nil
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the signed-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				a.display.Requesting(http.MethodGet, api.PathProfile)
				data, err := a.api.Profile(ctx)
				if err != nil {
					a.display.APICallFailed(err)
					return err
				}
				a.display.APICallOK(http.StatusOK)
				return writeBody(out, data)
			})
		},
	}
}

func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications, or mark them as read",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().String("read", "", "mark the notification with this id as read")
	cmd.Flags().Bool("read-all", false, "mark all notifications as read")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			id, _ := cmd.Flags().GetString("read")
			all, _ := cmd.Flags().GetBool("read-all")

			var (
				data json.RawMessage
				err  error
			)
			switch {
			case all:
				data, err = a.api.MarkAllNotificationsRead(ctx)
			case id != "":
				data, err = a.api.MarkNotificationRead(ctx, id)
			default:
				data, err = a.api.Notifications(ctx)
			}
			if err != nil {
				a.display.APICallFailed(err)
				return err
			}
			return writeBody(out, data)
		})
	}
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications until interrupted",
		Long: `watch prints each new notification as one JSON line on stdout. With
--mark-read, notification ids read from stdin (one per line) are marked as
read over the open stream.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().Bool("mark-read", false, "read notification ids from stdin and mark them as read")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		var ids io.Reader
		if markRead, _ := cmd.Flags().GetBool("mark-read"); markRead {
			ids = cmd.InOrStdin()
		}
		return run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			return watch(ctx, a, out, ids)
		})
	}
	return cmd
}

// watch streams notifications until ctx is done. When ids is set, each
// line read from it is sent as a markAsRead request.
func watch(ctx context.Context, a *app, out io.Writer, ids io.Reader) error {
	token := a.session.AccessToken()
	if token == "" {
		return errNotSignedIn
	}
	userID, err := session.UserID(token)
	if err != nil {
		return fmt.Errorf("cannot address notification stream: %w", err)
	}

	if a.cfg.MetricsAddr != "" {
		stop := serveMetrics(a)
		defer stop()
	}

	n, err := notify.New(notify.Config{
		BaseURL: a.cfg.ServerURL,
		UserID:  userID,
		Token:   a.session.AccessToken,
		Handler: &notifyHandler{d: a.display, out: out},
		Logger:  a.log,
	})
	if err != nil {
		return err
	}

	if ids != nil {
		go markRead(ctx, a, n, ids)
	}

	a.display.Watching()
	err = n.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.display.Done("")
		return nil
	}
	return err
}

func markRead(ctx context.Context, a *app, n *notify.Client, ids io.Reader) {
	sc := bufio.NewScanner(ids)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if err := n.MarkAsRead(ctx, id); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn("notify.mark_read", "id", id, "err", err)
			a.display.APICallFailed(fmt.Errorf("mark %s as read: %w", id, err))
		}
	}
}

// serveMetrics exposes the app registry on /metrics until the returned
// func is called.
func serveMetrics(a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics.serve", "addr", srv.Addr, "err", err)
		}
	}()
	a.log.Info("metrics.listen", "addr", srv.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// notifyHandler forwards stream events to the displayer and prints each new
// notification as one JSON line on out.
type notifyHandler struct {
	d   tui.Displayer
	out io.Writer
}

func (h *notifyHandler) NewNotification(n json.RawMessage) {
	h.d.Notification(notificationText(n))
	var line bytes.Buffer
	if err := json.Compact(&line, n); err == nil {
		line.WriteByte('\n')
		_, _ = h.out.Write(line.Bytes())
	}
}

func (h *notifyHandler) History(list []json.RawMessage) {
	h.d.NotificationHistory(len(list))
}

func (h *notifyHandler) MarkedAsRead(id string) {
	h.d.NotificationRead(id)
}

func notificationText(n json.RawMessage) string {
	var v struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(n, &v) == nil && v.Message != "" {
		return v.Message
	}
	return "You have a new notification"
}

// writeBody prints data, indented when it is JSON.
func writeBody(out io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		buf.Reset()
		buf.Write(data)
	}
	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())
	return err
}

// preview shortens a token for display.
func preview(token string) string {
	if len(token) <= tokenPreviewLen {
		return token
	}
	return token[:tokenPreviewLen] + "..."
}
