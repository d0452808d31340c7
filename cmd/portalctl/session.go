package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/solar-portal/pkg/client"
	"github.com/txn2/solar-portal/pkg/inactivity"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start a new session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.client().CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd, sess)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %s (expires %s)\n",
				sess.ID, sess.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			if err := c.EndSession(cmd.Context(), a.sessionID); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

type watchOptions struct {
	window       time.Duration
	warning      time.Duration
	syncInterval time.Duration
	login        bool
}

func newWatchCmd(a *app) *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a session alive while input arrives on stdin",
		Long: "watch runs the inactivity monitor against a session. Every input line counts as activity; " +
			"'extend' answers the expiry warning and 'logout' ends the session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.login {
				sess, err := a.client().CreateSession(cmd.Context())
				if err != nil {
					return err
				}
				a.sessionID = sess.ID
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %s\n", sess.ID)
			}
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			applyServerPolicy(cmd, c, &opts)
			return runWatch(cmd.Context(), a, c, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&opts.window, "window", 20*time.Minute, "inactivity window")
	cmd.Flags().DurationVar(&opts.warning, "warning", 2*time.Minute, "warning lead time")
	cmd.Flags().DurationVar(&opts.syncInterval, "sync-interval", 30*time.Second, "minimum spacing of heartbeats")
	cmd.Flags().BoolVar(&opts.login, "login", false, "start a new session first")
	return cmd
}

// applyServerPolicy fills the timing flags the user did not set from the
// server's session policy.
func applyServerPolicy(cmd *cobra.Command, c *client.Client, opts *watchOptions) {
	flags := cmd.Flags()
	if flags.Changed("window") && flags.Changed("warning") {
		return
	}
	info, err := c.SystemInfo(cmd.Context())
	if err != nil || info.SessionPolicy == nil {
		return
	}
	policy := info.SessionPolicy
	if !flags.Changed("window") && policy.InactivityWindowSeconds > 0 {
		opts.window = time.Duration(policy.InactivityWindowSeconds) * time.Second
	}
	if !flags.Changed("warning") && policy.WarningLeadSeconds > 0 {
		opts.warning = time.Duration(policy.WarningLeadSeconds) * time.Second
	}
}

// runWatch drives a monitor from input lines until it expires, the input
// ends or ctx is cancelled.
func runWatch(ctx context.Context, a *app, c *client.Client, opts watchOptions, in io.Reader, out io.Writer) error {
	expired := make(chan inactivity.Reason, 1)
	m, err := inactivity.New(inactivity.Config{
		InactivityWindow: opts.window,
		WarningLeadTime:  opts.warning,
		SyncInterval:     opts.syncInterval,
		Clock:            a.clock,
		Syncer:           client.NewSessionSyncer(c, a.sessionID),
		OnWarning: func(remaining time.Duration) {
			_, _ = fmt.Fprintf(out, "Session expires in %s. Type 'extend' to stay signed in.\n",
				inactivity.FormatRemaining(remaining))
		},
		OnExpire: func(reason inactivity.Reason) {
			expired <- reason
		},
	})
	if err != nil {
		return err
	}
	defer m.Dispose()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	ended := func(reason inactivity.Reason) {
		m.Wait()
		_, _ = fmt.Fprintf(out, "Session ended: %s\n", reason)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-expired:
			ended(reason)
			return nil
		case line, ok := <-lines:
			if !ok {
				// A logout on the last line expires the monitor before
				// input closes.
				select {
				case reason := <-expired:
					ended(reason)
				default:
				}
				return nil
			}
			handleWatchInput(m, line, out)
		}
	}
}

func handleWatchInput(m *inactivity.Monitor, line string, out io.Writer) {
	switch line {
	case "extend":
		if m.Extend() {
			_, _ = fmt.Fprintf(out, "Session extended (%s left)\n", inactivity.FormatRemaining(m.Remaining()))
		}
	case "logout":
		m.Logout()
	case "status":
		_, _ = fmt.Fprintf(out, "%s, %s left\n", m.State(), inactivity.FormatRemaining(m.Remaining()))
	default:
		m.Activity()
	}
}
