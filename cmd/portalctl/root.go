package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/txn2/solar-portal/internal/server"
	"github.com/txn2/solar-portal/pkg/client"
	"github.com/txn2/solar-portal/pkg/clock"
)

// Environment variables read as flag defaults.
const (
	envServer  = "PORTAL_URL"
	envAPIKey  = "PORTAL_API_KEY"
	envToken   = "PORTAL_TOKEN"
	envSession = "PORTAL_SESSION"
)

var errSessionRequired = errors.New("a session is required: pass --session or set " + envSession)

// app carries the global flags and the dependencies commands share.
type app struct {
	serverURL string
	apiKey    string
	token     string
	sessionID string
	asJSON    bool

	clock clock.Clock
}

func newApp() *app {
	return &app{clock: clock.Real()}
}

func (a *app) client() *client.Client {
	return client.New(a.serverURL,
		client.WithAPIKey(a.apiKey),
		client.WithBearerToken(a.token),
		client.WithSessionID(a.sessionID),
	)
}

func (a *app) sessionClient() (*client.Client, error) {
	if a.sessionID == "" {
		return nil, errSessionRequired
	}
	return a.client(), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command-line client for the solar customer portal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.serverURL, "server", envOr(envServer, "http://127.0.0.1:8080"), "portal base URL")
	flags.StringVar(&a.apiKey, "api-key", os.Getenv(envAPIKey), "API key")
	flags.StringVar(&a.token, "token", os.Getenv(envToken), "bearer token")
	flags.StringVar(&a.sessionID, "session", os.Getenv(envSession), "session ID for notification commands")
	flags.BoolVar(&a.asJSON, "json", false, "print JSON output")

	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWatchCmd(a),
		newNotificationsCmd(a),
		newHashKeyCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), server.VersionString())
			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
