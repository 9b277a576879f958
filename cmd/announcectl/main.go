// Command announcectl sends announcements to a running announced daemon and
// shows its status.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

var globalOpts struct {
	server  string
	apiKey  string
	timeout time.Duration
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "announcectl",
	Short: "Command-line client for the lms-announce daemon",
	Long: `announcectl talks to the HTTP API of a running announced daemon.

The server address and API key can also be set with the ANNOUNCE_SERVER and
ANNOUNCE_API_KEY environment variables.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if globalOpts.verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOpts.server, "server", "s", envOr("ANNOUNCE_SERVER", "http://localhost:8095"),
		"Base URL of the daemon")
	rootCmd.PersistentFlags().StringVar(&globalOpts.apiKey, "api-key", os.Getenv("ANNOUNCE_API_KEY"),
		"API key sent as a bearer token")
	rootCmd.PersistentFlags().DurationVar(&globalOpts.timeout, "timeout", 10*time.Second,
		"Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable debug logging")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *client {
	return newHTTPClient(globalOpts.server, globalOpts.apiKey, globalOpts.timeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
