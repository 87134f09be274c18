package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	jsonOutput bool
}

// NewRootCmd builds the eventsock command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "eventsock",
		Short: "eventsock serves and consumes periodic WebSocket status events",
		Long: `eventsock runs a WebSocket endpoint that pushes a JSON status message to every
connected client at a fixed interval. A client that sends a message containing
"bye" is disconnected with status 1000 "Thanks".

Configuration can be provided via flags, environment variables (EVENTSOCK_PORT,
EVENTSOCK_LOG_LEVEL, EVENTSOCK_NATS_URL), or a YAML/JSON configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error
	}

	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output command results in JSON format")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newConnectCmd(opts),
		newVersionCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}
