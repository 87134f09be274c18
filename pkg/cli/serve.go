package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/eventsock/pkg/config"
	"github.com/getmockd/eventsock/pkg/events"
	"github.com/getmockd/eventsock/pkg/logging"
	"github.com/getmockd/eventsock/pkg/server"
)

// serveFlags holds the values bound to the serve command's flags.
type serveFlags struct {
	configPath string
	host       string
	port       int
	path       string
	interval   time.Duration
	logLevel   string
	logFormat  string
	noMetrics  bool
}

func newServeCmd(_ *rootOptions) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the event socket server (foreground)",
		Long: `Start the event socket server and run until interrupted.

Every WebSocket client connected to --path receives a status message
{"socket":"...","session":"...","msg":"<n>"} each --interval. Sending a message
containing "bye" closes the session with 1000 "Thanks".

Flags override the configuration file and environment variables.`,
		Example: `  # Start with defaults on 127.0.0.1:8080/events
  eventsock serve

  # Faster ticks on a random port
  eventsock serve --port 0 --interval 500ms

  # Load a configuration file
  eventsock serve --config eventsock.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML or JSON configuration file")
	fl.StringVar(&f.host, "host", config.DefaultHost, "Interface to bind")
	fl.IntVarP(&f.port, "port", "p", config.DefaultPort, "Port to bind (0 picks a free port)")
	fl.StringVar(&f.path, "path", config.DefaultPath, "WebSocket endpoint path")
	fl.DurationVarP(&f.interval, "interval", "i", 2*time.Second, "Interval between status messages")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	fl.BoolVar(&f.noMetrics, "no-metrics", false, "Disable the /metrics endpoint")

	return cmd
}

// resolveConfig layers defaults, the config file, the environment and the
// explicitly set flags, in that order.
func (f *serveFlags) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("host") {
		cfg.Server.Host = f.host
	}
	if fl.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fl.Changed("path") {
		cfg.Server.Path = f.path
	}
	if fl.Changed("interval") {
		cfg.Socket.Interval = config.Duration(f.interval)
	}
	if fl.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if f.noMetrics {
		cfg.Metrics.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logCfg := cfg.Logging.LogConfig()
	logCfg.Output = cmd.ErrOrStderr()
	log := logging.New(logCfg)

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.WithLogger(log), server.WithPublisher(publisher))
	if err != nil {
		_ = publisher.Close()
		return err
	}
	if err := srv.Start(); err != nil {
		_ = publisher.Close()
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", srv.URL())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case err := <-srv.Err():
			return fmt.Errorf("server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		timeout := cfg.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newPublisher(cfg *config.Config, log *slog.Logger) (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		return events.Nop{}, nil
	}

	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.Events.NATSURL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
		ClientName:    "eventsock",
	})
	if err != nil {
		return nil, fmt.Errorf("connect event publisher: %w", err)
	}
	log.Info("publishing events to NATS", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	return pub, nil
}
