// up.go implements the daemon command: it wires the transport, outbox,
// health monitor, and coordinator together, starts the local API, and runs
// until interrupted.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaylens/relaylens/internal/backoff"
	"github.com/relaylens/relaylens/internal/config"
	"github.com/relaylens/relaylens/internal/coordinator"
	"github.com/relaylens/relaylens/internal/health"
	"github.com/relaylens/relaylens/internal/logger"
	"github.com/relaylens/relaylens/internal/netwatch"
	"github.com/relaylens/relaylens/internal/outbox"
	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/server"
	"github.com/relaylens/relaylens/internal/stats"
	"github.com/relaylens/relaylens/internal/transport"
	"github.com/relaylens/relaylens/internal/visibility"
)

// shutdownTimeout bounds the graceful stop of the local API.
const shutdownTimeout = 10 * time.Second

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the relay client daemon",
	Long: `Starts the relay client: connects to the configured relay, keeps
the connection alive across failures, and serves the local API and UI
WebSocket endpoint until interrupted.`,
	RunE: runUp,
}

var upNoConnect bool

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVar(&upNoConnect, "no-connect", false,
		"start without connecting; use POST /api/connect to connect")
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.With("up")

	relayCfg := transport.Config{
		URL:      cfg.Relay.URL,
		Username: cfg.Relay.Username,
		Password: cfg.Relay.Password,
		TLS: transport.TLSOptions{
			CAFile:             cfg.Relay.TLS.CAFile,
			CertFile:           cfg.Relay.TLS.CertFile,
			KeyFile:            cfg.Relay.TLS.KeyFile,
			InsecureSkipVerify: cfg.Relay.TLS.InsecureSkipVerify,
		},
	}

	link := transport.New(logger.With("transport"))
	queue := outbox.New(cfg.Outbox.Capacity, cfg.Outbox.TTL())
	monitor := health.New(cfg.Heartbeat.Interval(), logger.With("health"))
	policy := backoff.Policy{
		Base: cfg.Reconnection.BaseDelay(),
		Max:  cfg.Reconnection.MaxDelay(),
	}

	coord := coordinator.New(link, queue, monitor, policy,
		cfg.Reconnection.MaxAttempts, logger.With("coordinator"))

	tracker := visibility.NewTracker(coord)
	hub := server.NewHub(tracker, logger.With("hub"))
	collector := stats.NewCollector(0)

	subs := relay.NewSubscriptionSet()
	for _, topic := range cfg.Relay.Topics {
		subs.Add(topic)
	}

	clientID := cfg.Relay.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	srv := server.New(cfg.Server.Listen, coord, hub, collector, subs,
		relayCfg, clientID, logger.With("server"))
	coord.AddListener(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord.Start(ctx)

	watcher := netwatch.New(coord, 0, logger.With("netwatch"))
	watcher.Start(ctx)

	if cfg.Relay.AutoConnect && !upNoConnect {
		coord.Connect(relayCfg)
	} else {
		log.Info().Msg("waiting for explicit connect via the local api")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	log.Info().
		Str("relay", cfg.Relay.URL).
		Str("listen", cfg.Server.Listen).
		Str("client_id", clientID).
		Msg("relaylens started")

	select {
	case err := <-serveErr:
		stop()
		<-coord.Done()
		if err != nil {
			return fmt.Errorf("local api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("local api shutdown incomplete")
	}

	<-coord.Done()
	log.Info().Msg("relaylens stopped")
	return nil
}
