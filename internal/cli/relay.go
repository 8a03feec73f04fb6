package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/relay"
	"github.com/roach88/lockstep/internal/store"
)

// shutdownTimeout bounds how long open connections get to drain.
const shutdownTimeout = 5 * time.Second

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Listen   string // overrides relay.listen
	Database string // overrides relay.database

	// ready, when set, is called with the bound address once the relay
	// accepts connections.
	ready func(addr string)
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the command relay",
		Long: `Run the relay that orders, journals and broadcasts commands.

Peers connect over websocket. Every accepted command is stamped with the
next seq and written to the SQLite journal before it is broadcast, and a
frame is released every relay.frame_interval. Restarting on the same
database resumes the seq clock and frame.

The relay runs until interrupted (SIGINT or SIGTERM).

Examples:
  lockstep relay
  lockstep relay --listen 0.0.0.0:7460 --db ./match.db
  lockstep relay --config ./lockstep.yaml -v`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (overrides config)")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Relay.Listen = opts.Listen
	}
	if opts.Database != "" {
		cfg.Relay.Database = opts.Database
	}

	logger := opts.newLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Relay.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	r, err := relay.New(ctx, st,
		relay.WithLogger(logger),
		relay.WithLimits(cfg.Limits()),
		relay.WithInputDelay(cfg.Relay.InputDelay),
		relay.WithRateLimit(cfg.Relay.Rate, cfg.Relay.Burst),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start relay", err)
	}

	ln, err := net.Listen("tcp", cfg.Relay.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", cfg.Relay.Listen), err)
	}

	srv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: %w", err)
		}
	}()
	go func() {
		if err := r.Run(ctx, cfg.Relay.FrameInterval); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("frame clock: %w", err)
		}
	}()

	logger.Info("relay listening",
		"addr", ln.Addr().String(),
		"database", cfg.Relay.Database,
		"frame_interval", cfg.Relay.FrameInterval,
		"input_delay", cfg.Relay.InputDelay,
	)
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "seq", r.Seq(), "frame", r.Frame())
	case runErr = <-errCh:
		logger.Error("relay stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "relay failed", runErr)
	}
	return nil
}
