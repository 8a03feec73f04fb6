package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/config"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/world"
)

// Snapshot kinds a peer writes to its local database.
const (
	SnapshotFull = "full"
	SnapshotSemi = "semi"
)

// PeerOptions holds flags for the peer command.
type PeerOptions struct {
	*RootOptions
	URL           string        // overrides peer.relay_url
	Player        int32         // overrides peer.player when set
	Database      string        // local snapshot database; empty disables snapshots
	Scopes        []int32       // local scopes to load on a fresh start
	Vote          string        // speed to vote for in every scope once caught up
	SnapshotEvery uint64        // frames between snapshots; 0 snapshots only on exit
	Poll          time.Duration // how often to step released frames
}

// NewPeerCommand creates the peer command.
func NewPeerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run a peer against a relay",
		Long: `Connect to a relay and run the reference simulation in lockstep.

The peer replays the journal from its newest seq, then steps every frame
the relay releases. With --db it resumes from the newest full snapshot
and writes new ones as it runs, so a restart only fetches what it missed.

Examples:
  lockstep peer --player 2 --scopes 0,1
  lockstep peer --url ws://relay.local:7460/ --db ./peer2.db --snapshot-every 600
  lockstep peer --player 3 --vote fast`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "relay websocket URL (overrides config)")
	cmd.Flags().Int32Var(&opts.Player, "player", 0, "player id (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "local snapshot database")
	cmd.Flags().Int32SliceVar(&opts.Scopes, "scopes", []int32{0}, "local scopes to load on a fresh start")
	cmd.Flags().StringVar(&opts.Vote, "vote", "", "vote for this speed in every loaded scope once caught up")
	cmd.Flags().Uint64Var(&opts.SnapshotEvery, "snapshot-every", 0, "frames between snapshots (0: only on exit)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 10*time.Millisecond, "how often to step released frames")

	return cmd
}

func runPeer(opts *PeerOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.URL != "" {
		cfg.Peer.RelayURL = opts.URL
	}
	if cmd.Flags().Changed("player") {
		cfg.Peer.Player = opts.Player
	}
	if opts.Poll <= 0 {
		return NewExitError(ExitCommandError, "--poll must be positive")
	}
	var vote timevote.Speed
	if opts.Vote != "" {
		if vote, err = timevote.ParseSpeed(opts.Vote); err != nil {
			return WrapExitError(ExitCommandError, "invalid --vote", err)
		}
	}

	logger := opts.newLogger(cmd.ErrOrStderr()).With("player", cfg.Peer.Player)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := newPeerController(cfg, logger)
	if err != nil {
		return err
	}

	var st *store.Store
	if opts.Database != "" {
		if st, err = store.Open(opts.Database); err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}
	if err := restorePeer(ctx, st, ctrl, opts.Scopes, logger); err != nil {
		return err
	}

	client, err := peer.Dial(ctx, cfg.Peer.RelayURL, ctrl, cfg.Peer.Player)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to reach relay at %s", cfg.Peer.RelayURL), err)
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case <-client.CaughtUp():
		logger.Info("caught up", "seq", ctrl.ReceivedSeq())
	case err := <-done:
		return WrapExitError(ExitCommandError, "relay connection ended before catch-up", err)
	case <-ctx.Done():
		return nil
	}

	if opts.Vote != "" {
		for _, scope := range ctrl.Sessions().Scopes() {
			if err := client.Vote(scope, vote); err != nil {
				return WrapExitError(ExitCommandError, "failed to send vote", err)
			}
		}
	}

	runErr := stepPeer(ctx, ctrl, st, opts.SnapshotEvery, opts.Poll, done, logger)

	if st != nil {
		if err := snapshotPeer(context.Background(), st, ctrl); err != nil {
			logger.Error("final snapshot failed", "error", err)
		} else {
			logger.Info("snapshot written", "frame", ctrl.Frame(), "seq", ctrl.LastSeq())
		}
	}
	if runErr != nil {
		return WrapExitError(ExitCommandError, "peer stopped", runErr)
	}
	return nil
}

// newPeerController builds a controller around the reference world with
// the configured limits and conflict matrix.
func newPeerController(cfg config.Config, logger *slog.Logger) (*peer.Controller, error) {
	matrix, err := cfg.Matrix()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid conflict matrix", err)
	}
	return peer.New(world.New(),
		peer.WithLogger(logger),
		peer.WithLimits(cfg.Limits()),
		peer.WithMatrix(matrix),
		peer.WithMaintenance(world.Maintain),
	), nil
}

// restorePeer loads the newest full snapshot from st, or the given scopes
// when there is none.
func restorePeer(ctx context.Context, st *store.Store, ctrl *peer.Controller, scopes []int32, logger *slog.Logger) error {
	if st != nil {
		snap, err := st.LatestSnapshot(ctx, SnapshotFull)
		switch {
		case err == nil:
			if err := ctrl.LoadState(snap.Data); err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to restore snapshot %s", snap.ID), err)
			}
			logger.Info("resumed from snapshot", "id", snap.ID, "seq", snap.Seq, "frame", ctrl.Frame())
			return nil
		case !errors.Is(err, store.ErrSnapshotNotFound):
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
	}
	for _, s := range scopes {
		if s < 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("scope %d: local scopes are not negative", s))
		}
		ctrl.LoadScope(command.Scope(s), nil)
	}
	return nil
}

// stepPeer steps released frames every poll until ctx ends or the relay
// connection does, snapshotting every `every` frames.
func stepPeer(ctx context.Context, ctrl *peer.Controller, st *store.Store, every uint64, poll time.Duration, done <-chan error, logger *slog.Logger) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastSnapshot := ctrl.Frame()
	for {
		if _, err := ctrl.Advance(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		if st != nil && every > 0 && ctrl.Frame()-lastSnapshot >= every {
			if err := snapshotPeer(ctx, st, ctrl); err != nil {
				logger.Warn("snapshot failed", "error", err)
			} else {
				logger.Debug("snapshot written", "frame", ctrl.Frame(), "seq", ctrl.LastSeq())
			}
			lastSnapshot = ctrl.Frame()
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			// Step whatever arrived before the connection ended.
			if _, aerr := ctrl.Advance(context.Background()); aerr != nil {
				return aerr
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("relay closed the connection", "frame", ctrl.Frame())
			return nil
		case <-ticker.C:
		}
	}
}

// snapshotPeer writes the full and semi-persistent state at the newest
// consumed seq.
func snapshotPeer(ctx context.Context, st *store.Store, ctrl *peer.Controller) error {
	full, err := ctrl.SaveState()
	if err != nil {
		return err
	}
	if _, err := st.WriteSnapshot(ctx, SnapshotFull, ctrl.LastSeq(), full); err != nil {
		return err
	}
	semi, err := ctrl.SemiPersistentState()
	if err != nil {
		return err
	}
	_, err = st.WriteSnapshot(ctx, SnapshotSemi, ctrl.LastSeq(), semi)
	return err
}
