package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/config"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Scopes   []int32
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Commands      int            `json:"commands"`
	LastSeq       uint64         `json:"last_seq"`
	Frames        uint64         `json:"frames"`
	Opcodes       map[string]int `json:"opcodes"`
	Hashes        ReplayHashes   `json:"hashes"`
	Deterministic bool           `json:"deterministic"`
}

// ReplayHashes are the state hashes reached by each replay.
type ReplayHashes struct {
	Batch       string `json:"batch"`       // every command received, then every frame stepped
	Incremental string `json:"incremental"` // frames stepped as each command arrives
	Restored    string `json:"restored"`    // batch state saved and loaded into a fresh controller
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a relay journal and verify determinism",
		Long: `Replay a relay journal through fresh controllers and compare the results.

The journal is replayed twice, once with every command delivered before
stepping and once stepping as each command arrives, and the first run's
state is saved and loaded into a third controller. All three must reach
the same state hash.

Exit codes:
  0 - All replays reached the same state
  1 - Determinism verification failed (hashes differ)
  2 - Command error (database not found, etc.)

Examples:
  lockstep replay --db ./lockstep.db
  lockstep replay --db ./match.db --scopes 0,1,2
  lockstep replay --db ./lockstep.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (defaults to relay.database)")
	cmd.Flags().Int32SliceVar(&opts.Scopes, "scopes", []int32{0}, "local scopes the peers had loaded")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database == "" {
		opts.Database = cfg.Relay.Database
	}
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Replaying %s", opts.Database)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cmds, err := st.ReadCommands(ctx, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	// Controller logs are noise here unless asked for.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = opts.newLogger(formatter.GetErrWriter())
	}

	result, err := replayJournal(ctx, cfg, cmds, opts.Scopes, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}

	var failure *ExitError
	if !result.Deterministic {
		failure = NewExitError(ExitFailure, "replays reached different states")
	}
	return formatter.Result(result, ErrCodeDeterminism, failure, func(w io.Writer) {
		printReplay(w, result, opts.Verbose)
	})
}

// replayJournal runs cmds through three controllers and compares hashes.
func replayJournal(ctx context.Context, cfg config.Config, cmds []command.Command, scopes []int32, logger *slog.Logger) (*ReplayResult, error) {
	result := &ReplayResult{Commands: len(cmds), Opcodes: make(map[string]int)}
	for _, c := range cmds {
		result.Opcodes[c.Opcode.String()]++
		result.LastSeq = max(result.LastSeq, c.Seq)
	}

	fresh := func() (*peer.Controller, error) {
		ctrl, err := newPeerController(cfg, logger)
		if err != nil {
			return nil, err
		}
		for _, s := range scopes {
			if s < 0 {
				return nil, fmt.Errorf("scope %d: local scopes are not negative", s)
			}
			ctrl.LoadScope(command.Scope(s), nil)
		}
		return ctrl, nil
	}

	batch, err := fresh()
	if err != nil {
		return nil, err
	}
	for _, c := range cmds {
		batch.Receive(c)
	}
	if _, err := batch.Advance(ctx); err != nil {
		return nil, fmt.Errorf("batch replay: %w", err)
	}

	incremental, err := fresh()
	if err != nil {
		return nil, err
	}
	for _, c := range cmds {
		incremental.Receive(c)
		if _, err := incremental.Advance(ctx); err != nil {
			return nil, fmt.Errorf("incremental replay: %w", err)
		}
	}

	saved, err := batch.SaveState()
	if err != nil {
		return nil, err
	}
	restored, err := newPeerController(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := restored.LoadState(saved); err != nil {
		return nil, err
	}

	hashes := make([]string, 0, 3)
	for _, ctrl := range []*peer.Controller{batch, incremental, restored} {
		h, err := ctrl.StateHash()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h.String())
	}

	result.Frames = batch.Frame()
	result.Hashes = ReplayHashes{Batch: hashes[0], Incremental: hashes[1], Restored: hashes[2]}
	result.Deterministic = hashes[0] == hashes[1] && hashes[0] == hashes[2] && incremental.Frame() == batch.Frame()
	return result, nil
}

func printReplay(w io.Writer, result *ReplayResult, verbose bool) {
	if result.Commands == 0 {
		fmt.Fprintln(w, "No commands found in journal.")
		return
	}

	fmt.Fprintf(w, "Replayed %d command(s) through seq %d, %d frame(s)\n", result.Commands, result.LastSeq, result.Frames)
	if verbose {
		names := make([]string, 0, len(result.Opcodes))
		for name := range result.Opcodes {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-16s %d\n", name, result.Opcodes[name])
		}
	}

	fmt.Fprintln(w)
	if result.Deterministic {
		fmt.Fprintf(w, "✓ Deterministic: %s\n", result.Hashes.Batch)
		return
	}
	fmt.Fprintln(w, "✗ Non-deterministic")
	fmt.Fprintf(w, "  batch:       %s\n", result.Hashes.Batch)
	fmt.Fprintf(w, "  incremental: %s\n", result.Hashes.Incremental)
	fmt.Fprintf(w, "  restored:    %s\n", result.Hashes.Restored)
}
