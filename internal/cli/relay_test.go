package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/world"
)

// startRelay runs the relay command on a random port until the test ends
// and returns its websocket URL.
func startRelay(t *testing.T, db string) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addr := make(chan string, 1)
	done := make(chan error, 1)

	opts := &RelayOptions{
		RootOptions: &RootOptions{Format: "text"},
		Listen:      "127.0.0.1:0",
		Database:    db,
		ready:       func(a string) { addr <- a },
	}
	go func() { done <- runRelay(opts, testCommand(ctx)) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("relay did not shut down")
		}
	})

	select {
	case a := <-addr:
		return "ws://" + a + "/"
	case err := <-done:
		t.Fatalf("relay exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay never became ready")
	}
	return ""
}

func TestRelay_JournalsAndReleasesFrames(t *testing.T) {
	db := filepath.Join(t.TempDir(), "relay.db")
	url := startRelay(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := peer.New(world.New(), peer.WithLogger(quietLogger()))
	ctrl.LoadScope(0, nil)
	client, err := peer.Dial(ctx, url, ctrl, 1)
	require.NoError(t, err)
	go func() { _ = client.Run(ctx) }()
	<-client.CaughtUp()

	require.NoError(t, client.Vote(0, timevote.Fast))
	require.Eventually(t, func() bool {
		if _, err := ctrl.Advance(ctx); err != nil {
			return false
		}
		return ctrl.Frame() >= 3 && ctrl.Votes().Votes(0)[1] == timevote.Fast
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, client.Close())

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	cmds, err := st.ReadCommands(ctx, 0)
	require.NoError(t, err)

	var votes, advances int
	for _, c := range cmds {
		switch c.Opcode {
		case command.OpVote:
			votes++
			assert.Equal(t, int32(1), c.Player)
		case command.OpAdvance:
			advances++
		}
	}
	assert.Equal(t, 1, votes)
	assert.GreaterOrEqual(t, advances, 3)
}

func TestRelay_BadListenAddress(t *testing.T) {
	opts := &RelayOptions{
		RootOptions: &RootOptions{Format: "text"},
		Listen:      "256.0.0.1:-1",
		Database:    filepath.Join(t.TempDir(), "relay.db"),
	}
	err := runRelay(opts, testCommand(context.Background()))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPeer_SnapshotsAndResumes(t *testing.T) {
	t.Setenv("LOCKSTEP_PLAYER", "2")
	url := startRelay(t, filepath.Join(t.TempDir(), "relay.db"))
	peerDB := filepath.Join(t.TempDir(), "peer.db")

	runFor := func(frames uint64) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		opts := &PeerOptions{
			RootOptions:   &RootOptions{Format: "text"},
			URL:           url,
			Database:      peerDB,
			Scopes:        []int32{0},
			Vote:          "normal",
			SnapshotEvery: 1,
			Poll:          time.Millisecond,
		}
		done := make(chan error, 1)
		go func() { done <- runPeer(opts, testCommand(ctx)) }()

		require.Eventually(t, func() bool {
			st, err := store.Open(peerDB)
			if err != nil {
				return false
			}
			defer st.Close()
			snap, err := st.LatestSnapshot(ctx, SnapshotFull)
			if err != nil {
				return false
			}
			restored := peer.New(world.New(), peer.WithLogger(quietLogger()))
			return restored.LoadState(snap.Data) == nil && restored.Frame() >= frames
		}, 10*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("peer did not stop")
		}
	}

	runFor(2)
	runFor(6)

	st, err := store.Open(peerDB)
	require.NoError(t, err)
	defer st.Close()
	full, err := st.LatestSnapshot(context.Background(), SnapshotFull)
	require.NoError(t, err)
	_, err = st.LatestSnapshot(context.Background(), SnapshotSemi)
	require.NoError(t, err)

	restored := peer.New(world.New(), peer.WithLogger(quietLogger()))
	require.NoError(t, restored.LoadState(full.Data))
	assert.Equal(t, timevote.Normal, restored.Votes().Votes(0)[2])
	assert.Equal(t, restored.LastSeq(), full.Seq)
}

func TestPeer_InvalidVote(t *testing.T) {
	opts := &PeerOptions{
		RootOptions: &RootOptions{Format: "text"},
		Vote:        "ludicrous",
		Poll:        time.Millisecond,
	}
	err := runPeer(opts, testCommand(context.Background()))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPeer_RelayUnreachable(t *testing.T) {
	opts := &PeerOptions{
		RootOptions: &RootOptions{Format: "text"},
		URL:         "ws://127.0.0.1:1/",
		Poll:        time.Millisecond,
	}
	err := runPeer(opts, testCommand(context.Background()))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to reach relay")
}
