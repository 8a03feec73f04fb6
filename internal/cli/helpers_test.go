package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/relay"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/world"
)

const scenariosDir = "../harness/testdata/scenarios"

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON CLIResponse and re-decodes its data into v.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.CLIResponse
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCommand returns a bare command carrying ctx, for calling run
// functions directly.
func testCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd
}

// seedJournal writes a short match to a new database and returns its path:
// a spawn, two votes and three frames.
func seedJournal(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	r, err := relay.New(ctx, st, relay.WithLogger(quietLogger()))
	require.NoError(t, err)

	spawn, err := world.Action{Kind: world.Spawn, Entity: 1, Amount: 5}.Encode()
	require.NoError(t, err)
	fast, err := timevote.EncodeVote(timevote.Fast)
	require.NoError(t, err)
	normal, err := timevote.EncodeVote(timevote.Normal)
	require.NoError(t, err)

	for _, cmd := range []command.Command{
		command.New(0, 0, command.OpSimulation, 1, spawn),
		command.New(0, 0, command.OpVote, 1, fast),
		command.New(0, 0, command.OpVote, 2, normal),
	} {
		_, err := r.Submit(ctx, cmd)
		require.NoError(t, err)
	}
	for range 3 {
		_, err := r.Advance(ctx)
		require.NoError(t, err)
	}
	return path
}
