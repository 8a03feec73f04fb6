package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/lockstep/internal/command"
)

// MemJournal is an in-memory command journal with the same contract as the
// SQLite store: seqs start at 1 and must arrive in order.
//
// Thread-safety: MemJournal is safe for concurrent use.
type MemJournal struct {
	mu   sync.Mutex
	cmds []command.Command

	// FailAppend, when set, is returned by the next AppendCommand.
	FailAppend error
}

// NewMemJournal creates an empty journal.
func NewMemJournal() *MemJournal {
	return &MemJournal{}
}

// AppendCommand records cmd.
func (j *MemJournal) AppendCommand(_ context.Context, cmd command.Command) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.FailAppend; err != nil {
		j.FailAppend = nil
		return err
	}
	if want := uint64(len(j.cmds)) + 1; cmd.Seq != want {
		return fmt.Errorf("append seq %d: expected %d", cmd.Seq, want)
	}
	j.cmds = append(j.cmds, cmd)
	return nil
}

// ReadCommands returns every command with seq > afterSeq.
func (j *MemJournal) ReadCommands(_ context.Context, afterSeq uint64) ([]command.Command, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if afterSeq >= uint64(len(j.cmds)) {
		return []command.Command{}, nil
	}
	return append([]command.Command(nil), j.cmds[afterSeq:]...), nil
}

// LastSeq returns the highest journaled seq, or 0.
func (j *MemJournal) LastSeq(context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return uint64(len(j.cmds)), nil
}

// Commands returns a copy of everything journaled.
func (j *MemJournal) Commands() []command.Command {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]command.Command(nil), j.cmds...)
}
