package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lockstep/internal/command"
)

// ErrSeqConflict is returned when a different command is already journaled
// under the same seq.
var ErrSeqConflict = errors.New("seq already journaled with different content")

// AppendCommand journals a stamped command. Re-appending the identical
// command is a no-op, so a relay that crashes between journaling and
// broadcasting can safely retry.
func (s *Store) AppendCommand(ctx context.Context, cmd command.Command) error {
	if cmd.Seq == 0 {
		return fmt.Errorf("append command: unstamped command")
	}
	payload := cmd.Payload
	if payload == nil {
		payload = []byte{}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (seq, scope, target_tick, opcode, player, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		int64(cmd.Seq),
		int32(cmd.Scope),
		int64(cmd.TargetTick),
		int(cmd.Opcode),
		cmd.Player,
		payload,
	)
	if err != nil {
		return fmt.Errorf("append command: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		existing, err := s.readCommand(ctx, cmd.Seq)
		if err != nil {
			return fmt.Errorf("append command: %w", err)
		}
		if !sameCommand(existing, cmd) {
			return fmt.Errorf("append command seq %d: %w", cmd.Seq, ErrSeqConflict)
		}
	}
	return nil
}

func sameCommand(a, b command.Command) bool {
	return a.Seq == b.Seq &&
		a.Scope == b.Scope &&
		a.TargetTick == b.TargetTick &&
		a.Opcode == b.Opcode &&
		a.Player == b.Player &&
		string(a.Payload) == string(b.Payload)
}

func (s *Store) readCommand(ctx context.Context, seq uint64) (command.Command, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, scope, target_tick, opcode, player, payload
		FROM commands
		WHERE seq = ?
	`, int64(seq))
	return scanCommand(row)
}

// ReadCommands returns every journaled command with seq greater than
// afterSeq, ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadCommands(ctx context.Context, afterSeq uint64) ([]command.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, scope, target_tick, opcode, player, payload
		FROM commands
		WHERE seq > ?
		ORDER BY seq ASC
	`, int64(afterSeq))
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	cmds := []command.Command{}
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return cmds, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM commands`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCommand(row scanner) (command.Command, error) {
	var (
		seq, tick int64
		scope     int32
		opcode    int
		player    int32
		payload   []byte
	)
	if err := row.Scan(&seq, &scope, &tick, &opcode, &player, &payload); err != nil {
		return command.Command{}, fmt.Errorf("scan command: %w", err)
	}
	if len(payload) == 0 {
		payload = nil
	}
	return command.Command{
		Seq:        uint64(seq),
		Scope:      command.Scope(scope),
		TargetTick: uint64(tick),
		Opcode:     command.Opcode(opcode),
		Player:     player,
		Payload:    payload,
	}, nil
}
