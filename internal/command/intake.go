package command

import "sync"

// Intake is a thread-safe FIFO between network goroutines and the
// simulation goroutine.
//
// The intake is unbounded: once the relay has ordered a command every peer
// must apply it, so there is nothing a full intake could safely drop. Flow
// control happens at the relay, before ordering.
//
// The intake uses a channel for signaling so the simulation loop can wait
// for work with a select on its context.
type Intake struct {
	mu     sync.Mutex
	cmds   []Command
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewIntake creates an empty intake.
func NewIntake() *Intake {
	return &Intake{
		cmds:   make([]Command, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push appends cmd. Safe from any goroutine. Returns false after Close.
func (q *Intake) Push(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.cmds = append(q.cmds, cmd)

	// Non-blocking: a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the front command without blocking.
func (q *Intake) TryPop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.cmds) == 0 {
		return Command{}, false
	}

	cmd := q.cmds[0]
	q.cmds[0] = Command{}

	if len(q.cmds) == 1 {
		q.cmds = q.cmds[:0]
	} else {
		q.cmds = q.cmds[1:]
	}

	return cmd, true
}

// DrainInto moves every queued command into log in arrival order and
// returns how many were moved. Called by the simulation goroutine at a tick
// boundary.
func (q *Intake) DrainInto(log *Log) int {
	q.mu.Lock()
	cmds := q.cmds
	q.cmds = make([]Command, 0, 64)
	q.mu.Unlock()

	for _, cmd := range cmds {
		log.Schedule(cmd)
	}
	return len(cmds)
}

// Retain drops every queued command for which keep returns false and
// returns how many remain. Order is preserved.
func (q *Intake) Retain(keep func(Command) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.cmds[:0]
	for _, cmd := range q.cmds {
		if keep(cmd) {
			kept = append(kept, cmd)
		}
	}
	clear(q.cmds[len(kept):])
	q.cmds = kept
	return len(kept)
}

// Wait returns a channel that signals when commands may be available. It is
// closed by Close.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-intake.Wait():
//	    intake.DrainInto(log)
//	}
func (q *Intake) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *Intake) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

// Close rejects further pushes and wakes any waiter.
func (q *Intake) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
