package syncwork

import (
	"strings"
)

// Trace records a human-readable tree of every primitive a Worker reads or
// writes. Attach one with WithTrace when diagnosing a desync: two peers'
// traces of the same value can be diffed line by line.
//
// A nil *Trace is valid and records nothing.
type Trace struct {
	root   traceNode
	stack  []*traceNode
	paused int

	// opened has one entry per unmatched Enter: whether it pushed a node.
	opened []bool
}

type traceNode struct {
	label    string
	children []*traceNode
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	t := &Trace{}
	t.stack = []*traceNode{&t.root}
	return t
}

func (t *Trace) active() bool {
	return t != nil && t.paused == 0
}

func (t *Trace) top() *traceNode {
	return t.stack[len(t.stack)-1]
}

// Enter opens a structure node; subsequent records nest under it until Exit.
// An Enter made while paused opens nothing, and its Exit closes nothing.
func (t *Trace) Enter(name string) {
	if t == nil {
		return
	}
	if !t.active() {
		t.opened = append(t.opened, false)
		return
	}
	n := &traceNode{label: name}
	top := t.top()
	top.children = append(top.children, n)
	t.stack = append(t.stack, n)
	t.opened = append(t.opened, true)
}

// Exit closes the node opened by the matching Enter, paused or not.
func (t *Trace) Exit() {
	if t == nil || len(t.opened) == 0 {
		return
	}
	pushed := t.opened[len(t.opened)-1]
	t.opened = t.opened[:len(t.opened)-1]
	if pushed && len(t.stack) > 1 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

// Record adds a leaf for one primitive.
func (t *Trace) Record(name, kind, value string) {
	if !t.active() {
		return
	}
	label := name + ": " + kind
	if value != "" {
		label += " = " + value
	}
	top := t.top()
	top.children = append(top.children, &traceNode{label: label})
}

// Pause suspends recording. Used around byte blocks whose internal structure
// the trace cannot describe. Calls nest; each Pause needs a Resume.
func (t *Trace) Pause() {
	if t == nil {
		return
	}
	t.paused++
}

// Resume undoes one Pause.
func (t *Trace) Resume() {
	if t == nil || t.paused == 0 {
		return
	}
	t.paused--
}

// String renders the tree, two spaces of indentation per level.
func (t *Trace) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range t.root.children {
		writeNode(&b, c, 0)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *traceNode, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.label)
	b.WriteByte('\n')
	for _, c := range n.children {
		writeNode(b, c, depth+1)
	}
}
