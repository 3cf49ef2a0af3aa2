package graph

import (
	"fmt"
	"strings"

	"github.com/xraph/drafter"
)

// TopologyError reports a structural problem in a graph definition that
// has no more specific type. All topology errors in this package unwrap to
// drafter.ErrTopology.
type TopologyError struct {
	Kind string // "empty", "unreachable", "dead_end", "terminal_successors", "unbound"
	Msg  string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("%s: %s", drafter.ErrTopology.Error(), e.Msg)
}

func (e *TopologyError) Unwrap() error { return drafter.ErrTopology }

// CycleError reports a directed cycle. Path starts and ends with the same
// node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: cycle %s", drafter.ErrTopology.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return drafter.ErrTopology }

// UnknownNodeError reports a reference to a node that was never declared.
type UnknownNodeError struct {
	Node string
	Ref  string // where the reference appeared, e.g. "edge from parse" or "entry"
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("%s: %s references unknown node %q", drafter.ErrTopology.Error(), e.Ref, e.Node)
}

func (e *UnknownNodeError) Unwrap() error { return drafter.ErrTopology }

// MultipleEntryError reports a graph with more than one root, or a
// designated entry that is not the graph's only root.
type MultipleEntryError struct {
	Entry string
	Roots []string
}

func (e *MultipleEntryError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%s: entry %q conflicts with roots [%s]",
			drafter.ErrTopology.Error(), e.Entry, strings.Join(e.Roots, ", "))
	}
	return fmt.Sprintf("%s: multiple entry nodes [%s]", drafter.ErrTopology.Error(), strings.Join(e.Roots, ", "))
}

func (e *MultipleEntryError) Unwrap() error { return drafter.ErrTopology }

// DuplicateNodeError reports a node name declared twice.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("%s: node %q declared twice", drafter.ErrTopology.Error(), e.Node)
}

func (e *DuplicateNodeError) Unwrap() error { return drafter.ErrTopology }
