// Package graph defines workflow topologies: named nodes joined by
// directed, non-conditional edges, validated once at construction.
//
// A node becomes ready when every one of its predecessors has completed
// in the current execution. A node with several successors fans out; a
// node with several predecessors is a join. The graph shape never depends
// on state data.
package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/drafter/id"
	"github.com/xraph/drafter/state"
)

// NodeFunc is the body of a node. It reads a snapshot of the execution
// state and returns the partial update to merge. Returning the error from
// Interrupt suspends the execution at this node.
type NodeFunc func(ctx context.Context, s state.Snapshot, inv Invocation) (state.Update, error)

// Invocation identifies one run of a node body.
type Invocation struct {
	ExecutionID id.ExecutionID
	Graph       string
	Node        string

	// Resumed is true when the node is re-entered after a suspension.
	Resumed bool

	// Timeout is the deadline the executor resolved for this run.
	Timeout time.Duration

	// Params are the static parameters declared on the node.
	Params map[string]any
}

// Node is a named unit of work.
type Node struct {
	Name        string
	Func        NodeFunc
	Description string

	// Timeout overrides the executor's default node deadline when > 0.
	Timeout time.Duration

	Params map[string]any
}

// Edge is a directed dependency: To may start only after From completed.
type Edge struct {
	From string
	To   string
}

// Definition is the declarative input to New.
type Definition struct {
	Name    string
	Version int
	Schema  *state.Schema
	Nodes   []Node
	Edges   []Edge

	// Entry is the node with no predecessors. When empty it is derived
	// from the edges.
	Entry string

	// Terminal is the node whose completion ends an execution. When empty
	// it is derived as the only node without successors.
	Terminal string
}

// Graph is an immutable, validated topology.
type Graph struct {
	name     string
	version  int
	schema   *state.Schema
	nodes    []Node
	index    map[string]int
	edges    []Edge
	succ     map[string][]string
	pred     map[string][]string
	entry    string
	terminal string
}

// New validates def and builds a Graph. Every failure is a topology error
// and is returned before any node can run.
func New(def Definition) (*Graph, error) {
	if def.Name == "" {
		return nil, &TopologyError{Kind: "empty", Msg: "graph has no name"}
	}
	if def.Schema == nil {
		return nil, &TopologyError{Kind: "empty", Msg: fmt.Sprintf("graph %q has no state schema", def.Name)}
	}
	if len(def.Nodes) == 0 {
		return nil, &TopologyError{Kind: "empty", Msg: fmt.Sprintf("graph %q has no nodes", def.Name)}
	}

	version := def.Version
	if version <= 0 {
		version = 1
	}

	g := &Graph{
		name:    def.Name,
		version: version,
		schema:  def.Schema,
		nodes:   make([]Node, 0, len(def.Nodes)),
		index:   make(map[string]int, len(def.Nodes)),
		succ:    make(map[string][]string, len(def.Nodes)),
		pred:    make(map[string][]string, len(def.Nodes)),
	}

	for _, n := range def.Nodes {
		if n.Name == "" {
			return nil, &TopologyError{Kind: "empty", Msg: "node with empty name"}
		}
		if _, dup := g.index[n.Name]; dup {
			return nil, &DuplicateNodeError{Node: n.Name}
		}
		if n.Func == nil {
			return nil, &TopologyError{Kind: "unbound", Msg: fmt.Sprintf("node %q has no function", n.Name)}
		}
		g.index[n.Name] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	seen := make(map[Edge]bool, len(def.Edges))
	for _, e := range def.Edges {
		if _, ok := g.index[e.From]; !ok {
			return nil, &UnknownNodeError{Node: e.From, Ref: fmt.Sprintf("edge to %q", e.To)}
		}
		if _, ok := g.index[e.To]; !ok {
			return nil, &UnknownNodeError{Node: e.To, Ref: fmt.Sprintf("edge from %q", e.From)}
		}
		if e.From == e.To {
			return nil, &CycleError{Path: []string{e.From, e.To}}
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.edges = append(g.edges, e)
		g.succ[e.From] = append(g.succ[e.From], e.To)
		g.pred[e.To] = append(g.pred[e.To], e.From)
	}
	for name := range g.succ {
		g.sortByDeclaration(g.succ[name])
	}
	for name := range g.pred {
		g.sortByDeclaration(g.pred[name])
	}

	if def.Entry != "" {
		if _, ok := g.index[def.Entry]; !ok {
			return nil, &UnknownNodeError{Node: def.Entry, Ref: "entry"}
		}
	}
	if def.Terminal != "" {
		if _, ok := g.index[def.Terminal]; !ok {
			return nil, &UnknownNodeError{Node: def.Terminal, Ref: "terminal"}
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.resolveEntry(def.Entry); err != nil {
		return nil, err
	}
	if err := g.resolveTerminal(def.Terminal); err != nil {
		return nil, err
	}
	if err := g.checkReachable(); err != nil {
		return nil, err
	}
	return g, nil
}

// Must is like New but panics on error. Use for package-level graphs.
func Must(def Definition) *Graph {
	g, err := New(def)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Graph) sortByDeclaration(names []string) {
	slices.SortFunc(names, func(a, b string) int { return g.index[a] - g.index[b] })
}

// checkAcyclic runs a three-colour DFS from every node in declaration
// order and reports the first back edge as a cycle.
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = grey
		path = append(path, n)
		for _, next := range g.succ[n] {
			switch color[next] {
			case grey:
				start := slices.Index(path, next)
				cycle := append(slices.Clone(path[start:]), next)
				return &CycleError{Path: cycle}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return nil
	}

	for _, n := range g.nodes {
		if color[n.Name] == white {
			if err := visit(n.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) resolveEntry(entry string) error {
	roots := g.Roots()
	if len(roots) > 1 {
		return &MultipleEntryError{Entry: entry, Roots: roots}
	}
	// An acyclic non-empty graph always has at least one root.
	if entry != "" && roots[0] != entry {
		return &MultipleEntryError{Entry: entry, Roots: roots}
	}
	g.entry = roots[0]
	return nil
}

func (g *Graph) resolveTerminal(terminal string) error {
	var sinks []string
	for _, n := range g.nodes {
		if len(g.succ[n.Name]) == 0 {
			sinks = append(sinks, n.Name)
		}
	}
	if terminal == "" {
		if len(sinks) != 1 {
			return &TopologyError{Kind: "dead_end", Msg: fmt.Sprintf("cannot derive terminal from sinks %v", sinks)}
		}
		g.terminal = sinks[0]
		return nil
	}
	if len(g.succ[terminal]) > 0 {
		return &TopologyError{Kind: "terminal_successors", Msg: fmt.Sprintf("terminal %q has successors", terminal)}
	}
	for _, s := range sinks {
		if s != terminal {
			return &TopologyError{Kind: "dead_end", Msg: fmt.Sprintf("node %q has no successors and is not the terminal", s)}
		}
	}
	g.terminal = terminal
	return nil
}

func (g *Graph) checkReachable() error {
	reached := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.succ[n] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, n := range g.nodes {
		if !reached[n.Name] {
			return &TopologyError{Kind: "unreachable", Msg: fmt.Sprintf("node %q is not reachable from entry %q", n.Name, g.entry)}
		}
	}
	return nil
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Version returns the graph version.
func (g *Graph) Version() int { return g.version }

// Schema returns the state schema of executions of this graph.
func (g *Graph) Schema() *state.Schema { return g.schema }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Terminal returns the terminal node name.
func (g *Graph) Terminal() string { return g.terminal }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node called name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// Edges returns the deduplicated edges in declaration order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Successors returns the direct successors of name in declaration order.
func (g *Graph) Successors(name string) []string { return slices.Clone(g.succ[name]) }

// Predecessors returns the direct predecessors of name in declaration order.
func (g *Graph) Predecessors(name string) []string { return slices.Clone(g.pred[name]) }

// Roots returns every node without predecessors, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, n := range g.nodes {
		if len(g.pred[n.Name]) == 0 {
			roots = append(roots, n.Name)
		}
	}
	return roots
}

// ReadySuccessors returns the successors of node that are not completed
// yet and whose predecessors are all in completed. node itself is expected
// to be in completed. The result is in declaration order.
func (g *Graph) ReadySuccessors(node string, completed map[string]bool) []string {
	var ready []string
	for _, s := range g.succ[node] {
		if completed[s] {
			continue
		}
		if g.IsReady(s, completed) {
			ready = append(ready, s)
		}
	}
	return ready
}

// IsReady reports whether every predecessor of node is in completed.
func (g *Graph) IsReady(node string, completed map[string]bool) bool {
	for _, p := range g.pred[node] {
		if !completed[p] {
			return false
		}
	}
	return true
}

// Topology is a serializable description of a graph.
type Topology struct {
	Name     string          `json:"name"`
	Version  int             `json:"version"`
	Entry    string          `json:"entry"`
	Terminal string          `json:"terminal"`
	Nodes    []TopologyNode  `json:"nodes"`
	Edges    [][2]string     `json:"edges"`
	Fields   []TopologyField `json:"fields"`
}

// TopologyNode describes one node.
type TopologyNode struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TopologyField describes one state field.
type TopologyField struct {
	Name   string       `json:"name"`
	Kind   state.Kind   `json:"kind"`
	Policy state.Policy `json:"policy"`
}

// Describe returns the serializable topology of g.
func (g *Graph) Describe() Topology {
	t := Topology{
		Name:     g.name,
		Version:  g.version,
		Entry:    g.entry,
		Terminal: g.terminal,
		Nodes:    make([]TopologyNode, 0, len(g.nodes)),
		Edges:    make([][2]string, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		t.Nodes = append(t.Nodes, TopologyNode{Name: n.Name, Description: n.Description})
	}
	for _, e := range g.edges {
		t.Edges = append(t.Edges, [2]string{e.From, e.To})
	}
	for _, f := range g.schema.Fields() {
		t.Fields = append(t.Fields, TopologyField{Name: f.Name, Kind: f.Kind, Policy: f.Policy})
	}
	return t
}
