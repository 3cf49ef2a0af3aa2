// Package drafter provides a durable, graph-based execution engine for
// multi-stage document generation. A workflow is a static graph of nodes
// that read a shared state container and return partial updates. Nodes on
// independent branches run concurrently, joins wait for every predecessor,
// and any node can suspend the whole execution to ask a person for a
// decision and be resumed later from its checkpoint.
//
// Drafter is designed as a library. Import it, pick a checkpoint store,
// register graphs as ordinary Go functions and call Start/Resume.
//
// # Quick Start
//
//	d, err := drafter.New(
//	    drafter.WithStore(pgStore),
//	    drafter.WithConcurrency(4),
//	)
//	eng, err := engine.Build(d, engine.WithGraph(docgen.SpecSheet(model)))
//	res, err := eng.Start(ctx, "pliego", map[string]any{"base_spec": text})
//
// # Architecture
//
// The state package owns the schema and merge policies (replace, append,
// add). The graph package owns topology validation and the interrupt
// primitive. The executor walks a graph, merging node output through a
// single coordinator goroutine and checkpointing after every node. The
// engine ties graphs, executor, store and extensions together and exposes
// the Start/Resume invocation API.
//
// All execution identifiers are TypeIDs: type-prefixed, K-sortable,
// UUIDv7-based identifiers such as "exec_01h2xcejqtf2nbrexx3vqjhp41".
package drafter
