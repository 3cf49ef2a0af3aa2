// Package docgen holds the document graphs: the specification sheet graph
// "pliego", which adapts a base specification to a new item and asks a
// reviewer which suggested parameters and additional activities to
// integrate, and the generic graph "generica", which consolidates one or
// more specifications into a new document.
//
// Every node that calls the model returns the call cost as a delta on the
// token_cost field. Nodes that only classify or evaluate items degrade on
// a failed call and log it; nodes that write the document propagate the
// failure and fail the execution.
package docgen
