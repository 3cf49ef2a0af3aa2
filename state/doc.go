// Package state implements the state container shared by the nodes of one
// execution.
//
// A Schema declares every field a graph may read or write, with a kind
// and a merge policy:
//
//   - Replace: last write wins.
//   - Append: sequences are concatenated.
//   - Add: numbers are summed. Sums are rounded to 12 decimal places so
//     the result of concurrent branch updates does not depend on the order
//     in which they were merged.
//
// Nodes never mutate a State. They return an Update which the executor
// applies on a single goroutine. Values are kept in their canonical JSON
// form (string, float64, bool, []any, map[string]any) so a state that went
// through a checkpoint is indistinguishable from one that did not.
package state
