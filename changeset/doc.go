// Package changeset defines the typed mutation batches that flow between
// pipeline stages and the insertion-ordered Cache every stage keeps.
//
// A ChangeSet holds at most one Change per key and its order is significant.
// Sets produced by ordering stages are indexed and use sequential semantics:
// the indices of each entry refer to the sequence after all previous entries
// of the same set were applied. ApplyIndexed implements exactly that rule.
package changeset
