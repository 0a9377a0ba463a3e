// Package diff computes the structural difference between two order
// snapshots represented as tree.Node values.
//
// Diff produces the minimal edit script that turns the old tree into the new
// one: replaying the records with Apply reconstructs the new tree exactly,
// and diffing a tree against itself yields no records. Traversal is
// deterministic (sorted object keys, positional array indexes), so identical
// inputs always produce an identical record sequence.
package diff
