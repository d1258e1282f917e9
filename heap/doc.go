// Package heap implements the paged, multi-version relation that a rebuilt
// table is written to.
//
// Every tuple version records the command that created it (xmin) and the
// command that superseded it (xmax). A single writer advances a
// CommandCounter between statements; a Snapshot taken at command N sees the
// versions created before N and not yet superseded before N. An update that
// leaves every indexed column unchanged and fits on the same page produces a
// heap-only tuple (HOT) chained from its predecessor, so it needs no new index
// entries.
package heap
