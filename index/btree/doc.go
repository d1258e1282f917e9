// Package btree implements index.Index on an in-memory B-tree of
// (key, location) entries.
package btree
