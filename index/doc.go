// Package index defines the secondary-index abstraction of a rebuilt
// relation: ordered (key, location) entries maintained alongside the heap.
// Implementations in this module include a B-tree.
package index
