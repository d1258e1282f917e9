// Package table couples a heap relation with its indexes: the target a
// rebuild copies into and replays concurrent changes onto.
package table
