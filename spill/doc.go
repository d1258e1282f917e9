// Package spill implements an append-only, FIFO record store that keeps
// records in memory up to a byte budget and moves further records to a
// temporary pebble database on disk.
package spill
