// Package squeeze replays the changes other transactions made to a table
// while it was being rebuilt onto the rebuilt copy.
//
// A Replayer decodes the change log in bounded batches: decoding stops when
// the buffered changes reach the memory ceiling, when the requested range has
// been read or when the deadline passes. Buffered changes live in a spill
// store and are applied in log order, locating existing rows through the
// identity index and advancing the command counter after every change so the
// next lookup sees it. Process returns true once the whole range has been
// applied and false when the deadline stopped it, in which case the last
// decoded batch is left for the caller to apply with ApplyPending.
package squeeze
