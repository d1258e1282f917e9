// Package changelog captures row-level changes of a SQLite table into a
// durable, totally ordered log and decodes them back for replay.
//
// Capture is trigger based: AFTER INSERT/UPDATE/DELETE triggers append one
// log row per mutation, carrying row images packed by squeeze_pack. A Reader
// walks the log by LSN, hands every record to a callback and persists the
// position its consumer confirmed in a slot table so a restarted consumer
// does not reprocess confirmed records.
package changelog
