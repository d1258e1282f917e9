package engine

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Open opens a SQLite database using the modernc.org/sqlite driver. The row
// functions are registered before the first connection is made.
//
// For file-based databases, pass a path like "./db.sqlite" or the result of
// DSN. For in-memory databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) {
	if err := registerRowFunctions(); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}

// DSN builds a file DSN whose connections use WAL journaling and wait up to
// busyTimeout for locks held by other connections.
func DSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}
