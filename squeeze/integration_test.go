package squeeze

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sqlite-squeeze/catalog"
	"github.com/viant/sqlite-squeeze/changelog"
	"github.com/viant/sqlite-squeeze/engine"
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/row"
	"github.com/viant/sqlite-squeeze/table"
	"go.uber.org/zap/zaptest"
)

type rebuild struct {
	db      *sql.DB
	cache   *catalog.Cache
	desc    *catalog.Descriptor
	reader  *changelog.Reader
	checker *catalog.Checker
	target  *table.Table
	cc      *heap.CommandCounter
	start   changelog.LSN
}

func execAll(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

// startRebuild installs capture on items, then copies its rows into a new
// target the way the initial load of a rebuild does.
func startRebuild(t *testing.T) *rebuild {
	t.Helper()
	ctx := context.Background()
	db, err := engine.Open(engine.DSN(filepath.Join(t.TempDir(), "squeeze.db"), 5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	execAll(t, db,
		`CREATE TABLE items(id INTEGER PRIMARY KEY, v TEXT NOT NULL, body BLOB)`,
		`CREATE INDEX items_v ON items(v)`,
		`INSERT INTO items VALUES (1, 'a', NULL), (2, 'b', x'0102'), (3, 'c', NULL)`,
	)

	rb := &rebuild{db: db, cache: catalog.NewCache(), cc: heap.NewCommandCounter()}
	rb.desc, err = catalog.Load(ctx, db, "items")
	require.NoError(t, err)
	require.NoError(t, changelog.Install(ctx, db, rb.desc, changelog.Config{}))
	rb.checker, err = catalog.NewChecker(ctx, db, "items")
	require.NoError(t, err)
	rb.reader = changelog.NewReader(db, changelog.Config{Cache: rb.cache, Prefetch: 4, InlineLimit: 64})
	rb.start, err = rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)

	rb.target = table.New("items_squeeze", heap.Options{})
	for _, tup := range sourceRows(t, db) {
		r, err := row.Of(tup...)
		require.NoError(t, err)
		_, err = rb.target.Insert(r, rb.cc.Current(true))
		require.NoError(t, err)
	}
	rb.cc.Increment()
	for _, idx := range rb.desc.Indexes {
		_, err := rb.target.CreateIndex(idx.Name, idx.Columns, idx.Unique, rb.cc.Snapshot())
		require.NoError(t, err)
	}
	return rb
}

func (rb *rebuild) replayer(t *testing.T, cfg Config) *Replayer {
	t.Helper()
	r, err := New(zaptest.NewLogger(t), cfg, Options{
		Relation:    "items",
		Reader:      rb.reader,
		Target:      rb.target,
		Identity:    IdentityKeyOf(rb.desc),
		Counter:     rb.cc,
		Invalidator: rb.cache,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func sourceRows(t *testing.T, db *sql.DB) [][]interface{} {
	t.Helper()
	rows, err := db.Query(`SELECT id, v, body FROM items ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var out [][]interface{}
	for rows.Next() {
		var (
			id   int64
			v    string
			body []byte
		)
		require.NoError(t, rows.Scan(&id, &v, &body))
		var b interface{}
		if body != nil {
			b = body
		}
		out = append(out, []interface{}{id, v, b})
	}
	require.NoError(t, rows.Err())
	return out
}

func TestReplayCapturedChanges(t *testing.T) {
	ctx := context.Background()
	rb := startRebuild(t)
	require.Equal(t, "items_pkey", rb.desc.Identity.Name)

	large := strings.Repeat("squeeze ", 1024)
	execAll(t, rb.db,
		`INSERT INTO items VALUES (4, 'd', x'ff')`,
		`UPDATE items SET v = 'b2' WHERE id = 2`,
		`UPDATE items SET id = 30 WHERE id = 3`,
		`DELETE FROM items WHERE id = 1`,
		`INSERT INTO items VALUES (5, 'e', NULL)`,
		`UPDATE items SET body = CAST('`+large+`' AS BLOB) WHERE id = 4`,
		`UPDATE items SET v = 'c2' WHERE id = 30`,
	)
	end, err := rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.MemoryCeiling = 256
	cfg.SpillMemoryLimit = 64
	r := rb.replayer(t, cfg)

	done, err := r.Process(ctx, &Range{Start: rb.start, End: end}, rb.checker, catalog.LockShared, time.Time{})
	require.NoError(t, err)
	require.True(t, done)

	assert.Equal(t, sourceRows(t, rb.db), targetRows(t, rb.target, rb.cc))
	assert.Equal(t, ApplyStats{Inserts: 2, Updates: 4, Deletes: 1}, r.Stats())

	slot, err := rb.reader.Slot(ctx)
	require.NoError(t, err)
	assert.Equal(t, end, slot.ConfirmedLSN)
}

func TestReplayResumesAfterDeadline(t *testing.T) {
	ctx := context.Background()
	rb := startRebuild(t)
	execAll(t, rb.db,
		`INSERT INTO items VALUES (4, 'd', NULL)`,
		`UPDATE items SET v = 'a2' WHERE id = 1`,
	)
	end, err := rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)
	r := rb.replayer(t, testConfig(t))

	rng := &Range{Start: rb.start, End: end}
	done, err := r.Process(ctx, rng, rb.checker, catalog.LockShared, time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.False(t, done)
	require.NoError(t, r.ApplyPending(ctx))

	execAll(t, rb.db, `DELETE FROM items WHERE id = 2`)
	rng.End, err = rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)

	done, err = r.Process(ctx, rng, rb.checker, catalog.LockShared, time.Time{})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, sourceRows(t, rb.db), targetRows(t, rb.target, rb.cc))
}

func TestReplayResumesWithNewReader(t *testing.T) {
	ctx := context.Background()
	rb := startRebuild(t)
	execAll(t, rb.db, `INSERT INTO items VALUES (4, 'd', NULL)`)
	end, err := rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)
	done, err := rb.replayer(t, testConfig(t)).Process(ctx, &Range{Start: rb.start, End: end}, rb.checker, catalog.LockShared, time.Time{})
	require.NoError(t, err)
	require.True(t, done)

	execAll(t, rb.db,
		`INSERT INTO items VALUES (5, 'e', NULL)`,
		`UPDATE items SET v = 'b2' WHERE id = 2`,
	)
	end, err = rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)

	// a restarted rebuild reads from the confirmed slot position
	rb.reader = changelog.NewReader(rb.db, changelog.Config{Cache: rb.cache, Prefetch: 4, InlineLimit: 64})
	r := rb.replayer(t, testConfig(t))
	done, err = r.Process(ctx, &Range{End: end}, rb.checker, catalog.LockShared, time.Time{})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, ApplyStats{Inserts: 1, Updates: 1}, r.Stats())
	assert.Equal(t, sourceRows(t, rb.db), targetRows(t, rb.target, rb.cc))

	slot, err := rb.reader.Slot(ctx)
	require.NoError(t, err)
	assert.Equal(t, end, slot.ConfirmedLSN)
}

func TestReplayStopsOnSchemaDrift(t *testing.T) {
	ctx := context.Background()
	rb := startRebuild(t)
	execAll(t, rb.db,
		`INSERT INTO items VALUES (4, 'd', NULL)`,
		`CREATE INDEX items_body ON items(body)`,
	)
	end, err := rb.reader.CurrentLSN(ctx)
	require.NoError(t, err)
	r := rb.replayer(t, testConfig(t))

	_, err = r.Process(ctx, &Range{Start: rb.start, End: end}, rb.checker, catalog.LockShared, time.Time{})
	require.Error(t, err)
	assert.True(t, SchemaDriftError.Has(err))
	assert.Len(t, targetRows(t, rb.target, rb.cc), 3)
}
