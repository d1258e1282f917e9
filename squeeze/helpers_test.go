package squeeze

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viant/sqlite-squeeze/changelog"
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/row"
	"github.com/viant/sqlite-squeeze/table"
	"go.uber.org/zap/zaptest"
)

const relation = "items"

// fakeReader serves changes as consecutive records starting at LSN 1.
type fakeReader struct {
	changes   []*changelog.Change
	available int
	pos       int
	end       changelog.LSN
	confirmed changelog.LSN
	err       error
	arena     *row.Arena
}

func newFakeReader(changes ...*changelog.Change) *fakeReader {
	for i, c := range changes {
		c.LSN = changelog.LSN(i + 1)
	}
	return &fakeReader{changes: changes, available: len(changes)}
}

func (f *fakeReader) Seek(lsn changelog.LSN) {
	f.pos = int(lsn) - 1
	f.end = lsn
}

// ReadRecord positions an unpositioned reader at pos, standing in for the
// slot's confirmed position.
func (f *fakeReader) ReadRecord(_ context.Context, h changelog.Handler) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if !f.end.Valid() {
		f.end = changelog.LSN(f.pos + 1)
	}
	if f.pos >= f.available {
		return false, nil
	}
	c := f.changes[f.pos]
	err := h(c)
	if f.arena != nil {
		f.arena.Reset()
	}
	if err != nil {
		return false, err
	}
	f.pos++
	f.end = c.LSN + 1
	return true, nil
}

func (f *fakeReader) EndLSN() changelog.LSN { return f.end }

func (f *fakeReader) Confirm(_ context.Context, lsn changelog.LSN) error {
	f.confirmed = lsn
	return nil
}

func (f *fakeReader) fullRange() *Range {
	return &Range{Start: 1, End: changelog.LSN(len(f.changes) + 1)}
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() int {
	c.calls++
	return 0
}

func mustRow(t *testing.T, args ...interface{}) row.Row {
	t.Helper()
	r, err := row.Of(args...)
	require.NoError(t, err)
	return r
}

func insert(t *testing.T, args ...interface{}) *changelog.Change {
	return &changelog.Change{Relation: relation, Action: changelog.ActionInsert, New: mustRow(t, args...)}
}

func update(old, new row.Row) *changelog.Change {
	return &changelog.Change{Relation: relation, Action: changelog.ActionUpdate, Old: old, New: new}
}

func remove(t *testing.T, args ...interface{}) *changelog.Change {
	return &changelog.Change{Relation: relation, Action: changelog.ActionDelete, Old: mustRow(t, args...)}
}

// newTarget creates items(id, v, n) with a primary key on id and an index on v.
func newTarget(t *testing.T, initial ...row.Row) (*table.Table, *heap.CommandCounter) {
	t.Helper()
	tbl := table.New(relation, heap.Options{})
	cc := heap.NewCommandCounter()
	_, err := tbl.CreateIndex("items_pkey", []int{0}, true, cc.Snapshot())
	require.NoError(t, err)
	_, err = tbl.CreateIndex("items_v", []int{1}, false, cc.Snapshot())
	require.NoError(t, err)
	for _, r := range initial {
		_, err := tbl.Insert(r, cc.Current(true))
		require.NoError(t, err)
		cc.Increment()
	}
	return tbl, cc
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.SpillDir = t.TempDir()
	cfg.PollInterval = time.Millisecond
	return cfg
}

func newReplayer(t *testing.T, cfg Config, reader LogReader, tbl *table.Table, cc *heap.CommandCounter) *Replayer {
	t.Helper()
	r, err := New(zaptest.NewLogger(t), cfg, Options{
		Relation:    relation,
		Reader:      reader,
		Target:      tbl,
		Identity:    IdentityKey{Index: "items_pkey", Columns: []int{0}},
		Counter:     cc,
		Invalidator: &countingInvalidator{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// targetRows returns the visible target rows as driver values ordered by id.
func targetRows(t *testing.T, tbl *table.Table, cc *heap.CommandCounter) [][]interface{} {
	t.Helper()
	rows, err := tbl.Rows(cc.Snapshot())
	require.NoError(t, err)
	out := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		vals, err := r.Values()
		require.NoError(t, err)
		out = append(out, vals)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].(int64) < out[j][0].(int64) })
	return out
}
