package heap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/sqlite-squeeze/row"
)

func mustRow(t *testing.T, args ...interface{}) row.Row {
	t.Helper()
	r, err := row.Of(args...)
	require.NoError(t, err)
	return r
}

func TestInsertVisibleAfterIncrement(t *testing.T) {
	rel := New("t", Options{})
	cc := NewCommandCounter()

	tid, err := rel.Insert(mustRow(t, int64(1), "a"), cc.Current(true))
	require.NoError(t, err)

	_, ok, err := rel.Fetch(tid, cc.Snapshot())
	require.NoError(t, err)
	require.False(t, ok, "insert must not be visible to its own command")

	cc.Increment()
	got, ok, err := rel.Fetch(tid, cc.Snapshot())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), got[0].Int64())
}

func TestIncrementWithoutWriteIsNoop(t *testing.T) {
	cc := NewCommandCounter()
	before := cc.Current(false)
	cc.Increment()
	require.Equal(t, before, cc.Current(false))
	cc.Current(true)
	cc.Increment()
	require.Equal(t, before+1, cc.Current(false))
}

func TestUpdateHotAndNonHot(t *testing.T) {
	rel := New("t", Options{})
	rel.SetIndexedColumns([]int{0})
	cc := NewCommandCounter()

	root, err := rel.Insert(mustRow(t, int64(1), "a"), cc.Current(true))
	require.NoError(t, err)
	cc.Increment()

	hotTID, hot, err := rel.Update(root, mustRow(t, int64(1), "b"), cc.Current(true))
	require.NoError(t, err)
	require.True(t, hot)
	require.Equal(t, root.Page, hotTID.Page)
	cc.Increment()

	tid, got, ok, err := rel.HotSearch(root, cc.Snapshot())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hotTID, tid)
	b, err := got[1].Bytes()
	require.NoError(t, err)
	require.Equal(t, "b", string(b))

	_, _, ok, err = rel.HotSearch(hotTID, cc.Snapshot())
	require.NoError(t, err)
	require.False(t, ok, "heap-only tuples are not chain roots")

	moved, hot, err := rel.Update(hotTID, mustRow(t, int64(2), "b"), cc.Current(true))
	require.NoError(t, err)
	require.False(t, hot, "indexed column changed")
	cc.Increment()

	_, _, ok, err = rel.HotSearch(root, cc.Snapshot())
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = rel.Fetch(moved, cc.Snapshot())
	require.NoError(t, err)
	require.True(t, ok)

	stats := rel.Stats()
	require.Equal(t, 3, stats.Versions)
	require.Equal(t, 1, stats.Live)
	require.Equal(t, 1, stats.HeapOnly)
}

func TestModifySupersededFails(t *testing.T) {
	rel := New("t", Options{})
	cc := NewCommandCounter()
	tid, err := rel.Insert(mustRow(t, int64(1)), cc.Current(true))
	require.NoError(t, err)

	err = rel.Delete(tid, cc.Current(true))
	require.Error(t, err, "not visible to the inserting command")
	cc.Increment()

	require.NoError(t, rel.Delete(tid, cc.Current(true)))
	cc.Increment()
	err = rel.Delete(tid, cc.Current(true))
	require.True(t, Error.Has(err))
	_, _, err = rel.Update(tid, mustRow(t, int64(2)), cc.Current(true))
	require.Error(t, err)

	_, _, err = rel.Fetch(TID{Page: 9}, cc.Snapshot())
	require.Error(t, err)
}

func TestPagesFillInOrder(t *testing.T) {
	rel := New("t", Options{PageSize: 256})
	cc := NewCommandCounter()
	var tids []TID
	for i := 0; i < 20; i++ {
		tid, err := rel.Insert(mustRow(t, int64(i), strings.Repeat("x", 40)), cc.Current(true))
		require.NoError(t, err)
		tids = append(tids, tid)
	}
	cc.Increment()
	for i := 1; i < len(tids); i++ {
		require.True(t, tids[i-1].Less(tids[i]))
	}
	require.Greater(t, rel.Stats().Pages, 1)

	var seen []int64
	require.NoError(t, rel.Scan(cc.Snapshot(), func(_ TID, tup row.Row) bool {
		seen = append(seen, tup[0].Int64())
		return true
	}))
	require.Len(t, seen, 20)
	require.Equal(t, int64(19), seen[19])
}

func TestUpdateWithoutRoomIsNotHot(t *testing.T) {
	rel := New("t", Options{PageSize: 128})
	cc := NewCommandCounter()
	tid, err := rel.Insert(mustRow(t, int64(1), strings.Repeat("y", 60)), cc.Current(true))
	require.NoError(t, err)
	cc.Increment()
	newTID, hot, err := rel.Update(tid, mustRow(t, int64(1), strings.Repeat("z", 60)), cc.Current(true))
	require.NoError(t, err)
	require.False(t, hot)
	require.NotEqual(t, tid.Page, newTID.Page)
}
