package table

import (
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/index"
	"github.com/viant/sqlite-squeeze/index/btree"
	"github.com/viant/sqlite-squeeze/row"
	"github.com/zeebo/errs"
)

var (
	// Error is the error class for table failures.
	Error = errs.Class("table")
	// ErrDuplicate is the error class for uniqueness violations.
	ErrDuplicate = errs.Class("duplicate key")
)

// Table is a heap relation with B-tree indexes.
type Table struct {
	Heap    *heap.Relation
	indexes []index.Index
}

// New creates an empty table.
func New(name string, opts heap.Options) *Table {
	return &Table{Heap: heap.New(name, opts)}
}

// Name returns the table name.
func (t *Table) Name() string { return t.Heap.Name() }

// Indexes returns the indexes in creation order.
func (t *Table) Indexes() []index.Index { return t.indexes }

// Index returns the index with the given name.
func (t *Table) Index(name string) (index.Index, bool) {
	for _, idx := range t.indexes {
		if idx.Name() == name {
			return idx, true
		}
	}
	return nil, false
}

// CreateIndex builds an index over cols from the tuples visible to snap.
func (t *Table) CreateIndex(name string, cols []int, unique bool, snap heap.Snapshot) (index.Index, error) {
	if _, ok := t.Index(name); ok {
		return nil, Error.New("index %q already exists on %s", name, t.Name())
	}
	idx := btree.New(name, cols, unique)
	err := t.Heap.Roots(snap, func(root heap.TID, tup row.Row) error {
		return t.insertEntry(idx, tup, root, t.liveCheck(snap))
	})
	if err != nil {
		return nil, err
	}
	t.Heap.SetIndexedColumns(cols)
	t.indexes = append(t.indexes, idx)
	return idx, nil
}

// Insert stores tup as command cid and adds its index entries, enforcing
// uniqueness against every version not yet superseded.
func (t *Table) Insert(tup row.Row, cid heap.CommandID) (heap.TID, error) {
	live := t.liveCheck(heap.Snapshot{CommandID: cid + 1})
	for _, idx := range t.indexes {
		if !idx.Unique() || hasNull(tup, idx.Columns()) {
			continue
		}
		if err := t.checkUnique(idx, tup, live); err != nil {
			return heap.TID{}, err
		}
	}
	tid, err := t.Heap.Insert(tup, cid)
	if err != nil {
		return heap.TID{}, err
	}
	if err := t.InsertIndexEntries(tup, tid, false, cid); err != nil {
		return heap.TID{}, err
	}
	return tid, nil
}

// InsertIndexEntries adds entries for tup stored at tid to every index.
// With checkUnique unset no uniqueness enforcement takes place.
func (t *Table) InsertIndexEntries(tup row.Row, tid heap.TID, checkUnique bool, cid heap.CommandID) error {
	var check index.UniqueCheck
	if checkUnique {
		check = t.liveCheck(heap.Snapshot{CommandID: cid + 1})
	}
	for _, idx := range t.indexes {
		if err := t.insertEntry(idx, tup, tid, check); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the tuples visible to snap in physical order.
func (t *Table) Rows(snap heap.Snapshot) ([]row.Row, error) {
	var out []row.Row
	err := t.Heap.Scan(snap, func(_ heap.TID, tup row.Row) bool {
		out = append(out, tup)
		return true
	})
	return out, err
}

func (t *Table) insertEntry(idx index.Index, tup row.Row, tid heap.TID, check index.UniqueCheck) error {
	key, err := row.Key(tup, idx.Columns())
	if err != nil {
		return Error.Wrap(err)
	}
	if check != nil && hasNull(tup, idx.Columns()) {
		check = nil
	}
	return idx.Insert(key, tid, check)
}

func (t *Table) checkUnique(idx index.Index, tup row.Row, live index.UniqueCheck) error {
	key, err := row.Key(tup, idx.Columns())
	if err != nil {
		return Error.Wrap(err)
	}
	var conflict error
	idx.Lookup(key, func(root heap.TID) bool {
		ok, err := live(root)
		switch {
		case err != nil:
			conflict = Error.Wrap(err)
		case ok:
			conflict = ErrDuplicate.New("%s: key already present at %v", idx.Name(), root)
		}
		return conflict == nil
	})
	return conflict
}

func hasNull(tup row.Row, cols []int) bool {
	for _, c := range cols {
		if c < len(tup) && tup[c].IsNull() {
			return true
		}
	}
	return false
}

func (t *Table) liveCheck(snap heap.Snapshot) index.UniqueCheck {
	return func(root heap.TID) (bool, error) {
		_, _, ok, err := t.Heap.HotSearch(root, snap)
		return ok, err
	}
}
