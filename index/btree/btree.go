package btree

import (
	"bytes"

	"github.com/google/btree"
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/index"
	"github.com/zeebo/errs"
)

var (
	// Error is the error class for index failures.
	Error = errs.Class("btree index")
	// ErrDuplicate is the error class for uniqueness violations.
	ErrDuplicate = errs.Class("duplicate key")
)

const degree = 32

type entry struct {
	key []byte
	tid heap.TID
}

func (e entry) Less(than btree.Item) bool {
	o := than.(entry)
	if c := bytes.Compare(e.key, o.key); c != 0 {
		return c < 0
	}
	return e.tid.Less(o.tid)
}

// Index is a B-tree index.
type Index struct {
	name    string
	columns []int
	unique  bool
	tree    *btree.BTree
}

var _ index.Index = (*Index)(nil)

// New creates an empty index over the given column ordinals.
func New(name string, columns []int, unique bool) *Index {
	return &Index{
		name:    name,
		columns: append([]int(nil), columns...),
		unique:  unique,
		tree:    btree.New(degree),
	}
}

func (i *Index) Name() string { return i.name }
func (i *Index) Columns() []int { return i.columns }
func (i *Index) Unique() bool { return i.unique }
func (i *Index) Len() int { return i.tree.Len() }

// Insert adds an entry; see index.Index.
func (i *Index) Insert(key []byte, tid heap.TID, check index.UniqueCheck) error {
	if i.unique && check != nil {
		var conflict error
		i.Lookup(key, func(existing heap.TID) bool {
			live, err := check(existing)
			if err != nil {
				conflict = Error.Wrap(err)
				return false
			}
			if live {
				conflict = ErrDuplicate.New("%s: key already present at %v", i.name, existing)
				return false
			}
			return true
		})
		if conflict != nil {
			return conflict
		}
	}
	i.tree.ReplaceOrInsert(entry{key: append([]byte(nil), key...), tid: tid})
	return nil
}

// Lookup visits exact key matches; see index.Index.
func (i *Index) Lookup(key []byte, fn func(tid heap.TID) bool) {
	i.tree.AscendGreaterOrEqual(entry{key: key}, func(item btree.Item) bool {
		e := item.(entry)
		if !bytes.Equal(e.key, key) {
			return false
		}
		return fn(e.tid)
	})
}
