package squeeze

import (
	"github.com/viant/sqlite-squeeze/catalog"
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/index"
	"github.com/viant/sqlite-squeeze/row"
	"github.com/viant/sqlite-squeeze/table"
)

// IdentityKey names the identity index of the rebuilt table and the column
// ordinals its key is built from. It is fixed for one rebuild.
type IdentityKey struct {
	Index   string
	Columns []int
}

// IdentityKeyOf returns the identity key of a source table descriptor.
func IdentityKeyOf(desc *catalog.Descriptor) IdentityKey {
	return IdentityKey{Index: desc.Identity.Name, Columns: append([]int(nil), desc.Identity.Columns...)}
}

// IndexInsertState holds the indexes of the target that replayed changes
// maintain. Replayed rows were unique in the source, so index entries are
// added without uniqueness checks.
type IndexInsertState struct {
	target   *table.Table
	identity index.Index
	key      IdentityKey
}

// NewIndexInsertState locates the identity index among the target's indexes.
func NewIndexInsertState(target *table.Table, key IdentityKey) (*IndexInsertState, error) {
	idx, ok := target.Index(key.Index)
	if !ok {
		return nil, Error.New("failed to open identity index %q of %s", key.Index, target.Name())
	}
	cols := idx.Columns()
	if len(cols) != len(key.Columns) {
		return nil, Error.New("identity index %q covers %d columns, key has %d", key.Index, len(cols), len(key.Columns))
	}
	for i := range cols {
		if cols[i] != key.Columns[i] {
			return nil, Error.New("identity index %q does not match the identity key columns", key.Index)
		}
	}
	return &IndexInsertState{target: target, identity: idx, key: key}, nil
}

func (s *IndexInsertState) insertIndexTuples(tup row.Row, tid heap.TID, cid heap.CommandID) error {
	if err := s.target.InsertIndexEntries(tup, tid, false, cid); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// locate returns the location of the row version visible to snap whose
// identity key equals the key columns of keyRow. The first visible match wins.
func (s *IndexInsertState) locate(keyRow row.Row, snap heap.Snapshot) (heap.TID, error) {
	key, err := row.Key(keyRow, s.key.Columns)
	if err != nil {
		return heap.TID{}, ConsistencyError.Wrap(err)
	}
	var (
		found   heap.TID
		located bool
		scanErr error
	)
	s.identity.Lookup(key, func(root heap.TID) bool {
		tid, _, visible, err := s.target.Heap.HotSearch(root, snap)
		if err != nil {
			scanErr = err
			return false
		}
		if visible {
			found, located = tid, true
			return false
		}
		return true
	})
	if scanErr != nil {
		return heap.TID{}, ConsistencyError.Wrap(scanErr)
	}
	if !located {
		return heap.TID{}, ConsistencyError.New("concurrent change: row not found in %s by identity index %s", s.target.Name(), s.key.Index)
	}
	return found, nil
}
