package index

import "github.com/viant/sqlite-squeeze/heap"

// Index maps encoded keys (see row.Key) to the heap locations of the chain
// roots they were built from. Entries are never removed: a superseded tuple
// keeps its entries and callers filter them through heap visibility.
type Index interface {
    // Name returns the index name.
    Name() string

    // Columns returns the ordinals of the indexed columns, in key order.
    Columns() []int

    // Unique reports whether the index enforces key uniqueness.
    Unique() bool

    // Insert adds an entry for key pointing at tid. For a unique index a
    // non-nil check is consulted for every existing entry with the same key;
    // a nil check disables enforcement.
    Insert(key []byte, tid heap.TID, check UniqueCheck) error

    // Lookup calls fn for every entry matching key, in location order,
    // until fn returns false.
    Lookup(key []byte, fn func(tid heap.TID) bool)

    // Len returns the number of entries.
    Len() int
}

// UniqueCheck reports whether an existing entry pointing at tid still
// refers to a live tuple, in which case a new entry with the same key
// would be a duplicate.
type UniqueCheck func(tid heap.TID) (bool, error)
