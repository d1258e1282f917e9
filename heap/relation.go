package heap

import (
	"fmt"

	"github.com/viant/sqlite-squeeze/row"
	"github.com/zeebo/errs"
)

// Error is the error class for heap failures.
var Error = errs.Class("heap")

// DefaultPageSize is the page byte budget used when Options leave it unset.
const DefaultPageSize = 8192

const tupleOverhead = 24

// TID is the physical location of a tuple version.
type TID struct {
	Page uint32
	Slot uint16
}

func (t TID) String() string { return fmt.Sprintf("(%d,%d)", t.Page, t.Slot) }

// Less orders locations by page, then slot.
func (t TID) Less(o TID) bool {
	if t.Page != o.Page {
		return t.Page < o.Page
	}
	return t.Slot < o.Slot
}

// Options configures a relation.
type Options struct {
	PageSize int
}

// Stats summarizes the content of a relation.
type Stats struct {
	Pages    int
	Versions int
	Live     int
	HeapOnly int
}

type tuple struct {
	data       []byte
	xmin       CommandID
	xmax       CommandID
	next       TID
	hotUpdated bool
	heapOnly   bool
}

func (t *tuple) size() int { return len(t.data) + tupleOverhead }

type page struct {
	used   int
	tuples []*tuple
}

// Relation is an in-memory paged heap.
type Relation struct {
	name     string
	pageSize int
	pages    []*page
	indexed  map[int]bool
}

// New creates an empty relation.
func New(name string, opts Options) *Relation {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Relation{name: name, pageSize: opts.PageSize, indexed: map[int]bool{}}
}

// Name returns the relation name.
func (r *Relation) Name() string { return r.name }

// SetIndexedColumns adds cols to the set of columns covered by an index.
// Updates that change one of them are never HOT.
func (r *Relation) SetIndexedColumns(cols []int) {
	for _, c := range cols {
		r.indexed[c] = true
	}
}

// Insert stores a new version created by cid. Consecutive inserts fill the
// last page before a new one is allocated.
func (r *Relation) Insert(tup row.Row, cid CommandID) (TID, error) {
	data, err := row.Encode(nil, tup)
	if err != nil {
		return TID{}, Error.Wrap(err)
	}
	return r.place(&tuple{data: data, xmin: cid}), nil
}

// Update supersedes the version at tid with tup as command cid. It returns
// the location of the new version and whether it was stored as a heap-only
// tuple.
func (r *Relation) Update(tid TID, tup row.Row, cid CommandID) (TID, bool, error) {
	old, err := r.modifiable(tid, cid)
	if err != nil {
		return TID{}, false, err
	}
	data, err := row.Encode(nil, tup)
	if err != nil {
		return TID{}, false, Error.Wrap(err)
	}
	oldRow, err := row.Decode(old.data)
	if err != nil {
		return TID{}, false, Error.Wrap(err)
	}
	changed, err := r.indexedChanged(oldRow, tup)
	if err != nil {
		return TID{}, false, Error.Wrap(err)
	}
	next := &tuple{data: data, xmin: cid}
	var newTID TID
	pg := r.pages[tid.Page]
	hot := !changed && pg.used+next.size() <= r.pageSize
	if hot {
		next.heapOnly = true
		newTID = r.append(tid.Page, next)
		old.hotUpdated = true
	} else {
		newTID = r.place(next)
	}
	old.xmax = cid
	old.next = newTID
	return newTID, hot, nil
}

// Delete supersedes the version at tid as command cid.
func (r *Relation) Delete(tid TID, cid CommandID) error {
	t, err := r.modifiable(tid, cid)
	if err != nil {
		return err
	}
	t.xmax = cid
	return nil
}

// Fetch returns the version stored at tid if snap can see it.
func (r *Relation) Fetch(tid TID, snap Snapshot) (row.Row, bool, error) {
	t, err := r.get(tid)
	if err != nil {
		return nil, false, err
	}
	if !snap.visible(t) {
		return nil, false, nil
	}
	out, err := row.Decode(t.data)
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	return out, true, nil
}

// HotSearch follows the HOT chain starting at root, the location an index
// entry points to, and returns the member visible to snap.
func (r *Relation) HotSearch(root TID, snap Snapshot) (TID, row.Row, bool, error) {
	t, err := r.get(root)
	if err != nil {
		return TID{}, nil, false, err
	}
	if t.heapOnly {
		return TID{}, nil, false, nil
	}
	tid := root
	for {
		if snap.visible(t) {
			out, err := row.Decode(t.data)
			if err != nil {
				return TID{}, nil, false, Error.Wrap(err)
			}
			return tid, out, true, nil
		}
		if !t.hotUpdated {
			return TID{}, nil, false, nil
		}
		tid = t.next
		if t, err = r.get(tid); err != nil {
			return TID{}, nil, false, err
		}
	}
}

// Scan calls fn for every version visible to snap in physical order until fn
// returns false.
func (r *Relation) Scan(snap Snapshot, fn func(tid TID, tup row.Row) bool) error {
	for p, pg := range r.pages {
		for s, t := range pg.tuples {
			if !snap.visible(t) {
				continue
			}
			out, err := row.Decode(t.data)
			if err != nil {
				return Error.Wrap(err)
			}
			if !fn(TID{Page: uint32(p), Slot: uint16(s)}, out) {
				return nil
			}
		}
	}
	return nil
}

// Roots calls fn for the location and the snap-visible content of every
// chain root, which is what an index built over the relation refers to.
func (r *Relation) Roots(snap Snapshot, fn func(root TID, tup row.Row) error) error {
	for p, pg := range r.pages {
		for s, t := range pg.tuples {
			if t.heapOnly {
				continue
			}
			root := TID{Page: uint32(p), Slot: uint16(s)}
			_, tup, ok, err := r.HotSearch(root, snap)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := fn(root, tup); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats returns version counts; Live counts versions not yet superseded.
func (r *Relation) Stats() Stats {
	s := Stats{Pages: len(r.pages)}
	for _, pg := range r.pages {
		for _, t := range pg.tuples {
			s.Versions++
			if t.xmax == InvalidCommandID {
				s.Live++
			}
			if t.heapOnly {
				s.HeapOnly++
			}
		}
	}
	return s
}

func (r *Relation) get(tid TID) (*tuple, error) {
	if int(tid.Page) >= len(r.pages) {
		return nil, Error.New("%s: invalid page in tid %v", r.name, tid)
	}
	pg := r.pages[tid.Page]
	if int(tid.Slot) >= len(pg.tuples) {
		return nil, Error.New("%s: invalid slot in tid %v", r.name, tid)
	}
	return pg.tuples[tid.Slot], nil
}

func (r *Relation) modifiable(tid TID, cid CommandID) (*tuple, error) {
	t, err := r.get(tid)
	if err != nil {
		return nil, err
	}
	if t.xmin >= cid {
		return nil, Error.New("%s: tuple %v is not visible to command %d", r.name, tid, cid)
	}
	if t.xmax != InvalidCommandID {
		return nil, Error.New("%s: tuple %v already updated or deleted", r.name, tid)
	}
	return t, nil
}

func (r *Relation) indexedChanged(old, tup row.Row) (bool, error) {
	for c := range r.indexed {
		if c >= len(old) || c >= len(tup) {
			return true, nil
		}
		eq, err := old[c].Equal(tup[c])
		if err != nil {
			return false, err
		}
		if !eq {
			return true, nil
		}
	}
	return false, nil
}

func (r *Relation) place(t *tuple) TID {
	if n := len(r.pages); n > 0 {
		last := r.pages[n-1]
		if last.used+t.size() <= r.pageSize {
			return r.append(uint32(n-1), t)
		}
	}
	r.pages = append(r.pages, &page{})
	return r.append(uint32(len(r.pages)-1), t)
}

func (r *Relation) append(p uint32, t *tuple) TID {
	pg := r.pages[p]
	pg.tuples = append(pg.tuples, t)
	pg.used += t.size()
	return TID{Page: p, Slot: uint16(len(pg.tuples) - 1)}
}
