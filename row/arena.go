package row

// ErrStale is returned when an external value is read after its arena was reset.
var ErrStale = Error.New("external value read after arena reset")

// Arena is a reusable buffer that backs external values. Values handed out by
// an arena are valid until the next Reset.
type Arena struct {
	buf []byte
	gen uint64
}

// External references bytes held in an Arena.
type External struct {
	arena  *Arena
	gen    uint64
	offset int
	length int
}

// NewArena creates an arena with the given initial capacity.
func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]byte, 0, capacity)}
}

// External copies payload into the arena and returns a value referencing it.
func (a *Arena) External(kind Kind, codec Codec, payload []byte) Value {
	off := len(a.buf)
	a.buf = append(a.buf, payload...)
	return Value{kind: kind, codec: codec, ext: &External{arena: a, gen: a.gen, offset: off, length: len(payload)}}
}

// Len returns the number of bytes currently held.
func (a *Arena) Len() int { return len(a.buf) }

// Reset releases every value handed out since the previous Reset.
func (a *Arena) Reset() {
	a.buf = a.buf[:0]
	a.gen++
}

func (e *External) bytes() ([]byte, error) {
	if e.gen != e.arena.gen {
		return nil, ErrStale
	}
	return e.arena.buf[e.offset : e.offset+e.length], nil
}
